package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

// Directory resolves membership and role state through the Discord REST API,
// leaning on the role cache where populated.
type Directory struct {
	client bot.Client
}

func NewDirectory(client bot.Client) *Directory {
	return &Directory{client: client}
}

var _ interfaces.GuildDirectory = (*Directory)(nil)

func isNotFound(err error) bool {
	var restErr rest.Error
	return errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}

func parseIDs(ids ...string) ([]snowflake.ID, error) {
	out := make([]snowflake.ID, 0, len(ids))
	for _, raw := range ids {
		id, err := snowflake.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (d *Directory) MemberExists(ctx context.Context, guildID, userID string) (bool, error) {
	ids, err := parseIDs(guildID, userID)
	if err != nil {
		return false, err
	}
	_, err = d.client.Rest().GetMember(ids[0], ids[1], rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *Directory) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	ids, err := parseIDs(guildID, roleID)
	if err != nil {
		return "", err
	}
	if role, ok := d.client.Caches().Role(ids[0], ids[1]); ok {
		return role.Name, nil
	}
	roles, err := d.client.Rest().GetRoles(ids[0], rest.WithCtx(ctx))
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if role.ID == ids[1] {
			return role.Name, nil
		}
	}
	return "", nil
}

func (d *Directory) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	ids, err := parseIDs(guildID, userID, roleID)
	if err != nil {
		return false, err
	}
	member, err := d.client.Rest().GetMember(ids[0], ids[1], rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, rid := range member.RoleIDs {
		if rid == ids[2] {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	ids, err := parseIDs(guildID, userID, roleID)
	if err != nil {
		return err
	}
	return d.client.Rest().AddMemberRole(ids[0], ids[1], ids[2], rest.WithCtx(ctx))
}

func (d *Directory) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	ids, err := parseIDs(guildID, userID, roleID)
	if err != nil {
		return err
	}
	return d.client.Rest().RemoveMemberRole(ids[0], ids[1], ids[2], rest.WithCtx(ctx))
}

// CanManageRole checks that the bot holds Manage Roles and outranks the target
// role in the guild hierarchy.
func (d *Directory) CanManageRole(ctx context.Context, guildID, roleID string) (bool, error) {
	ids, err := parseIDs(guildID, roleID)
	if err != nil {
		return false, err
	}

	self, err := d.client.Rest().GetMember(ids[0], d.client.ApplicationID(), rest.WithCtx(ctx))
	if err != nil {
		return false, err
	}

	roles, err := d.client.Rest().GetRoles(ids[0], rest.WithCtx(ctx))
	if err != nil {
		return false, err
	}

	selfRoles := make(map[snowflake.ID]bool, len(self.RoleIDs))
	for _, rid := range self.RoleIDs {
		selfRoles[rid] = true
	}

	var canManage bool
	highest := 0
	targetPos := -1
	for _, role := range roles {
		if role.ID == ids[1] {
			targetPos = role.Position
		}
		if !selfRoles[role.ID] {
			continue
		}
		if role.Permissions.Has(discord.PermissionManageRoles) || role.Permissions.Has(discord.PermissionAdministrator) {
			canManage = true
		}
		if role.Position > highest {
			highest = role.Position
		}
	}

	return canManage && targetPos >= 0 && highest > targetPos, nil
}
