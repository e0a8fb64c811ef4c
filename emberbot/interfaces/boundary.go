package interfaces

import "context"

// GuildDirectory resolves guild membership and role state through the chat
// platform. Implementations live at the gateway boundary; engines only see
// this interface so tests can substitute fakes.
type GuildDirectory interface {
	MemberExists(ctx context.Context, guildID, userID string) (bool, error)
	RoleName(ctx context.Context, guildID, roleID string) (string, error)
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// CanManageRole reports whether the bot holds role-management permission
	// and sits above the target role in the hierarchy.
	CanManageRole(ctx context.Context, guildID, roleID string) (bool, error)
}

// LevelUpNotice is the aggregated payload emitted once per level-up pipeline
// run, regardless of how many levels were crossed.
type LevelUpNotice struct {
	GuildID   string
	UserID    string
	ChannelID string
	OldLevel  int
	NewLevel  int
	Roles     []string
	Perks     []string
}

// RewardNotice announces a one-off reward (daily claim, loot box, milestone).
type RewardNotice struct {
	GuildID   string
	UserID    string
	ChannelID string
	Title     string
	Details   string
}

// EventNotice announces an event activation or expiry to the guild's
// configured announcement channel.
type EventNotice struct {
	GuildID   string
	ChannelID string
	EventName string
	Started   bool
	Details   string
}

// NotificationSink delivers structured notices. Delivery failures (closed
// DMs, missing channels) are swallowed by implementations; engines never see
// them as errors.
type NotificationSink interface {
	NotifyLevelUp(ctx context.Context, notice LevelUpNotice)
	NotifyReward(ctx context.Context, notice RewardNotice)
	NotifyEvent(ctx context.Context, notice EventNotice)
}
