package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

// Notifier delivers engine notices as channel embeds, falling back to a DM
// for user-directed notices when the guild has no usable channel. Delivery
// failures are logged and swallowed so engines never block on Discord.
type Notifier struct {
	client   bot.Client
	guildCfg repositories.GuildConfigRepository

	// Rest seams; replaced in tests.
	createMessage func(ctx context.Context, channelID snowflake.ID, embed discord.Embed) error
	createDM      func(ctx context.Context, userID snowflake.ID) (snowflake.ID, error)
}

func NewNotifier(client bot.Client, guildCfg repositories.GuildConfigRepository) *Notifier {
	n := &Notifier{client: client, guildCfg: guildCfg}
	n.createMessage = func(ctx context.Context, channelID snowflake.ID, embed discord.Embed) error {
		_, err := client.Rest().CreateMessage(channelID,
			discord.NewMessageCreateBuilder().SetEmbeds(embed).Build(),
			rest.WithCtx(ctx))
		return err
	}
	n.createDM = func(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
		dm, err := client.Rest().CreateDMChannel(userID, rest.WithCtx(ctx))
		if err != nil {
			return 0, err
		}
		return dm.ID(), nil
	}
	return n
}

var _ interfaces.NotificationSink = (*Notifier)(nil)

// targetChannel prefers the channel the action happened in, falling back to
// the guild's announcement channel.
func (n *Notifier) targetChannel(ctx context.Context, guildID, channelID string) (snowflake.ID, bool) {
	raw := channelID
	if raw == "" {
		cfg, err := n.guildCfg.Get(ctx, guildID)
		if err != nil || cfg.AnnounceChannelID == "" {
			return 0, false
		}
		raw = cfg.AnnounceChannelID
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (n *Notifier) send(ctx context.Context, channelID snowflake.ID, embed discord.Embed) {
	if err := n.createMessage(ctx, channelID, embed); err != nil {
		slog.Warn("Notice delivery failed",
			slog.String("type", "sys"),
			slog.String("channel_id", channelID.String()),
			slog.Any("error", err))
	}
}

// deliver routes a user-directed notice: origin channel, then the announce
// channel, then the user's DM. Closed DMs are swallowed.
func (n *Notifier) deliver(ctx context.Context, guildID, userID, channelID string, embed discord.Embed) {
	if target, ok := n.targetChannel(ctx, guildID, channelID); ok {
		n.send(ctx, target, embed)
		return
	}

	uid, err := snowflake.Parse(userID)
	if err != nil {
		return
	}
	dmID, err := n.createDM(ctx, uid)
	if err != nil {
		slog.Warn("Failed to open DM channel",
			slog.String("type", "sys"),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}
	n.send(ctx, dmID, embed)
}

func (n *Notifier) NotifyLevelUp(ctx context.Context, notice interfaces.LevelUpNotice) {
	desc := fmt.Sprintf("<@%s> reached **Level %d**!", notice.UserID, notice.NewLevel)
	builder := discord.NewEmbedBuilder().
		SetTitle("⬆️ Level Up").
		SetDescription(desc).
		SetColor(config.LevelUpColor)

	if len(notice.Roles) > 0 {
		builder.AddField("Roles Unlocked", strings.Join(notice.Roles, ", "), true)
	}
	if len(notice.Perks) > 0 {
		builder.AddField("Perks Unlocked", strings.Join(notice.Perks, ", "), true)
	}

	n.deliver(ctx, notice.GuildID, notice.UserID, notice.ChannelID, builder.Build())
}

func (n *Notifier) NotifyReward(ctx context.Context, notice interfaces.RewardNotice) {
	n.deliver(ctx, notice.GuildID, notice.UserID, notice.ChannelID, discord.NewEmbedBuilder().
		SetTitle(notice.Title).
		SetDescription(notice.Details).
		SetColor(config.SuccessColor).
		Build())
}

// NotifyEvent is guild-wide, so there is no DM fallback; without a channel
// the notice is dropped.
func (n *Notifier) NotifyEvent(ctx context.Context, notice interfaces.EventNotice) {
	channelID, ok := n.targetChannel(ctx, notice.GuildID, notice.ChannelID)
	if !ok {
		return
	}

	title := "🎉 Event Started: " + notice.EventName
	if !notice.Started {
		title = "🏁 Event Ended: " + notice.EventName
	}
	n.send(ctx, channelID, discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(notice.Details).
		SetColor(config.EventColor).
		Build())
}
