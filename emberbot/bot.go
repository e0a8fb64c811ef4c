package emberbot

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
	"github.com/mirabeldev/ember/emberbot/database"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/economy/blackmarket"
	"github.com/mirabeldev/ember/emberbot/events"
	"github.com/mirabeldev/ember/emberbot/interfaces"
	"github.com/mirabeldev/ember/emberbot/lootbox"
	"github.com/mirabeldev/ember/emberbot/progression"
	"github.com/mirabeldev/ember/emberbot/ratelimit"
	"github.com/mirabeldev/ember/emberbot/scheduler"
	"github.com/mirabeldev/ember/emberbot/voice"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Clock:     clock.New(),
		Version:   version,
		Commit:    commit,
	}
}

// Bot carries the wired application graph. Engines only see repository and
// boundary interfaces; the concrete Discord client lives here.
type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Clock     clock.Clock
	Version   string
	Commit    string

	DB              *database.DB
	UserRepository  repositories.UserProgressRepository
	GuildRepository repositories.GuildConfigRepository
	EventRepository repositories.EventRepository
	ShopRepository  repositories.ShopItemRepository

	Directory interfaces.GuildDirectory
	Notifier  interfaces.NotificationSink

	EventRegistry *events.Registry
	Ledger        *economy.Ledger
	Shop          *economy.Shop
	Market        *blackmarket.Market
	Progression   *progression.Core
	VoiceTracker  *voice.Tracker
	Spawner       *lootbox.Spawner
	Limiter       *ratelimit.Limiter
	Scheduler     *scheduler.Scheduler
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentGuildMessages,
			gateway.IntentMessageContent,
			gateway.IntentGuildVoiceStates,
		)),
		bot.WithCacheConfigOpts(cache.WithCaches(
			cache.FlagGuilds,
			cache.FlagRoles,
			cache.FlagVoiceStates,
		)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *disgoevents.Ready) {
	slog.Info("Ember is now ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the leaderboard"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}

// OnGuildReady seeds the default event catalog for the guild and rebuilds
// voice sessions from the current channel occupancy.
func (b *Bot) OnGuildReady(e *disgoevents.GuildReady) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	guildID := e.Guild.ID.String()

	if b.Cfg.Bot.SeedDefaults {
		for _, ev := range database.DefaultEventCatalog(guildID) {
			if err := b.EventRepository.Create(ctx, ev); err != nil {
				slog.Error("Failed to seed event catalog",
					slog.String("type", "db"),
					slog.String("guild_id", guildID),
					slog.String("event_id", ev.EventID),
					slog.Any("error", err))
				break
			}
		}
	}

	var present []voice.Presence
	b.Client.Caches().VoiceStatesForEach(e.Guild.ID, func(vs discord.VoiceState) {
		if vs.ChannelID == nil {
			return
		}
		present = append(present, voice.Presence{
			GuildID:   guildID,
			UserID:    vs.UserID.String(),
			ChannelID: vs.ChannelID.String(),
			Muted:     vs.SelfMute || vs.SelfDeaf || vs.GuildMute || vs.GuildDeaf,
		})
	})
	if len(present) > 0 {
		b.VoiceTracker.Rehydrate(present)
	}
}
