package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/commands"
	appconfig "github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/database"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/economy/blackmarket"
	"github.com/mirabeldev/ember/emberbot/events"
	"github.com/mirabeldev/ember/emberbot/handlers"
	"github.com/mirabeldev/ember/emberbot/logger"
	"github.com/mirabeldev/ember/emberbot/lootbox"
	"github.com/mirabeldev/ember/emberbot/migration"
	"github.com/mirabeldev/ember/emberbot/progression"
	"github.com/mirabeldev/ember/emberbot/ratelimit"
	"github.com/mirabeldev/ember/emberbot/scheduler"
	"github.com/mirabeldev/ember/emberbot/voice"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	legacyDump := flag.String("import-legacy", "", "path to a legacy users.bson dump to import, then exit")
	flag.Parse()

	cfg, err := emberbot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	slog.Info("Starting Ember",
		slog.String("type", "sys"),
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbStart := time.Now()
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("type", "db"),
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStart)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("type", "db"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	if cfg.Bot.SeedDefaults {
		if err := db.SeedShopItems(ctx); err != nil {
			slog.Error("Failed to seed shop catalog",
				slog.String("type", "db"),
				slog.Any("error", err))
			os.Exit(-1)
		}
	}
	slog.Info("Database ready",
		slog.String("type", "db"),
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStart)))

	if *legacyDump != "" {
		if err := migration.NewMigrator(db.BunDB(), *legacyDump).Run(ctx); err != nil {
			slog.Error("Legacy import failed",
				slog.String("type", "db"),
				slog.Any("error", err))
			os.Exit(-1)
		}
		return
	}

	b := emberbot.New(*cfg, version, commit)
	b.DB = db
	b.UserRepository = repositories.NewUserProgressRepository(db.BunDB())
	b.GuildRepository = repositories.NewGuildConfigRepository(db.BunDB())
	b.EventRepository = repositories.NewEventRepository(db.BunDB())
	b.ShopRepository = repositories.NewShopItemRepository(db.BunDB())

	h := handler.New()
	h.Command("/daily", handlers.WrapWithLogging("daily", commands.DailyHandler(b)))
	h.Command("/balance", handlers.WrapWithLogging("balance", commands.BalanceHandler(b)))
	h.Command("/rank", handlers.WrapWithLogging("rank", commands.RankHandler(b)))
	h.Command("/leaderboard", handlers.WrapWithLogging("leaderboard", commands.LeaderboardHandler(b)))
	h.Command("/pay", handlers.WrapWithLogging("pay", commands.PayHandler(b)))
	h.Command("/gamble", handlers.WrapWithLogging("gamble", commands.GambleHandler(b)))
	h.Command("/blackmarket", handlers.WrapWithLogging("blackmarket", commands.BlackMarketHandler(b)))
	h.Command("/shop", handlers.WrapWithLogging("shop", commands.ShopHandler(b)))
	h.Autocomplete("/shop", handlers.WrapAutocompleteWithLogging("shop", commands.ShopAutocompleteHandler(b)))
	h.Command("/lootbox", handlers.WrapWithLogging("lootbox", commands.LootBoxHandler(b)))
	h.Command("/event", handlers.WrapWithLogging("event", commands.EventHandler(b)))
	h.Command("/xpadmin", handlers.WrapWithLogging("xpadmin", commands.XPAdminHandler(b)))
	h.Command("/progression", handlers.WrapWithLogging("progression", commands.GuildSettingsHandler(b)))

	if err = b.SetupBot(h,
		bot.NewListenerFunc(b.OnReady),
		bot.NewListenerFunc(b.OnGuildReady),
	); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		b.Client.Close(closeCtx)
	}()

	// Boundary adapters need the client; engines only see the interfaces.
	b.Directory = handlers.NewDirectory(b.Client)
	b.Notifier = handlers.NewNotifier(b.Client, b.GuildRepository)

	b.EventRegistry = events.NewRegistry(b.EventRepository, b.GuildRepository, b.Notifier, b.Clock)
	b.Ledger = economy.NewLedger(b.UserRepository, b.EventRegistry, b.Notifier, b.Clock)
	b.Progression = progression.NewCore(b.UserRepository, b.GuildRepository, b.Directory, b.Notifier, b.Ledger, b.Clock)
	b.Shop = economy.NewShop(b.ShopRepository, b.UserRepository, b.Ledger, b.Directory, b.Clock)
	b.Market = blackmarket.NewMarket(b.UserRepository, b.Ledger, b.Clock)
	b.VoiceTracker = voice.NewTracker(b.UserRepository, b.GuildRepository, b.Ledger, b.Clock)
	b.Spawner = lootbox.NewSpawner(b.EventRegistry, b.Ledger, b.Clock)

	b.Limiter = ratelimit.New(b.Clock, ratelimit.Rule{
		Limit:  appconfig.CommandRateLimit,
		Window: appconfig.CommandRateWindow,
	})
	b.Limiter.SetRule("gamble", ratelimit.Rule{
		Limit:  appconfig.GambleRateLimit,
		Window: appconfig.GambleRateWindow,
	})

	b.Client.AddEventListeners(
		handlers.MessageHandler(b.Progression, b.Spawner, b.UserRepository),
		handlers.VoiceHandler(b.VoiceTracker),
	)

	if err := b.EventRegistry.RefreshIndex(ctx); err != nil {
		slog.Error("Failed to build the active event index",
			slog.String("type", "db"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	b.Scheduler = scheduler.New(b.Clock)
	b.Scheduler.Every("event-activation", appconfig.EventScanInterval, b.EventRegistry.ActivationScan)
	b.Scheduler.Every("event-expiry", appconfig.EventExpiryInterval, b.EventRegistry.ExpiryScan)
	b.Scheduler.Every("event-prune", appconfig.EventPruneInterval, b.EventRegistry.PruneIndex)
	b.Scheduler.Every("voice-flush", appconfig.VoiceFlushInterval, b.VoiceTracker.FlushAll)
	b.Scheduler.Every("voice-backup", appconfig.VoiceBackupInterval, b.VoiceTracker.PersistAll)
	b.Scheduler.Every("ratelimit-sweep", appconfig.RateLimitSweepInterval, b.Limiter.Cleanup)
	b.Scheduler.Every("lootbox-prune", appconfig.CooldownPruneInterval, b.Spawner.PruneCooldowns)
	b.Scheduler.Every("daily-reset", appconfig.DailyResetInterval, func(ctx context.Context) {
		if err := b.UserRepository.ResetDailyCounters(ctx); err != nil {
			slog.Error("Failed to reset daily counters",
				slog.String("type", "db"),
				slog.Any("error", err))
		}
	})

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
			os.Exit(-1)
		}
	}

	gwCtx, gwCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gwCancel()
	if err = b.Client.OpenGateway(gwCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Ember is running. Press CTRL-C to exit.", slog.String("type", "sys"))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s

	slog.Info("Shutting down...", slog.String("type", "sys"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Settle voice earnings before the process dies.
	b.VoiceTracker.FlushAll(shutdownCtx)
	b.VoiceTracker.PersistAll(shutdownCtx)

	if err := b.Scheduler.Shutdown(10 * time.Second); err != nil {
		slog.Warn("Scheduler jobs still running at shutdown",
			slog.String("type", "sys"),
			slog.Any("error", err))
	}
}
