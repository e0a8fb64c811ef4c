package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	SSLMode      string `toml:"ssl_mode"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

// New dials the database with retries, then builds the pgx pool and the bun
// handle on top of it.
func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	var conn net.Conn
	var err error
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			break
		}
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	conn.Close()

	poolConfig, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connString(cfg))))
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	return &DB{pool: pool, bunDB: bunDB}, nil
}

func connString(cfg DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode,
	)
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) Close() {
	db.pool.Close()
	if err := db.bunDB.Close(); err != nil {
		slog.Error("Failed to close bun connection",
			slog.String("type", "db"),
			slog.Any("error", err))
	}
}

// InitializeSchema creates the application tables and indexes.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.GuildConfig)(nil),
		(*models.UserProgress)(nil),
		(*models.Event)(nil),
		(*models.ShopItem)(nil),
	}

	for _, model := range tables {
		_, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_user_progress_guild_user ON user_progress(guild_id, user_id);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_events_guild_event ON events(guild_id, event_id);",
		"CREATE INDEX IF NOT EXISTS idx_events_guild_active ON events(guild_id) WHERE active;",
		"CREATE INDEX IF NOT EXISTS idx_user_progress_total_xp ON user_progress(guild_id, total_xp DESC);",
		"CREATE INDEX IF NOT EXISTS idx_user_progress_messages_today ON user_progress(messages_today) WHERE messages_today > 0;",
	}
	for _, idx := range indexes {
		if _, err := db.bunDB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// defaultShopItems is the catalog seeded into empty guild-less shops.
var defaultShopItems = []*models.ShopItem{
	{
		ID:          "xp_boost_2x_24h",
		Name:        "XP Boost (2x, 24h)",
		Description: "Doubles XP and reward gains for a day.",
		Price:       5_000,
		Currency:    "coins",
		Stock:       -1,
		BoostMultiplier: 2.0,
		BoostHours:      24,
	},
	{
		ID:          "xp_boost_3x_6h",
		Name:        "XP Surge (3x, 6h)",
		Description: "Triples XP and reward gains for six hours.",
		Price:       150,
		Currency:    "tokens",
		Stock:       -1,
		MinLevel:    10,
		BoostMultiplier: 3.0,
		BoostHours:      6,
	},
	{
		ID:          "custom_color",
		Name:        "Custom Name Color",
		Description: "A cosmetic color unlock for your name.",
		Price:       25_000,
		Currency:    "coins",
		Stock:       -1,
		MinLevel:    15,
	},
	{
		ID:          "vip_week",
		Name:        "VIP Pass (1 week)",
		Description: "Limited VIP access, while stock lasts.",
		Price:       500,
		Currency:    "tokens",
		Stock:       25,
		MinLevel:    25,
	},
}

// SeedShopItems inserts the default catalog, leaving existing rows alone.
func (db *DB) SeedShopItems(ctx context.Context) error {
	for _, item := range defaultShopItems {
		item.UpdatedAt = time.Now()
		_, err := db.bunDB.NewInsert().
			Model(item).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed shop item %s: %w", item.ID, err)
		}
	}
	slog.Info("Shop catalog seeded",
		slog.String("type", "db"),
		slog.Int("items", len(defaultShopItems)))
	return nil
}

// DefaultEventCatalog returns the stock recurring events for a guild.
func DefaultEventCatalog(guildID string) []*models.Event {
	return []*models.Event{
		{
			GuildID:    guildID,
			EventID:    "double_xp_weekend",
			Name:       "Double XP Weekend",
			Kind:       models.EventXPMultiplier,
			Multiplier: 2.0,
			Schedule: models.Schedule{
				Weekdays: []time.Weekday{time.Saturday, time.Sunday},
			},
		},
		{
			GuildID:    guildID,
			EventID:    "happy_hour",
			Name:       "Happy Hour",
			Kind:       models.EventCoinMultiplier,
			Multiplier: 1.5,
			Schedule: models.Schedule{
				StartHour: 18,
				EndHour:   20,
			},
		},
		{
			GuildID: guildID,
			EventID: "token_tuesday",
			Name:    "Token Tuesday",
			Kind:    models.EventTokenBonus,
			Bonus:   10,
			Schedule: models.Schedule{
				Weekdays: []time.Weekday{time.Tuesday},
			},
		},
		{
			GuildID:    guildID,
			EventID:    "market_day",
			Name:       "Market Day",
			Kind:       models.EventSale,
			Multiplier: 0.25,
			Schedule: models.Schedule{
				MonthDays: []int{1, 15},
			},
		},
		{
			GuildID:    guildID,
			EventID:    "box_party",
			Name:       "Box Party",
			Kind:       models.EventBoxBonus,
			Multiplier: 2.0,
			Schedule: models.Schedule{
				Weekdays:  []time.Weekday{time.Friday},
				StartHour: 20,
				EndHour:   23,
			},
		},
	}
}
