package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/uptrace/bun"
)

type GuildConfigRepository interface {
	// Get returns the guild's config, creating a default row on first access.
	Get(ctx context.Context, guildID string) (*models.GuildConfig, error)
	Save(ctx context.Context, cfg *models.GuildConfig) error
	Invalidate(guildID string)
}

type guildConfigRepository struct {
	db    *bun.DB
	cache *lru.Cache
}

func NewGuildConfigRepository(db *bun.DB) GuildConfigRepository {
	cache, _ := lru.New(config.GuildConfigCacheSize)
	return &guildConfigRepository{db: db, cache: cache}
}

func (r *guildConfigRepository) Get(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	if cached, ok := r.cache.Get(guildID); ok {
		return cached.(*models.GuildConfig), nil
	}

	cfg := new(models.GuildConfig)
	err := r.db.NewSelect().
		Model(cfg).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		cfg = models.NewGuildConfig(guildID)
		cfg.CreatedAt = time.Now()
		cfg.UpdatedAt = cfg.CreatedAt
		if _, err := r.db.NewInsert().
			Model(cfg).
			On("CONFLICT (guild_id) DO NOTHING").
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to create default guild config: %w", err)
		}
		slog.Info("Created default guild config",
			slog.String("type", "db"),
			slog.String("guild_id", guildID))
	} else if err != nil {
		return nil, err
	}

	r.cache.Add(guildID, cfg)
	return cfg, nil
}

func (r *guildConfigRepository) Save(ctx context.Context, cfg *models.GuildConfig) error {
	cfg.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(cfg).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("base_xp = EXCLUDED.base_xp").
		Set("growth_rate = EXCLUDED.growth_rate").
		Set("message_xp_min = EXCLUDED.message_xp_min").
		Set("message_xp_max = EXCLUDED.message_xp_max").
		Set("message_cooldown_ms = EXCLUDED.message_cooldown_ms").
		Set("voice_coins_per_minute = EXCLUDED.voice_coins_per_minute").
		Set("daily_xp_cap = EXCLUDED.daily_xp_cap").
		Set("daily_coin_cap = EXCLUDED.daily_coin_cap").
		Set("channel_multipliers = EXCLUDED.channel_multipliers").
		Set("role_multipliers = EXCLUDED.role_multipliers").
		Set("level_roles = EXCLUDED.level_roles").
		Set("event_auto_start = EXCLUDED.event_auto_start").
		Set("announce_channel_id = EXCLUDED.announce_channel_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save guild config: %w", err)
	}
	r.cache.Remove(cfg.GuildID)
	return nil
}

func (r *guildConfigRepository) Invalidate(guildID string) {
	r.cache.Remove(guildID)
}
