package models

import (
	"time"

	"github.com/uptrace/bun"
)

// GuildConfig holds the per-guild progression settings. A row is created
// lazily with defaults the first time a guild is seen.
type GuildConfig struct {
	bun.BaseModel `bun:"table:guild_configs,alias:gc"`

	GuildID string `bun:"guild_id,pk"`

	// Level curve
	BaseXP     int64   `bun:"base_xp,notnull,default:100"`
	GrowthRate float64 `bun:"growth_rate,notnull,default:1.5"`

	// Message XP
	MessageXPMin      int64 `bun:"message_xp_min,notnull,default:15"`
	MessageXPMax      int64 `bun:"message_xp_max,notnull,default:25"`
	MessageCooldownMS int64 `bun:"message_cooldown_ms,notnull,default:60000"`

	// Voice accrual
	VoiceCoinsPerMinute int64 `bun:"voice_coins_per_minute,notnull,default:5"`

	// Daily caps
	DailyXPCap   int64 `bun:"daily_xp_cap,notnull,default:0"`
	DailyCoinCap int64 `bun:"daily_coin_cap,notnull,default:0"`

	// Multipliers keyed by channel/role id, stored as JSONB
	ChannelMultipliers map[string]float64 `bun:"channel_multipliers,type:jsonb"`
	RoleMultipliers    map[string]float64 `bun:"role_multipliers,type:jsonb"`

	// Level role rewards
	LevelRoles []LevelRole `bun:"level_roles,type:jsonb"`

	// Event settings
	EventAutoStart    bool   `bun:"event_auto_start,notnull,default:true"`
	AnnounceChannelID string `bun:"announce_channel_id,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// LevelRole maps a level milestone to a role reward.
type LevelRole struct {
	Level      int    `json:"level"`
	RoleID     string `json:"role_id"`
	Stackable  bool   `json:"stackable"`
	AutoRemove bool   `json:"auto_remove"`
}

// ChannelMultiplier returns the configured multiplier for a channel, 1.0 when
// unset.
func (c *GuildConfig) ChannelMultiplier(channelID string) float64 {
	if m, ok := c.ChannelMultipliers[channelID]; ok && m > 0 {
		return m
	}
	return 1.0
}

// RolesForLevel returns the role rewards configured at exactly the given level.
func (c *GuildConfig) RolesForLevel(level int) []LevelRole {
	var out []LevelRole
	for _, lr := range c.LevelRoles {
		if lr.Level == level {
			out = append(out, lr)
		}
	}
	return out
}

// NewGuildConfig returns a config row populated with defaults.
func NewGuildConfig(guildID string) *GuildConfig {
	return &GuildConfig{
		GuildID:             guildID,
		BaseXP:              100,
		GrowthRate:          1.5,
		MessageXPMin:        15,
		MessageXPMax:        25,
		MessageCooldownMS:   60000,
		VoiceCoinsPerMinute: 5,
		EventAutoStart:      true,
		ChannelMultipliers:  map[string]float64{},
		RoleMultipliers:     map[string]float64{},
	}
}
