package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserProgress is the persistent progression record for a member of a guild.
// Rows are created on first activity and never deleted; an admin reset only
// clears fields back to their defaults.
type UserProgress struct {
	bun.BaseModel `bun:"table:user_progress,alias:up"`

	ID      int64  `bun:"id,pk,autoincrement"`
	GuildID string `bun:"guild_id,notnull"`
	UserID  string `bun:"user_id,notnull"`

	// Progression
	XP      int64 `bun:"xp,notnull,default:0"`
	TotalXP int64 `bun:"total_xp,notnull,default:0"`
	Level   int   `bun:"level,notnull,default:0"`

	// Currencies
	Coins  int64 `bun:"coins,notnull,default:0"`
	Tokens int64 `bun:"tokens,notnull,default:0"`

	// Boost
	BoostMultiplier float64   `bun:"boost_multiplier,notnull,default:1"`
	BoostExpiresAt  time.Time `bun:"boost_expires_at,nullzero"`

	// Daily reward streak
	StreakDays  int       `bun:"streak_days,notnull,default:0"`
	LastDailyAt time.Time `bun:"last_daily_at,nullzero"`

	// Unlocks stored as JSONB
	Perks     []string `bun:"perks,type:jsonb"`
	Inventory []string `bun:"inventory,type:jsonb"`

	// Black market risk profile
	Heat             int       `bun:"heat,notnull,default:0"`
	Jailed           bool      `bun:"jailed,notnull,default:false"`
	JailUntil        time.Time `bun:"jail_until,nullzero"`
	BannedUntil      time.Time `bun:"banned_until,nullzero"`
	LastBlackMarket  time.Time `bun:"last_black_market,nullzero"`
	RiskBets         int       `bun:"risk_bets,notnull,default:0"`
	RiskTimesCaught  int       `bun:"risk_times_caught,notnull,default:0"`
	RiskTimesRobbed  int       `bun:"risk_times_robbed,notnull,default:0"`

	// Activity counters. The *_today columns reset with the daily sweep and
	// back the guild's daily earning caps.
	VoiceMinutes  int64     `bun:"voice_minutes,notnull,default:0"`
	MessagesToday int       `bun:"messages_today,notnull,default:0"`
	XPToday       int64     `bun:"xp_today,notnull,default:0"`
	CoinsToday    int64     `bun:"coins_today,notnull,default:0"`
	BoxesOpened   int       `bun:"boxes_opened,notnull,default:0"`
	LastMessageAt time.Time `bun:"last_message_at,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// BoostActive reports whether the user's purchased boost still applies.
func (u *UserProgress) BoostActive(now time.Time) bool {
	return u.BoostMultiplier > 1 && u.BoostExpiresAt.After(now)
}

// ActiveBoost returns the multiplier to apply to gains, 1.0 when no boost
// is running.
func (u *UserProgress) ActiveBoost(now time.Time) float64 {
	if u.BoostActive(now) {
		return u.BoostMultiplier
	}
	return 1.0
}

// Banned reports whether the user is currently locked out of the black market.
func (u *UserProgress) Banned(now time.Time) bool {
	return u.BannedUntil.After(now)
}

// HasPerk reports whether the perk id has already been granted.
func (u *UserProgress) HasPerk(id string) bool {
	for _, p := range u.Perks {
		if p == id {
			return true
		}
	}
	return false
}
