package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/uptrace/bun"
)

// ErrUnknownCurrency is returned for balance operations on a currency column
// that does not exist.
var ErrUnknownCurrency = errors.New("unknown currency")

type UserProgressRepository interface {
	Get(ctx context.Context, guildID, userID string) (*models.UserProgress, error)
	GetOrCreate(ctx context.Context, guildID, userID string) (*models.UserProgress, error)
	Update(ctx context.Context, user *models.UserProgress) error

	// AddBalance atomically increments a currency column and returns the new
	// balance. The increment never takes a balance below zero because callers
	// only pass positive deltas through this path.
	AddBalance(ctx context.Context, guildID, userID, currency string, delta int64) (int64, error)

	// TakeBalance atomically decrements a currency column only when the
	// balance covers the amount. The second return reports whether the debit
	// happened.
	TakeBalance(ctx context.Context, guildID, userID, currency string, amount int64) (int64, bool, error)

	// AddXP atomically increments xp and total_xp and returns the new total.
	AddXP(ctx context.Context, guildID, userID string, delta int64) (int64, error)
	SetLevel(ctx context.Context, guildID, userID string, level int) error
	SetXP(ctx context.Context, guildID, userID string, totalXP int64, level int) error

	IncrementMessageStats(ctx context.Context, guildID, userID string, at time.Time) error

	// AddDailyEarned bumps the per-day earning accumulators that back the
	// guild's daily caps.
	AddDailyEarned(ctx context.Context, guildID, userID string, xp, coins int64) error

	// ResetDailyCounters zeroes messages_today, xp_today and coins_today for
	// every user; registered on the daily sweep.
	ResetDailyCounters(ctx context.Context) error

	AddVoiceMinutes(ctx context.Context, guildID, userID string, minutes int64) error

	// SetDailyClaim records a successful daily claim without touching the
	// balance columns, which are incremented atomically elsewhere.
	SetDailyClaim(ctx context.Context, guildID, userID string, streak int, at time.Time) error

	// UpdateRiskProfile writes only the black-market columns from the struct.
	UpdateRiskProfile(ctx context.Context, user *models.UserProgress) error

	SetBoost(ctx context.Context, guildID, userID string, multiplier float64, until time.Time) error
	AddInventory(ctx context.Context, guildID, userID, itemID string) error
	AddPerk(ctx context.Context, guildID, userID, perkID string) error
	IncrementBoxesOpened(ctx context.Context, guildID, userID string) error

	TopByXP(ctx context.Context, guildID string, limit int) ([]*models.UserProgress, error)
	Reset(ctx context.Context, guildID, userID string) error
}

type userProgressRepository struct {
	db *bun.DB
}

func NewUserProgressRepository(db *bun.DB) UserProgressRepository {
	return &userProgressRepository{db: db}
}

// currencyColumn maps a public currency name onto its column. Balances are
// only ever touched through this whitelist.
func currencyColumn(currency string) (string, error) {
	switch currency {
	case "coins":
		return "coins", nil
	case "tokens":
		return "tokens", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
}

func (r *userProgressRepository) Get(ctx context.Context, guildID, userID string) (*models.UserProgress, error) {
	user := new(models.UserProgress)
	err := r.db.NewSelect().
		Model(user).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userProgressRepository) GetOrCreate(ctx context.Context, guildID, userID string) (*models.UserProgress, error) {
	user, err := r.Get(ctx, guildID, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now()
	fresh := &models.UserProgress{
		GuildID:         guildID,
		UserID:          userID,
		BoostMultiplier: 1,
		Perks:           []string{},
		Inventory:       []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = r.db.NewInsert().
		Model(fresh).
		On("CONFLICT (guild_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create user progress: %w", err)
	}

	// Re-read so a concurrent creator's row wins.
	return r.Get(ctx, guildID, userID)
}

func (r *userProgressRepository) Update(ctx context.Context, user *models.UserProgress) error {
	user.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(user).
		WherePK().
		Exec(ctx)
	return err
}

func (r *userProgressRepository) AddBalance(ctx context.Context, guildID, userID, currency string, delta int64) (int64, error) {
	col, err := currencyColumn(currency)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set(col+" = "+col+" + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Returning(col).
		Scan(ctx, &balance)
	if err != nil {
		return 0, fmt.Errorf("failed to add balance: %w", err)
	}
	return balance, nil
}

func (r *userProgressRepository) TakeBalance(ctx context.Context, guildID, userID, currency string, amount int64) (int64, bool, error) {
	col, err := currencyColumn(currency)
	if err != nil {
		return 0, false, err
	}

	var balance int64
	err = r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set(col+" = "+col+" - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Where(col+" >= ?", amount).
		Returning(col).
		Scan(ctx, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to take balance: %w", err)
	}
	return balance, true, nil
}

func (r *userProgressRepository) AddXP(ctx context.Context, guildID, userID string, delta int64) (int64, error) {
	var totalXP int64
	err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("xp = xp + ?", delta).
		Set("total_xp = total_xp + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Returning("total_xp").
		Scan(ctx, &totalXP)
	if err != nil {
		return 0, fmt.Errorf("failed to add xp: %w", err)
	}
	return totalXP, nil
}

func (r *userProgressRepository) SetLevel(ctx context.Context, guildID, userID string, level int) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("level = ?", level).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) SetXP(ctx context.Context, guildID, userID string, totalXP int64, level int) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("xp = ?", totalXP).
		Set("total_xp = ?", totalXP).
		Set("level = ?", level).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) IncrementMessageStats(ctx context.Context, guildID, userID string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("messages_today = messages_today + 1").
		Set("last_message_at = ?", at).
		Set("updated_at = ?", at).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) AddDailyEarned(ctx context.Context, guildID, userID string, xp, coins int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("xp_today = xp_today + ?", xp).
		Set("coins_today = coins_today + ?", coins).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) ResetDailyCounters(ctx context.Context) error {
	res, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("messages_today = 0").
		Set("xp_today = 0").
		Set("coins_today = 0").
		Where("messages_today > 0 OR xp_today > 0 OR coins_today > 0").
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		slog.Debug("Reset daily counters",
			slog.String("type", "db"),
			slog.Int64("rows", rows))
	}
	return nil
}

func (r *userProgressRepository) AddVoiceMinutes(ctx context.Context, guildID, userID string, minutes int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("voice_minutes = voice_minutes + ?", minutes).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) SetDailyClaim(ctx context.Context, guildID, userID string, streak int, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("streak_days = ?", streak).
		Set("last_daily_at = ?", at).
		Set("updated_at = ?", at).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) UpdateRiskProfile(ctx context.Context, user *models.UserProgress) error {
	_, err := r.db.NewUpdate().
		Model(user).
		Column("heat", "jailed", "jail_until", "banned_until", "last_black_market",
			"risk_bets", "risk_times_caught", "risk_times_robbed").
		Set("updated_at = ?", time.Now()).
		WherePK().
		Exec(ctx)
	return err
}

func (r *userProgressRepository) SetBoost(ctx context.Context, guildID, userID string, multiplier float64, until time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("boost_multiplier = ?", multiplier).
		Set("boost_expires_at = ?", until).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) AddInventory(ctx context.Context, guildID, userID, itemID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("inventory = COALESCE(inventory, '[]'::jsonb) || to_jsonb(?::text)", itemID).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) AddPerk(ctx context.Context, guildID, userID, perkID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("perks = COALESCE(perks, '[]'::jsonb) || to_jsonb(?::text)", perkID).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Where("NOT (COALESCE(perks, '[]'::jsonb) @> to_jsonb(?::text))", perkID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) IncrementBoxesOpened(ctx context.Context, guildID, userID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("boxes_opened = boxes_opened + 1").
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *userProgressRepository) TopByXP(ctx context.Context, guildID string, limit int) ([]*models.UserProgress, error) {
	var users []*models.UserProgress
	err := r.db.NewSelect().
		Model(&users).
		Where("guild_id = ?", guildID).
		OrderExpr("total_xp DESC").
		Limit(limit).
		Scan(ctx)
	return users, err
}

func (r *userProgressRepository) Reset(ctx context.Context, guildID, userID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.UserProgress)(nil)).
		Set("xp = 0").
		Set("total_xp = 0").
		Set("level = 0").
		Set("coins = 0").
		Set("tokens = 0").
		Set("boost_multiplier = 1").
		Set("boost_expires_at = NULL").
		Set("streak_days = 0").
		Set("heat = 0").
		Set("jailed = false").
		Set("jail_until = NULL").
		Set("perks = '[]'::jsonb").
		Set("inventory = '[]'::jsonb").
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}
