package economy

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/events"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

// Currencies accepted by the ledger.
const (
	CurrencyCoins  = "coins"
	CurrencyTokens = "tokens"
	CurrencyXP     = "xp"
)

// Failure reasons returned in Result.Reason.
const (
	ReasonInvalidCurrency   = "invalid_currency"
	ReasonInvalidAmount     = "invalid_amount"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonInternal          = "internal_error"
)

// Result is the structured outcome of a ledger operation. Domain failures are
// reported through Reason, never as errors across the public boundary.
type Result struct {
	Success     bool
	Reason      string
	BaseAmount  int64
	FinalAmount int64
	Bonus       int64
	Multiplier  float64
	NewBalance  int64
	Required    int64
	Available   int64
}

// XPApplier receives xp-currency grants so level recomputation stays with the
// progression core; wired after construction to avoid a dependency cycle.
type XPApplier func(ctx context.Context, guildID, userID string, amount int64, source string) (newTotal int64, err error)

// Ledger is the reward ledger: every currency mutation flows through here so
// event multipliers and non-negative balances are enforced in one place.
type Ledger struct {
	users    repositories.UserProgressRepository
	registry *events.Registry
	sink     interfaces.NotificationSink
	clock    clock.Clock
	applyXP  XPApplier

	// roll is the uniform source for the daily lucky bonus; replaced in tests.
	roll func() float64
}

func NewLedger(users repositories.UserProgressRepository, registry *events.Registry, sink interfaces.NotificationSink, clk clock.Clock) *Ledger {
	return &Ledger{
		users:    users,
		registry: registry,
		sink:     sink,
		clock:    clk,
		roll:     rand.Float64,
	}
}

// SetXPApplier wires the progression core's AddXP into the xp currency path.
func (l *Ledger) SetXPApplier(fn XPApplier) {
	l.applyXP = fn
}

func eventKindFor(currency string) models.EventKind {
	switch currency {
	case CurrencyCoins:
		return models.EventCoinMultiplier
	case CurrencyTokens:
		return models.EventTokenBonus
	default:
		return models.EventXPMultiplier
	}
}

func validCurrency(currency string) bool {
	switch currency {
	case CurrencyCoins, CurrencyTokens, CurrencyXP:
		return true
	}
	return false
}

// GiveCurrency runs the amount through active event modifiers and persists
// the increment. Balances only grow through this path.
func (l *Ledger) GiveCurrency(ctx context.Context, guildID, userID, currency string, amount int64, source string) Result {
	if !validCurrency(currency) {
		return Result{Reason: ReasonInvalidCurrency}
	}
	if amount <= 0 {
		return Result{Reason: ReasonInvalidAmount}
	}

	if _, err := l.users.GetOrCreate(ctx, guildID, userID); err != nil {
		slog.Error("Failed to ensure user before grant",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return Result{Reason: ReasonInternal}
	}

	breakdown := l.registry.ApplyEventRewards(guildID, amount, eventKindFor(currency))

	var newBalance int64
	var err error
	if currency == CurrencyXP {
		if l.applyXP == nil {
			return Result{Reason: ReasonInternal}
		}
		newBalance, err = l.applyXP(ctx, guildID, userID, breakdown.FinalAmount, source)
	} else {
		newBalance, err = l.users.AddBalance(ctx, guildID, userID, currency, breakdown.FinalAmount)
	}
	if err != nil {
		slog.Error("Failed to persist currency grant",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.String("currency", currency),
			slog.Int64("amount", breakdown.FinalAmount),
			slog.Any("error", err))
		return Result{Reason: ReasonInternal}
	}

	return Result{
		Success:     true,
		BaseAmount:  breakdown.BaseAmount,
		FinalAmount: breakdown.FinalAmount,
		Bonus:       breakdown.Bonus,
		Multiplier:  breakdown.Multiplier,
		NewBalance:  newBalance,
	}
}

// TakeCurrency decrements a balance, failing with insufficient_funds when the
// balance does not cover the amount. XP cannot be taken through this path.
func (l *Ledger) TakeCurrency(ctx context.Context, guildID, userID, currency string, amount int64, source string) Result {
	if currency != CurrencyCoins && currency != CurrencyTokens {
		return Result{Reason: ReasonInvalidCurrency}
	}
	if amount <= 0 {
		return Result{Reason: ReasonInvalidAmount}
	}

	user, err := l.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return Result{Reason: ReasonInternal}
	}

	newBalance, ok, err := l.users.TakeBalance(ctx, guildID, userID, currency, amount)
	if err != nil {
		slog.Error("Failed to persist currency debit",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.String("currency", currency),
			slog.Int64("amount", amount),
			slog.Any("error", err))
		return Result{Reason: ReasonInternal}
	}
	if !ok {
		available := user.Coins
		if currency == CurrencyTokens {
			available = user.Tokens
		}
		return Result{
			Reason:    ReasonInsufficientFunds,
			Required:  amount,
			Available: available,
		}
	}

	return Result{
		Success:     true,
		BaseAmount:  amount,
		FinalAmount: amount,
		Multiplier:  1,
		NewBalance:  newBalance,
	}
}

// TransferCurrency moves an amount between two users of the same guild with
// take-then-give semantics. The give leg credits the raw amount without event
// modifiers. If the give leg fails a compensating give-back is issued; the
// compensation is best effort and not atomic against concurrent mutation of
// the source account.
func (l *Ledger) TransferCurrency(ctx context.Context, guildID, fromID, toID, currency string, amount int64) Result {
	take := l.TakeCurrency(ctx, guildID, fromID, currency, amount, "transfer")
	if !take.Success {
		return take
	}

	if _, err := l.users.GetOrCreate(ctx, guildID, toID); err == nil {
		if _, err := l.users.AddBalance(ctx, guildID, toID, currency, amount); err == nil {
			return Result{Success: true, BaseAmount: amount, FinalAmount: amount, Multiplier: 1, NewBalance: take.NewBalance}
		}
	}

	// Give leg failed: return the funds to the sender.
	if _, err := l.users.AddBalance(ctx, guildID, fromID, currency, amount); err != nil {
		slog.Error("Transfer compensation failed, funds lost",
			slog.String("type", "error"),
			slog.String("guild_id", guildID),
			slog.String("from", fromID),
			slog.String("to", toID),
			slog.Int64("amount", amount),
			slog.Any("error", err))
	}
	return Result{Reason: ReasonInternal}
}

// sameCalendarDay compares two instants in UTC.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// calendarDaysBetween returns the whole-day distance between two instants'
// UTC dates.
func calendarDaysBetween(earlier, later time.Time) int {
	e := earlier.UTC().Truncate(24 * time.Hour)
	lt := later.UTC().Truncate(24 * time.Hour)
	return int(lt.Sub(e) / (24 * time.Hour))
}
