package economy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

const (
	dailyBaseReward      = 500
	dailyStreakBonusUnit = 100
	dailyLuckyChance     = 0.10
)

// ReasonAlreadyClaimed is returned when the daily reward was already claimed
// on the current calendar day.
const ReasonAlreadyClaimed = "already_claimed"

// streakMilestones grants fixed bundles on top of the computed reward when a
// named streak length is reached.
var streakMilestones = map[int]struct {
	Coins  int64
	Tokens int64
}{
	3:  {Coins: 250, Tokens: 5},
	7:  {Coins: 750, Tokens: 15},
	14: {Coins: 2000, Tokens: 40},
	30: {Coins: 5000, Tokens: 100},
	60: {Coins: 12500, Tokens: 250},
}

// DailyResult reports a daily claim outcome.
type DailyResult struct {
	Success         bool
	Reason          string
	Remaining       time.Duration
	Coins           int64
	Streak          int
	StreakBroken    bool
	Lucky           bool
	MilestoneCoins  int64
	MilestoneTokens int64
	NewBalance      int64
}

// GiveDailyReward claims the daily reward. Streak continuity requires
// claiming on consecutive calendar days; any gap over one day resets the
// streak to 1.
func (l *Ledger) GiveDailyReward(ctx context.Context, guildID, userID string) DailyResult {
	now := l.clock.Now()

	user, err := l.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		slog.Error("Failed to load user for daily claim",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return DailyResult{Reason: ReasonInternal}
	}

	if !user.LastDailyAt.IsZero() && sameCalendarDay(now, user.LastDailyAt) {
		nextMidnight := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		return DailyResult{
			Reason:    ReasonAlreadyClaimed,
			Remaining: nextMidnight.Sub(now.UTC()),
		}
	}

	streak := 1
	broken := false
	if !user.LastDailyAt.IsZero() {
		switch calendarDaysBetween(user.LastDailyAt, now) {
		case 1:
			streak = user.StreakDays + 1
		default:
			broken = user.StreakDays > 1
		}
	}

	streakBonus := int64(math.Floor(dailyStreakBonusUnit * math.Log2(float64(streak)+1)))
	streakMult := 1 + math.Min(float64(streak)/100, 0.5)
	levelScaling := 1 + float64(user.Level)*0.02

	reward := int64(math.Floor(float64(dailyBaseReward+streakBonus) * streakMult * levelScaling))
	reward = int64(math.Floor(float64(reward) * user.ActiveBoost(now)))

	breakdown := l.registry.ApplyEventRewards(guildID, reward, models.EventCoinMultiplier)
	reward = breakdown.FinalAmount

	lucky := l.roll() < dailyLuckyChance
	if lucky {
		reward += reward / 2
	}

	newBalance, err := l.users.AddBalance(ctx, guildID, userID, CurrencyCoins, reward)
	if err != nil {
		slog.Error("Failed to credit daily reward",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return DailyResult{Reason: ReasonInternal}
	}

	result := DailyResult{
		Success:      true,
		Coins:        reward,
		Streak:       streak,
		StreakBroken: broken,
		Lucky:        lucky,
		NewBalance:   newBalance,
	}

	if bundle, ok := streakMilestones[streak]; ok {
		result.MilestoneCoins = bundle.Coins
		result.MilestoneTokens = bundle.Tokens
		if bundle.Coins > 0 {
			if bal, err := l.users.AddBalance(ctx, guildID, userID, CurrencyCoins, bundle.Coins); err == nil {
				result.NewBalance = bal
			}
		}
		if bundle.Tokens > 0 {
			if _, err := l.users.AddBalance(ctx, guildID, userID, CurrencyTokens, bundle.Tokens); err != nil {
				slog.Error("Failed to credit milestone tokens",
					slog.String("user_id", userID),
					slog.Any("error", err))
			}
		}
		if l.sink != nil {
			l.sink.NotifyReward(ctx, interfaces.RewardNotice{
				GuildID: guildID,
				UserID:  userID,
				Title:   "🔥 Streak Milestone",
				Details: fmt.Sprintf("<@%s> hit a %d-day streak: +%d coins, +%d tokens!",
					userID, streak, bundle.Coins, bundle.Tokens),
			})
		}
	}

	if err := l.users.SetDailyClaim(ctx, guildID, userID, streak, now); err != nil {
		slog.Error("Failed to record daily claim",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return result
}
