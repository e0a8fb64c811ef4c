package blackmarket

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
)

const (
	maxHeat = 100

	// Bets below this never trigger the secondary robbery/raid rolls.
	secondaryMinBet = 10_000

	// Primary roll space: < winThreshold wins, the top raidBucket slice of
	// the lose branch escalates straight to a raid.
	winThreshold  = 0.50
	raidThreshold = 0.95

	robberyCap  = 0.25
	heatRaidCap = 0.15

	jailDuration    = 10 * time.Minute
	launderCooldown = 45 * time.Minute
	launderMinHeat  = 20
	launderHeatDrop = 35
)

// Failure and outcome reasons.
const (
	ReasonJailed     = "jailed"
	ReasonBanned     = "banned"
	ReasonNotJailed  = "not_jailed"
	ReasonLowHeat    = "low_heat"
	ReasonOnCooldown = "on_cooldown"

	OutcomeWin  = "win"
	OutcomeLose = "lose"
	OutcomeRaid = "raid"
)

// GambleResult reports a bet outcome with enough context for rendering.
type GambleResult struct {
	Success    bool
	Reason     string
	Outcome    string
	Payout     int64
	HeatGained int
	Heat       int
	Robbed     int64
	Confiscated int64
	JailedUntil time.Time
	NewBalance int64
	Until      time.Time
	Required   int64
	Available  int64
}

// ActionResult reports bail/launder outcomes.
type ActionResult struct {
	Success   bool
	Reason    string
	Cost      int64
	Burned    int64
	Heat      int
	Required  int64
	Remaining time.Duration
	Until     time.Time
}

// Market is the risk economy: heat, jail, and gambling. All coin movement
// goes through the ledger so balances never undershoot zero.
type Market struct {
	users  repositories.UserProgressRepository
	ledger *economy.Ledger
	clock  clock.Clock

	// roll is the uniform source for every outcome decision; replaced in
	// tests to force branches.
	roll func() float64
}

func NewMarket(users repositories.UserProgressRepository, ledger *economy.Ledger, clk clock.Clock) *Market {
	return &Market{
		users:  users,
		ledger: ledger,
		clock:  clk,
		roll:   rand.Float64,
	}
}

// heatGainFor returns the heat added for a bet, keyed to its size tier.
func heatGainFor(amount int64) int {
	switch {
	case amount < 5_000:
		return 2
	case amount < 10_000:
		return 4
	case amount < 25_000:
		return 7
	case amount < 50_000:
		return 10
	default:
		return 15
	}
}

// winMultiplier returns the payout multiplier for a winning bet.
func winMultiplier(amount int64) float64 {
	mult := 0.25
	if amount >= 5_000 {
		mult = 0.4
	}
	if amount >= 10_000 {
		mult *= 0.5
	}
	return mult
}

func clampHeat(h int) int {
	if h < 0 {
		return 0
	}
	if h > maxHeat {
		return maxHeat
	}
	return h
}

// releaseIfDue lazily frees a user whose jail term has elapsed, halving heat.
// Returns true when the struct changed and needs persisting.
func (m *Market) releaseIfDue(user *models.UserProgress, now time.Time) bool {
	if user.Jailed && !user.JailUntil.After(now) {
		user.Jailed = false
		user.JailUntil = time.Time{}
		user.Heat = clampHeat(user.Heat / 2)
		return true
	}
	return false
}

// Status returns the user's current black-market state, applying the lazy
// jail release first.
func (m *Market) Status(ctx context.Context, guildID, userID string) (*models.UserProgress, error) {
	user, err := m.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if m.releaseIfDue(user, m.clock.Now()) {
		if err := m.users.UpdateRiskProfile(ctx, user); err != nil {
			slog.Error("Failed to persist jail release",
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}
	return user, nil
}

// Gamble places a bet. Heat rises first by bet tier, then a single uniform
// roll decides win/lose with the top of the lose space escalating to a raid;
// non-raid outcomes can still be hit by secondary robbery and heat-raid rolls
// when the bet is large enough.
func (m *Market) Gamble(ctx context.Context, guildID, userID string, amount int64, currency string) GambleResult {
	if currency != economy.CurrencyCoins && currency != economy.CurrencyTokens {
		return GambleResult{Reason: economy.ReasonInvalidCurrency}
	}
	if amount <= 0 {
		return GambleResult{Reason: economy.ReasonInvalidAmount}
	}

	now := m.clock.Now()
	user, err := m.Status(ctx, guildID, userID)
	if err != nil {
		return GambleResult{Reason: economy.ReasonInternal}
	}

	if user.Jailed {
		return GambleResult{Reason: ReasonJailed, Until: user.JailUntil}
	}
	if user.Banned(now) {
		return GambleResult{Reason: ReasonBanned, Until: user.BannedUntil}
	}

	take := m.ledger.TakeCurrency(ctx, guildID, userID, currency, amount, "gamble")
	if !take.Success {
		return GambleResult{Reason: take.Reason, Required: take.Required, Available: take.Available}
	}

	gain := heatGainFor(amount)
	user.Heat = clampHeat(user.Heat + gain)
	user.RiskBets++
	user.LastBlackMarket = now

	result := GambleResult{
		Success:    true,
		HeatGained: gain,
		NewBalance: take.NewBalance,
	}

	r := m.roll()
	switch {
	case r < winThreshold:
		result.Outcome = OutcomeWin
		payout := amount + int64(math.Floor(float64(amount)*winMultiplier(amount)))
		if bal, err := m.users.AddBalance(ctx, guildID, userID, currency, payout); err == nil {
			result.NewBalance = bal
		} else {
			slog.Error("Failed to credit gamble payout",
				slog.String("type", "db"),
				slog.String("guild_id", guildID),
				slog.String("user_id", userID),
				slog.Int64("payout", payout),
				slog.Any("error", err))
		}
		result.Payout = payout
	case r >= raidThreshold:
		result.Outcome = OutcomeRaid
		m.raid(ctx, guildID, userID, user, now, &result)
	default:
		result.Outcome = OutcomeLose
	}

	if result.Outcome != OutcomeRaid && amount >= secondaryMinBet {
		betFactor := math.Min(float64(amount)/50_000, 1.0)

		robberyChance := math.Min(float64(user.Heat)/maxHeat*betFactor, robberyCap)
		if m.roll() < robberyChance {
			pcts := []float64{0.20, 0.30, 0.40}
			pct := pcts[int(m.roll()*float64(len(pcts)))%len(pcts)]
			stolen := int64(math.Floor(float64(amount) * pct))
			if bal, ok, err := m.users.TakeBalance(ctx, guildID, userID, currency, stolen); err == nil && ok {
				result.Robbed = stolen
				result.NewBalance = bal
				user.RiskTimesRobbed++
			}
		}

		heatRaidChance := math.Min(float64(user.Heat)*0.002*betFactor, heatRaidCap)
		if m.roll() < heatRaidChance {
			m.raid(ctx, guildID, userID, user, now, &result)
		}
	}

	result.Heat = user.Heat
	result.JailedUntil = user.JailUntil

	if err := m.users.UpdateRiskProfile(ctx, user); err != nil {
		slog.Error("Failed to persist risk profile after gamble",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return result
}

// raid confiscates a heat-scaled share of both currencies and jails the user.
func (m *Market) raid(ctx context.Context, guildID, userID string, user *models.UserProgress, now time.Time, result *GambleResult) {
	user.Jailed = true
	user.JailUntil = now.Add(jailDuration)
	user.RiskTimesCaught++

	pct := math.Min(float64(user.Heat)/200, 0.5)

	current, err := m.users.Get(ctx, guildID, userID)
	if err != nil {
		slog.Error("Failed to read balances for confiscation",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}

	var confiscated int64
	if loss := int64(math.Floor(float64(current.Coins) * pct)); loss > 0 {
		if bal, ok, err := m.users.TakeBalance(ctx, guildID, userID, economy.CurrencyCoins, loss); err == nil && ok {
			confiscated += loss
			result.NewBalance = bal
		}
	}
	if loss := int64(math.Floor(float64(current.Tokens) * pct)); loss > 0 {
		if _, ok, err := m.users.TakeBalance(ctx, guildID, userID, economy.CurrencyTokens, loss); err == nil && ok {
			confiscated += loss
		}
	}

	result.Confiscated = confiscated
	result.JailedUntil = user.JailUntil

	slog.Info("Black market raid",
		slog.String("type", "sys"),
		slog.String("guild_id", guildID),
		slog.String("user_id", userID),
		slog.Int("heat", user.Heat),
		slog.Int64("confiscated", confiscated))
}

// BailCost returns the current bail price for a user.
func BailCost(user *models.UserProgress) int64 {
	return 250 + int64(user.Heat)*5 + int64(user.RiskTimesCaught)*100
}

// PayBail buys the user out of jail. Heat is untouched; bail is the fast,
// expensive exit.
func (m *Market) PayBail(ctx context.Context, guildID, userID string) ActionResult {
	user, err := m.Status(ctx, guildID, userID)
	if err != nil {
		return ActionResult{Reason: economy.ReasonInternal}
	}
	if !user.Jailed {
		return ActionResult{Reason: ReasonNotJailed}
	}

	cost := BailCost(user)
	take := m.ledger.TakeCurrency(ctx, guildID, userID, economy.CurrencyCoins, cost, "bail")
	if !take.Success {
		return ActionResult{Reason: take.Reason, Cost: cost, Required: take.Required}
	}

	user.Jailed = false
	user.JailUntil = time.Time{}
	user.LastBlackMarket = m.clock.Now()
	if err := m.users.UpdateRiskProfile(ctx, user); err != nil {
		slog.Error("Failed to persist bail",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return ActionResult{Success: true, Cost: cost, Heat: user.Heat}
}

// Launder burns a quarter of the coin balance to shed heat. Requires real
// heat, freedom, and a cooldown since the last black-market action.
func (m *Market) Launder(ctx context.Context, guildID, userID string) ActionResult {
	now := m.clock.Now()
	user, err := m.Status(ctx, guildID, userID)
	if err != nil {
		return ActionResult{Reason: economy.ReasonInternal}
	}

	if user.Jailed {
		return ActionResult{Reason: ReasonJailed, Until: user.JailUntil}
	}
	if user.Banned(now) {
		return ActionResult{Reason: ReasonBanned, Until: user.BannedUntil}
	}
	if user.Heat < launderMinHeat {
		return ActionResult{Reason: ReasonLowHeat, Required: launderMinHeat, Heat: user.Heat}
	}
	if !user.LastBlackMarket.IsZero() {
		if since := now.Sub(user.LastBlackMarket); since < launderCooldown {
			return ActionResult{Reason: ReasonOnCooldown, Remaining: launderCooldown - since}
		}
	}

	burned := user.Coins / 4
	if burned > 0 {
		if _, ok, err := m.users.TakeBalance(ctx, guildID, userID, economy.CurrencyCoins, burned); err != nil || !ok {
			return ActionResult{Reason: economy.ReasonInternal}
		}
	}

	user.Heat = clampHeat(user.Heat - launderHeatDrop)
	user.LastBlackMarket = now
	if err := m.users.UpdateRiskProfile(ctx, user); err != nil {
		slog.Error("Failed to persist launder",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return ActionResult{Success: true, Burned: burned, Heat: user.Heat}
}
