package lootbox

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/events"
)

const (
	baseSpawnRate     = 0.008
	levelFactorCap    = 0.01
	activityFactorCap = 0.008
	boostScale        = 1.10
	eventCap          = 3.0
	absoluteCeiling   = 0.15

	userCooldown = 30 * time.Second
)

// Rarity tiers from rarest to most common; chances form a cumulative ladder
// that sums to 1.
var rarities = []struct {
	Name   string
	Chance float64
	Coins  int64
	Tokens int64
}{
	{"divine", 0.005, 25000, 500},
	{"mythic", 0.010, 15000, 250},
	{"celestial", 0.015, 10000, 150},
	{"ancient", 0.025, 7500, 100},
	{"legendary", 0.040, 5000, 60},
	{"epic", 0.060, 3000, 35},
	{"superior", 0.080, 2000, 20},
	{"rare", 0.105, 1200, 10},
	{"uncommon", 0.145, 750, 5},
	{"fine", 0.210, 400, 2},
	{"common", 0.305, 200, 0},
}

// Box is an unclaimed spawn sitting in a channel.
type Box struct {
	GuildID   string
	ChannelID string
	Rarity    string
	SpawnedAt time.Time
}

// SpawnResult reports a spawn decision.
type SpawnResult struct {
	Spawned     bool
	Box         *Box
	Probability float64
}

// OpenResult reports a claimed box's payout.
type OpenResult struct {
	Success bool
	Reason  string
	Rarity  string
	Coins   int64
	Tokens  int64
}

const (
	ReasonNoBox      = "no_box"
	ReasonOnCooldown = "on_cooldown"
)

// Spawner decides when a qualifying message drops a loot box. Box and
// cooldown state is owned by the spawner and torn down with it; nothing here
// leaks through package globals.
type Spawner struct {
	registry *events.Registry
	ledger   *economy.Ledger
	clock    clock.Clock

	mu        sync.Mutex
	boxes     map[string]*Box      // guildID:channelID -> unclaimed box
	cooldowns map[string]time.Time // guildID:userID -> last qualifying attempt

	roll func() float64
}

func NewSpawner(registry *events.Registry, ledger *economy.Ledger, clk clock.Clock) *Spawner {
	return &Spawner{
		registry:  registry,
		ledger:    ledger,
		clock:     clk,
		boxes:     make(map[string]*Box),
		cooldowns: make(map[string]time.Time),
		roll:      rand.Float64,
	}
}

// SpawnChance computes the effective spawn probability for a user without
// rolling. Exposed for display and for tests.
func (s *Spawner) SpawnChance(guildID string, user *models.UserProgress, now time.Time) float64 {
	p := baseSpawnRate
	p += math.Min(float64(user.Level)*0.0005, levelFactorCap)
	p += math.Min(float64(user.MessagesToday)*0.00005, activityFactorCap)

	if user.BoostActive(now) {
		p *= boostScale
	}

	if mult := s.registry.ActiveMultiplier(guildID, models.EventBoxBonus); mult > 1 {
		p *= math.Min(mult, eventCap)
	}

	return math.Min(p, absoluteCeiling)
}

// MaybeSpawn runs the spawn decision for one qualifying message.
func (s *Spawner) MaybeSpawn(guildID, channelID string, user *models.UserProgress) SpawnResult {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	channelKey := guildID + ":" + channelID
	if _, occupied := s.boxes[channelKey]; occupied {
		return SpawnResult{}
	}

	userKey := guildID + ":" + user.UserID
	if last, ok := s.cooldowns[userKey]; ok && now.Sub(last) < userCooldown {
		return SpawnResult{}
	}
	s.cooldowns[userKey] = now

	p := s.SpawnChance(guildID, user, now)
	if s.roll() >= p {
		return SpawnResult{Probability: p}
	}

	box := &Box{
		GuildID:   guildID,
		ChannelID: channelID,
		Rarity:    s.drawRarity(),
		SpawnedAt: now,
	}
	s.boxes[channelKey] = box
	return SpawnResult{Spawned: true, Box: box, Probability: p}
}

// drawRarity walks the cumulative ladder with a single uniform roll.
func (s *Spawner) drawRarity() string {
	r := s.roll()
	cumulative := 0.0
	for _, tier := range rarities {
		cumulative += tier.Chance
		if r < cumulative {
			return tier.Name
		}
	}
	return rarities[len(rarities)-1].Name
}

// Open claims the channel's unclaimed box for the user and pays out through
// the ledger.
func (s *Spawner) Open(ctx context.Context, guildID, channelID, userID string) OpenResult {
	s.mu.Lock()
	channelKey := guildID + ":" + channelID
	box, ok := s.boxes[channelKey]
	if ok {
		delete(s.boxes, channelKey)
	}
	s.mu.Unlock()

	if !ok {
		return OpenResult{Reason: ReasonNoBox}
	}

	var coins, tokens int64
	for _, tier := range rarities {
		if tier.Name == box.Rarity {
			coins, tokens = tier.Coins, tier.Tokens
			break
		}
	}

	result := OpenResult{Success: true, Rarity: box.Rarity}
	if coins > 0 {
		if give := s.ledger.GiveCurrency(ctx, guildID, userID, economy.CurrencyCoins, coins, "lootbox"); give.Success {
			result.Coins = give.FinalAmount
		}
	}
	if tokens > 0 {
		if give := s.ledger.GiveCurrency(ctx, guildID, userID, economy.CurrencyTokens, tokens, "lootbox"); give.Success {
			result.Tokens = give.FinalAmount
		}
	}
	return result
}

// HasBox reports whether a channel holds an unclaimed box.
func (s *Spawner) HasBox(guildID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.boxes[guildID+":"+channelID]
	return ok
}

// PruneCooldowns drops stale per-user cooldown entries; registered on the
// scheduler.
func (s *Spawner) PruneCooldowns(_ context.Context) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, at := range s.cooldowns {
		if now.Sub(at) > userCooldown {
			delete(s.cooldowns, key)
		}
	}
}
