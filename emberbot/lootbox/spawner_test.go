package lootbox

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/events"
)

type spawnerFixture struct {
	spawner  *Spawner
	users    *repositories.MemoryUserStore
	eventsDB *repositories.MemoryEventStore
	registry *events.Registry
	clock    *clock.Mock
}

func newSpawnerFixture(t *testing.T) *spawnerFixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC))

	users := repositories.NewMemoryUserStore()
	guilds := repositories.NewMemoryGuildConfigs()
	eventsDB := repositories.NewMemoryEventStore()
	registry := events.NewRegistry(eventsDB, guilds, nil, clk)
	ledger := economy.NewLedger(users, registry, nil, clk)

	return &spawnerFixture{
		spawner:  NewSpawner(registry, ledger, clk),
		users:    users,
		eventsDB: eventsDB,
		registry: registry,
		clock:    clk,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSpawnChanceBase(t *testing.T) {
	f := newSpawnerFixture(t)
	user := &models.UserProgress{GuildID: "g1", UserID: "u1", BoostMultiplier: 1}

	if p := f.spawner.SpawnChance("g1", user, f.clock.Now()); !almostEqual(p, baseSpawnRate) {
		t.Errorf("base chance = %v, want %v", p, baseSpawnRate)
	}
}

func TestSpawnChanceLevelAndActivity(t *testing.T) {
	f := newSpawnerFixture(t)
	user := &models.UserProgress{
		GuildID: "g1", UserID: "u1", BoostMultiplier: 1,
		Level: 10, MessagesToday: 40,
	}

	// 0.008 + 10*0.0005 + 40*0.00005
	want := 0.008 + 0.005 + 0.002
	if p := f.spawner.SpawnChance("g1", user, f.clock.Now()); !almostEqual(p, want) {
		t.Errorf("chance = %v, want %v", p, want)
	}
}

func TestSpawnChanceFactorCaps(t *testing.T) {
	f := newSpawnerFixture(t)
	user := &models.UserProgress{
		GuildID: "g1", UserID: "u1", BoostMultiplier: 1,
		Level: 10_000, MessagesToday: 100_000,
	}

	want := baseSpawnRate + levelFactorCap + activityFactorCap
	if p := f.spawner.SpawnChance("g1", user, f.clock.Now()); !almostEqual(p, want) {
		t.Errorf("chance = %v, want capped %v", p, want)
	}
}

func TestSpawnChanceBoost(t *testing.T) {
	f := newSpawnerFixture(t)
	now := f.clock.Now()
	user := &models.UserProgress{
		GuildID: "g1", UserID: "u1",
		BoostMultiplier: 1.5, BoostExpiresAt: now.Add(time.Hour),
	}

	if p := f.spawner.SpawnChance("g1", user, now); !almostEqual(p, baseSpawnRate*boostScale) {
		t.Errorf("boosted chance = %v, want %v", p, baseSpawnRate*boostScale)
	}
}

func TestSpawnChanceEventCap(t *testing.T) {
	f := newSpawnerFixture(t)
	ctx := context.Background()

	// An absurd event multiplier is clamped to the event cap before applying.
	ev := &models.Event{
		GuildID: "g1", EventID: "box_party", Name: "Box Party",
		Kind: models.EventBoxBonus, Multiplier: 50.0,
		Active: true, EndsAt: f.clock.Now().Add(time.Hour),
	}
	if err := f.eventsDB.Create(ctx, ev); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	if err := f.registry.RefreshIndex(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	user := &models.UserProgress{
		GuildID: "g1", UserID: "u1", BoostMultiplier: 1,
		Level: 10_000, MessagesToday: 100_000,
	}
	want := (baseSpawnRate + levelFactorCap + activityFactorCap) * eventCap
	if p := f.spawner.SpawnChance("g1", user, f.clock.Now()); !almostEqual(p, want) {
		t.Errorf("chance = %v, want %v", p, want)
	}
}

func TestMaybeSpawn(t *testing.T) {
	f := newSpawnerFixture(t)
	f.spawner.roll = func() float64 { return 0.0 }
	user := &models.UserProgress{GuildID: "g1", UserID: "u1", BoostMultiplier: 1}

	r := f.spawner.MaybeSpawn("g1", "c1", user)
	if !r.Spawned || r.Box == nil {
		t.Fatalf("got %+v, want spawn", r)
	}
	if !f.spawner.HasBox("g1", "c1") {
		t.Error("box not registered in channel")
	}
}

func TestMaybeSpawnChannelOccupied(t *testing.T) {
	f := newSpawnerFixture(t)
	f.spawner.roll = func() float64 { return 0.0 }
	alice := &models.UserProgress{GuildID: "g1", UserID: "alice", BoostMultiplier: 1}
	bob := &models.UserProgress{GuildID: "g1", UserID: "bob", BoostMultiplier: 1}

	if r := f.spawner.MaybeSpawn("g1", "c1", alice); !r.Spawned {
		t.Fatalf("first spawn failed: %+v", r)
	}
	if r := f.spawner.MaybeSpawn("g1", "c1", bob); r.Spawned {
		t.Errorf("second box spawned in an occupied channel")
	}
}

func TestMaybeSpawnUserCooldown(t *testing.T) {
	f := newSpawnerFixture(t)
	f.spawner.roll = func() float64 { return 0.0 }
	user := &models.UserProgress{GuildID: "g1", UserID: "u1", BoostMultiplier: 1}

	if r := f.spawner.MaybeSpawn("g1", "c1", user); !r.Spawned {
		t.Fatalf("first spawn failed: %+v", r)
	}

	// Different channel, same user, inside the 30s window.
	f.clock.Add(10 * time.Second)
	if r := f.spawner.MaybeSpawn("g1", "c2", user); r.Spawned || r.Probability != 0 {
		t.Errorf("spawn allowed during user cooldown: %+v", r)
	}

	f.clock.Add(25 * time.Second)
	if r := f.spawner.MaybeSpawn("g1", "c2", user); !r.Spawned {
		t.Errorf("spawn rejected after cooldown: %+v", r)
	}
}

func TestDrawRarity(t *testing.T) {
	f := newSpawnerFixture(t)

	tests := []struct {
		roll float64
		want string
	}{
		{0.0, "divine"},
		{0.004, "divine"},
		{0.005, "mythic"},
		{0.1, "rare"},
		{0.5, "fine"},
		{0.999, "common"},
	}
	for _, tt := range tests {
		f.spawner.roll = func() float64 { return tt.roll }
		if got := f.spawner.drawRarity(); got != tt.want {
			t.Errorf("drawRarity(roll=%v) = %q, want %q", tt.roll, got, tt.want)
		}
	}
}

func TestOpenPaysOut(t *testing.T) {
	f := newSpawnerFixture(t)
	ctx := context.Background()

	f.spawner.boxes["g1:c1"] = &Box{
		GuildID: "g1", ChannelID: "c1", Rarity: "rare", SpawnedAt: f.clock.Now(),
	}

	r := f.spawner.Open(ctx, "g1", "c1", "u1")
	if !r.Success || r.Rarity != "rare" {
		t.Fatalf("got %+v, want rare payout", r)
	}
	if r.Coins != 1200 || r.Tokens != 10 {
		t.Errorf("coins=%d tokens=%d, want 1200/10", r.Coins, r.Tokens)
	}

	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.Coins != 1200 || user.Tokens != 10 {
		t.Errorf("stored coins=%d tokens=%d, want 1200/10", user.Coins, user.Tokens)
	}
	if f.spawner.HasBox("g1", "c1") {
		t.Error("box still present after claim")
	}

	// The box goes to whoever claims first; the second open finds nothing.
	if r := f.spawner.Open(ctx, "g1", "c1", "u2"); r.Success || r.Reason != ReasonNoBox {
		t.Errorf("second open got %+v, want no_box", r)
	}
}

func TestPruneCooldowns(t *testing.T) {
	f := newSpawnerFixture(t)
	f.spawner.roll = func() float64 { return 0.99 }
	user := &models.UserProgress{GuildID: "g1", UserID: "u1", BoostMultiplier: 1}

	f.spawner.MaybeSpawn("g1", "c1", user)
	f.clock.Add(31 * time.Second)
	f.spawner.PruneCooldowns(context.Background())

	f.spawner.mu.Lock()
	n := len(f.spawner.cooldowns)
	f.spawner.mu.Unlock()
	if n != 0 {
		t.Errorf("cooldown entries after prune = %d, want 0", n)
	}
}
