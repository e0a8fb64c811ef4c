package voice

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/events"
)

type trackerFixture struct {
	tracker *Tracker
	users   *repositories.MemoryUserStore
	guilds  *repositories.MemoryGuildConfigs
	clock   *clock.Mock
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))

	users := repositories.NewMemoryUserStore()
	guilds := repositories.NewMemoryGuildConfigs()
	registry := events.NewRegistry(repositories.NewMemoryEventStore(), guilds, nil, clk)
	ledger := economy.NewLedger(users, registry, nil, clk)

	return &trackerFixture{
		tracker: NewTracker(users, guilds, ledger, clk),
		users:   users,
		guilds:  guilds,
		clock:   clk,
	}
}

func (f *trackerFixture) coins(t *testing.T, guildID, userID string) int64 {
	t.Helper()
	user, err := f.users.GetOrCreate(context.Background(), guildID, userID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user.Coins
}

func TestTenMinuteSessionPaysExactly(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)
	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "", false)

	// Default rate is 5 coins per unmuted minute.
	if got := f.coins(t, "g1", "u1"); got != 50 {
		t.Errorf("coins = %d, want 50", got)
	}
	if f.tracker.SessionCount() != 0 {
		t.Errorf("session survived the leave")
	}
}

func TestMutedTimeEarnsNothing(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", true)
	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "", false)

	if got := f.coins(t, "g1", "u1"); got != 0 {
		t.Errorf("coins = %d, want 0 for muted time", got)
	}
}

func TestSubMinuteRemainderCarries(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)

	f.clock.Add(90 * time.Second)
	f.tracker.FlushAll(ctx)
	if got := f.coins(t, "g1", "u1"); got != 5 {
		t.Errorf("coins after 90s = %d, want 5", got)
	}

	// The leftover 30s combine with the next 30s into a second whole minute.
	f.clock.Add(30 * time.Second)
	f.tracker.FlushAll(ctx)
	if got := f.coins(t, "g1", "u1"); got != 10 {
		t.Errorf("coins after 120s = %d, want 10", got)
	}
}

func TestMuteTransitionSettlesEarnedTime(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)
	f.clock.Add(5 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", true)

	if got := f.coins(t, "g1", "u1"); got != 25 {
		t.Fatalf("coins at mute = %d, want 25", got)
	}

	// Muted time accrues nothing.
	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "", false)
	if got := f.coins(t, "g1", "u1"); got != 25 {
		t.Errorf("coins after muted stretch = %d, want 25", got)
	}
}

func TestUnmuteRestartsAccrual(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", true)
	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)
	f.clock.Add(3 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "", false)

	if got := f.coins(t, "g1", "u1"); got != 15 {
		t.Errorf("coins = %d, want 15 for the unmuted stretch only", got)
	}
}

func TestChannelHopSettlesAtOldMultiplier(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.ChannelMultipliers["vip"] = 2.0

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "vip", false)
	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)

	if got := f.coins(t, "g1", "u1"); got != 100 {
		t.Fatalf("coins after vip stretch = %d, want 100", got)
	}

	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "", false)
	if got := f.coins(t, "g1", "u1"); got != 150 {
		t.Errorf("coins after general stretch = %d, want 150", got)
	}
}

func TestPersistAllWritesDeltasOnce(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)
	f.clock.Add(10 * time.Minute)
	f.tracker.FlushAll(ctx)

	f.tracker.PersistAll(ctx)
	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.VoiceMinutes != 10 {
		t.Fatalf("VoiceMinutes = %d, want 10", user.VoiceMinutes)
	}

	// A second sweep with no new minutes must not double count.
	f.tracker.PersistAll(ctx)
	user, _ = f.users.Get(ctx, "g1", "u1")
	if user.VoiceMinutes != 10 {
		t.Errorf("VoiceMinutes after repeat sweep = %d, want 10", user.VoiceMinutes)
	}

	f.clock.Add(2 * time.Minute)
	f.tracker.FlushAll(ctx)
	f.tracker.PersistAll(ctx)
	user, _ = f.users.Get(ctx, "g1", "u1")
	if user.VoiceMinutes != 12 {
		t.Errorf("VoiceMinutes after new minutes = %d, want 12", user.VoiceMinutes)
	}
}

func TestRehydrateStartsFresh(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.Rehydrate([]Presence{
		{GuildID: "g1", UserID: "u1", ChannelID: "general"},
		{GuildID: "g1", UserID: "u2", ChannelID: "general", Muted: true},
	})
	if f.tracker.SessionCount() != 2 {
		t.Fatalf("SessionCount = %d, want 2", f.tracker.SessionCount())
	}

	f.clock.Add(time.Minute)
	f.tracker.FlushAll(ctx)

	if got := f.coins(t, "g1", "u1"); got != 5 {
		t.Errorf("active user coins = %d, want 5", got)
	}
	if got := f.coins(t, "g1", "u2"); got != 0 {
		t.Errorf("muted user coins = %d, want 0", got)
	}
}

func TestDailyCoinCapClipsVoicePayout(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.DailyCoinCap = 35

	// 10 minutes at the default 5/min would pay 50; the cap clips it to 35.
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)
	f.clock.Add(10 * time.Minute)
	f.tracker.FlushAll(ctx)

	if got := f.coins(t, "g1", "u1"); got != 35 {
		t.Fatalf("coins = %d, want 35 at the cap", got)
	}
	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.CoinsToday != 35 {
		t.Fatalf("CoinsToday = %d, want 35", user.CoinsToday)
	}

	// Further minutes earn nothing until the daily sweep.
	f.clock.Add(10 * time.Minute)
	f.tracker.FlushAll(ctx)
	if got := f.coins(t, "g1", "u1"); got != 35 {
		t.Errorf("coins after capped stretch = %d, want 35", got)
	}

	if err := f.users.ResetDailyCounters(ctx); err != nil {
		t.Fatalf("ResetDailyCounters: %v", err)
	}
	f.clock.Add(2 * time.Minute)
	f.tracker.FlushAll(ctx)
	if got := f.coins(t, "g1", "u1"); got != 45 {
		t.Errorf("coins after reset = %d, want 45", got)
	}
}

func TestBoostScalesVoicePayout(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	if _, err := f.users.GetOrCreate(ctx, "g1", "u1"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.users.SetBoost(ctx, "g1", "u1", 2.0, f.clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetBoost: %v", err)
	}

	f.tracker.HandleVoiceState(ctx, "g1", "u1", "general", false)
	f.clock.Add(10 * time.Minute)
	f.tracker.HandleVoiceState(ctx, "g1", "u1", "", false)

	if got := f.coins(t, "g1", "u1"); got != 100 {
		t.Errorf("coins = %d, want 100 with the 2x boost", got)
	}
}
