package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/events"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

type fakeDirectory struct {
	names        map[string]string
	memberRoles  map[string]bool
	unmanageable map[string]bool
	missing      map[string]bool
	added        []string
	removed      []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		names:        map[string]string{},
		memberRoles:  map[string]bool{},
		unmanageable: map[string]bool{},
		missing:      map[string]bool{},
	}
}

func (d *fakeDirectory) MemberExists(ctx context.Context, guildID, userID string) (bool, error) {
	return !d.missing[userID], nil
}

func (d *fakeDirectory) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	return d.names[roleID], nil
}

func (d *fakeDirectory) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	return d.memberRoles[roleID], nil
}

func (d *fakeDirectory) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	d.added = append(d.added, roleID)
	return nil
}

func (d *fakeDirectory) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	d.removed = append(d.removed, roleID)
	return nil
}

func (d *fakeDirectory) CanManageRole(ctx context.Context, guildID, roleID string) (bool, error) {
	return !d.unmanageable[roleID], nil
}

type fakeSink struct {
	levelUps []interfaces.LevelUpNotice
	rewards  []interfaces.RewardNotice
	events   []interfaces.EventNotice
}

func (s *fakeSink) NotifyLevelUp(ctx context.Context, notice interfaces.LevelUpNotice) {
	s.levelUps = append(s.levelUps, notice)
}

func (s *fakeSink) NotifyReward(ctx context.Context, notice interfaces.RewardNotice) {
	s.rewards = append(s.rewards, notice)
}

func (s *fakeSink) NotifyEvent(ctx context.Context, notice interfaces.EventNotice) {
	s.events = append(s.events, notice)
}

type coreFixture struct {
	core   *Core
	users  *repositories.MemoryUserStore
	guilds *repositories.MemoryGuildConfigs
	dir    *fakeDirectory
	sink   *fakeSink
	clock  *clock.Mock
}

func newCoreFixture(t *testing.T) *coreFixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	users := repositories.NewMemoryUserStore()
	guilds := repositories.NewMemoryGuildConfigs()
	dir := newFakeDirectory()
	sink := &fakeSink{}

	registry := events.NewRegistry(repositories.NewMemoryEventStore(), guilds, nil, clk)
	ledger := economy.NewLedger(users, registry, sink, clk)
	core := NewCore(users, guilds, dir, sink, ledger, clk)

	return &coreFixture{core: core, users: users, guilds: guilds, dir: dir, sink: sink, clock: clk}
}

func TestGrantXPLevelsUpAndGrantsRoles(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.LevelRoles = []models.LevelRole{
		{Level: 1, RoleID: "bronze", AutoRemove: true},
		{Level: 2, RoleID: "silver", AutoRemove: true},
	}
	f.dir.names["bronze"] = "Bronze"
	f.dir.names["silver"] = "Silver"

	result, err := f.core.GrantXP(ctx, "g1", "u1", 400)
	if err != nil {
		t.Fatalf("GrantXP: %v", err)
	}
	if !result.LeveledUp || result.NewLevel != 2 {
		t.Fatalf("got level %d (leveled=%v), want level 2", result.NewLevel, result.LeveledUp)
	}

	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.Level != 2 || user.TotalXP != 400 {
		t.Errorf("stored level=%d totalXP=%d, want 2/400", user.Level, user.TotalXP)
	}

	if len(f.dir.added) != 2 || f.dir.added[0] != "bronze" || f.dir.added[1] != "silver" {
		t.Errorf("roles added = %v, want [bronze silver]", f.dir.added)
	}
	// Silver is exclusive, so bronze is stripped on the way up.
	if len(f.dir.removed) != 1 || f.dir.removed[0] != "bronze" {
		t.Errorf("roles removed = %v, want [bronze]", f.dir.removed)
	}

	if len(f.sink.levelUps) != 1 {
		t.Fatalf("got %d level-up notices, want 1", len(f.sink.levelUps))
	}
	notice := f.sink.levelUps[0]
	if notice.OldLevel != 0 || notice.NewLevel != 2 {
		t.Errorf("notice levels %d->%d, want 0->2", notice.OldLevel, notice.NewLevel)
	}
	if len(notice.Roles) != 2 || notice.Roles[0] != "Bronze" || notice.Roles[1] != "Silver" {
		t.Errorf("notice roles = %v", notice.Roles)
	}
}

func TestConcurrentXPGrantsNotifyOncePerBoundary(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.LevelRoles = []models.LevelRole{
		{Level: 1, RoleID: "bronze", Stackable: true},
		{Level: 2, RoleID: "silver", Stackable: true},
	}

	// 20 grants of 25 XP land at 500 total, crossing the level 1 boundary at
	// 100 and the level 2 boundary at 382 exactly once each.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.core.ApplyXP(ctx, "g1", "u1", 25, "message"); err != nil {
				t.Errorf("ApplyXP: %v", err)
			}
		}()
	}
	wg.Wait()

	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.TotalXP != 500 || user.Level != 2 {
		t.Fatalf("totalXP=%d level=%d, want 500/2", user.TotalXP, user.Level)
	}

	counts := map[string]int{}
	for _, roleID := range f.dir.added {
		counts[roleID]++
	}
	if counts["bronze"] != 1 || counts["silver"] != 1 {
		t.Errorf("role grants = %v, want bronze and silver exactly once", counts)
	}

	if len(f.sink.levelUps) != 2 {
		t.Fatalf("got %d level-up notices, want 2", len(f.sink.levelUps))
	}
	seen := map[int]int{}
	for _, notice := range f.sink.levelUps {
		seen[notice.NewLevel]++
	}
	if seen[1] != 1 || seen[2] != 1 {
		t.Errorf("notice levels = %v, want one each for 1 and 2", seen)
	}
}

func TestLevelUpSkipsAbsentMember(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.LevelRoles = []models.LevelRole{{Level: 1, RoleID: "bronze"}}
	f.dir.missing["u1"] = true

	if _, err := f.core.GrantXP(ctx, "g1", "u1", 150); err != nil {
		t.Fatalf("GrantXP: %v", err)
	}

	// The level sticks, but roles and notices are skipped for a user who
	// already left the guild.
	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.Level != 1 {
		t.Errorf("level = %d, want 1", user.Level)
	}
	if len(f.dir.added) != 0 {
		t.Errorf("roles added = %v, want none", f.dir.added)
	}
	if len(f.sink.levelUps) != 0 {
		t.Errorf("got %d notices, want none", len(f.sink.levelUps))
	}
}

func TestStackableRoleKeepsLowerRoles(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.LevelRoles = []models.LevelRole{
		{Level: 1, RoleID: "bronze", AutoRemove: true},
		{Level: 2, RoleID: "silver", Stackable: true},
	}

	if _, err := f.core.GrantXP(ctx, "g1", "u1", 400); err != nil {
		t.Fatalf("GrantXP: %v", err)
	}
	if len(f.dir.removed) != 0 {
		t.Errorf("roles removed = %v, want none", f.dir.removed)
	}
}

func TestUnmanageableRoleSkipped(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.LevelRoles = []models.LevelRole{{Level: 1, RoleID: "admin"}}
	f.dir.unmanageable["admin"] = true

	if _, err := f.core.GrantXP(ctx, "g1", "u1", 150); err != nil {
		t.Fatalf("GrantXP: %v", err)
	}
	if len(f.dir.added) != 0 {
		t.Errorf("roles added = %v, want none", f.dir.added)
	}
	if len(f.sink.levelUps) != 1 || len(f.sink.levelUps[0].Roles) != 0 {
		t.Errorf("notice should carry no role names")
	}
}

func TestPerkMilestone(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	// 2900 total XP lands at level 5, crossing the first perk milestone.
	result, err := f.core.GrantXP(ctx, "g1", "u1", 2900)
	if err != nil {
		t.Fatalf("GrantXP: %v", err)
	}
	if result.NewLevel != 5 {
		t.Fatalf("got level %d, want 5", result.NewLevel)
	}

	user, _ := f.users.Get(ctx, "g1", "u1")
	if !user.HasPerk("streak_shield") {
		t.Errorf("perk streak_shield not granted, perks = %v", user.Perks)
	}
	if len(f.sink.levelUps) != 1 {
		t.Fatalf("got %d notices, want 1", len(f.sink.levelUps))
	}
	perks := f.sink.levelUps[0].Perks
	if len(perks) != 1 || perks[0] != "Streak Shield" {
		t.Errorf("notice perks = %v, want [Streak Shield]", perks)
	}
}

func TestHandleMessageCooldown(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	f.users.Seed(&models.UserProgress{
		GuildID:         "g1",
		UserID:          "u1",
		BoostMultiplier: 1,
		LastMessageAt:   f.clock.Now().Add(-10 * time.Second),
	})

	result := f.core.HandleMessage(ctx, "g1", "u1", "c1")
	if !result.OnCooldown || result.Awarded {
		t.Errorf("got %+v, want cooldown rejection", result)
	}
}

func TestHandleMessageAwardsXP(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	f.core.rng = func(n int64) int64 { return 0 }

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.ChannelMultipliers["boosted"] = 2.0

	result := f.core.HandleMessage(ctx, "g1", "u1", "boosted")
	if !result.Awarded {
		t.Fatalf("got %+v, want award", result)
	}
	// Minimum roll of 15 doubled by the channel multiplier.
	if result.XP != 30 || result.TotalXP != 30 {
		t.Errorf("XP=%d TotalXP=%d, want 30/30", result.XP, result.TotalXP)
	}

	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.MessagesToday != 1 {
		t.Errorf("MessagesToday = %d, want 1", user.MessagesToday)
	}
}

func TestHandleMessageDailyXPCap(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	f.core.rng = func(n int64) int64 { return 0 }

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.DailyXPCap = 40

	f.users.Seed(&models.UserProgress{
		GuildID: "g1", UserID: "u1",
		BoostMultiplier: 1,
		XPToday:         30,
	})

	// A minimum roll of 15 overshoots the remaining headroom and is clipped.
	result := f.core.HandleMessage(ctx, "g1", "u1", "c1")
	if !result.Awarded || result.XP != 10 {
		t.Fatalf("got %+v, want a clipped award of 10", result)
	}

	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.XPToday != 40 {
		t.Fatalf("XPToday = %d, want 40", user.XPToday)
	}

	// At the cap, messages stop earning until the daily sweep.
	f.clock.Add(2 * time.Minute)
	result = f.core.HandleMessage(ctx, "g1", "u1", "c1")
	if result.Awarded || !result.DailyCapped {
		t.Errorf("got %+v, want daily-cap rejection", result)
	}

	if err := f.users.ResetDailyCounters(ctx); err != nil {
		t.Fatalf("ResetDailyCounters: %v", err)
	}
	f.clock.Add(2 * time.Minute)
	result = f.core.HandleMessage(ctx, "g1", "u1", "c1")
	if !result.Awarded || result.XP != 15 {
		t.Errorf("got %+v, want a full award after the reset", result)
	}
}

func TestHandleMessageRoleMultiplier(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	f.core.rng = func(n int64) int64 { return 0 }

	cfg, _ := f.guilds.Get(ctx, "g1")
	cfg.RoleMultipliers["supporter"] = 2.0
	f.dir.memberRoles["supporter"] = true

	result := f.core.HandleMessage(ctx, "g1", "u1", "c1")
	if result.XP != 30 {
		t.Errorf("XP = %d, want 30", result.XP)
	}
}

func TestRemoveXPFloorsAtZero(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	f.users.Seed(&models.UserProgress{
		GuildID: "g1", UserID: "u1",
		TotalXP: 100, XP: 100, Level: 1,
		BoostMultiplier: 1,
	})

	result, err := f.core.RemoveXP(ctx, "g1", "u1", 500)
	if err != nil {
		t.Fatalf("RemoveXP: %v", err)
	}
	if result.TotalXP != 0 || result.NewLevel != 0 {
		t.Errorf("got total=%d level=%d, want 0/0", result.TotalXP, result.NewLevel)
	}
	// Demotion is silent.
	if len(f.sink.levelUps) != 0 {
		t.Errorf("got %d notices, want none", len(f.sink.levelUps))
	}
}

func TestSetLevelPinsTotalXP(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	if err := f.core.SetLevel(ctx, "g1", "u1", 3); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.Level != 3 || user.TotalXP != 901 {
		t.Errorf("level=%d totalXP=%d, want 3/901", user.Level, user.TotalXP)
	}
}

func TestProgressFor(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	f.users.Seed(&models.UserProgress{
		GuildID: "g1", UserID: "u1",
		TotalXP: 400, Level: 2,
		BoostMultiplier: 1,
	})

	p, err := f.core.ProgressFor(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("ProgressFor: %v", err)
	}
	if p.Level != 2 || p.IntoLevel != 18 || p.NeededForNext != 519 {
		t.Errorf("got %+v, want level 2, 18 into, 519 needed", p)
	}
}

func TestPerkName(t *testing.T) {
	if got := PerkName("lucky_charm"); got != "Lucky Charm" {
		t.Errorf("PerkName(lucky_charm) = %q", got)
	}
	if got := PerkName("mystery"); got != "mystery" {
		t.Errorf("unknown perk should fall back to id, got %q", got)
	}
}
