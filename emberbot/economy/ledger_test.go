package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/events"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

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

type ledgerFixture struct {
	ledger   *Ledger
	users    *repositories.MemoryUserStore
	guilds   *repositories.MemoryGuildConfigs
	eventsDB *repositories.MemoryEventStore
	registry *events.Registry
	sink     *fakeSink
	clock    *clock.Mock
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	users := repositories.NewMemoryUserStore()
	guilds := repositories.NewMemoryGuildConfigs()
	eventsDB := repositories.NewMemoryEventStore()
	registry := events.NewRegistry(eventsDB, guilds, nil, clk)
	sink := &fakeSink{}
	ledger := NewLedger(users, registry, sink, clk)

	return &ledgerFixture{
		ledger:   ledger,
		users:    users,
		guilds:   guilds,
		eventsDB: eventsDB,
		registry: registry,
		sink:     sink,
		clock:    clk,
	}
}

// activateEvent seeds an active event and rebuilds the registry index.
func (f *ledgerFixture) activateEvent(t *testing.T, ev *models.Event) {
	t.Helper()
	ctx := context.Background()
	ev.Active = true
	if ev.EndsAt.IsZero() {
		ev.EndsAt = f.clock.Now().Add(time.Hour)
	}
	if err := f.eventsDB.Create(ctx, ev); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	if err := f.registry.RefreshIndex(ctx); err != nil {
		t.Fatalf("refresh index: %v", err)
	}
}

func TestGiveCurrencyValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	if r := f.ledger.GiveCurrency(ctx, "g1", "u1", "gems", 100, "test"); r.Reason != ReasonInvalidCurrency {
		t.Errorf("unknown currency: got reason %q", r.Reason)
	}
	if r := f.ledger.GiveCurrency(ctx, "g1", "u1", CurrencyCoins, 0, "test"); r.Reason != ReasonInvalidAmount {
		t.Errorf("zero amount: got reason %q", r.Reason)
	}
	if r := f.ledger.GiveCurrency(ctx, "g1", "u1", CurrencyCoins, -5, "test"); r.Reason != ReasonInvalidAmount {
		t.Errorf("negative amount: got reason %q", r.Reason)
	}
}

func TestGiveCurrencyAppliesEventMultiplier(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.activateEvent(t, &models.Event{
		GuildID: "g1", EventID: "happy_hour", Name: "Happy Hour",
		Kind: models.EventCoinMultiplier, Multiplier: 2.0,
	})

	r := f.ledger.GiveCurrency(ctx, "g1", "u1", CurrencyCoins, 100, "test")
	if !r.Success {
		t.Fatalf("give failed: %+v", r)
	}
	if r.BaseAmount != 100 || r.FinalAmount != 200 || r.Multiplier != 2.0 {
		t.Errorf("got base=%d final=%d mult=%v, want 100/200/2", r.BaseAmount, r.FinalAmount, r.Multiplier)
	}
	if r.NewBalance != 200 {
		t.Errorf("NewBalance = %d, want 200", r.NewBalance)
	}
}

func TestGiveCurrencyFlatBonus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.activateEvent(t, &models.Event{
		GuildID: "g1", EventID: "token_tuesday", Name: "Token Tuesday",
		Kind: models.EventTokenBonus, Multiplier: 1.0, Bonus: 10,
	})

	r := f.ledger.GiveCurrency(ctx, "g1", "u1", CurrencyTokens, 50, "test")
	if !r.Success || r.FinalAmount != 60 || r.Bonus != 10 {
		t.Errorf("got final=%d bonus=%d, want 60/10", r.FinalAmount, r.Bonus)
	}
}

func TestGiveXPRoutesThroughApplier(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	var applied int64
	f.ledger.SetXPApplier(func(ctx context.Context, guildID, userID string, amount int64, source string) (int64, error) {
		applied += amount
		return applied, nil
	})

	r := f.ledger.GiveCurrency(ctx, "g1", "u1", CurrencyXP, 25, "message")
	if !r.Success || applied != 25 || r.NewBalance != 25 {
		t.Errorf("got applied=%d balance=%d, want 25/25", applied, r.NewBalance)
	}

	// The coin column must stay untouched by an xp grant.
	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.Coins != 0 {
		t.Errorf("coins = %d, want 0", user.Coins)
	}
}

func TestTakeCurrencyInsufficientFunds(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.users.Seed(&models.UserProgress{GuildID: "g1", UserID: "u1", Coins: 50, BoostMultiplier: 1})

	r := f.ledger.TakeCurrency(ctx, "g1", "u1", CurrencyCoins, 100, "test")
	if r.Success || r.Reason != ReasonInsufficientFunds {
		t.Fatalf("got %+v, want insufficient_funds", r)
	}
	if r.Required != 100 || r.Available != 50 {
		t.Errorf("required=%d available=%d, want 100/50", r.Required, r.Available)
	}

	user, _ := f.users.Get(ctx, "g1", "u1")
	if user.Coins != 50 {
		t.Errorf("balance mutated to %d on failed debit", user.Coins)
	}
}

func TestTakeCurrencyIgnoresEventMultipliers(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.activateEvent(t, &models.Event{
		GuildID: "g1", EventID: "double", Name: "Double",
		Kind: models.EventCoinMultiplier, Multiplier: 2.0,
	})
	f.users.Seed(&models.UserProgress{GuildID: "g1", UserID: "u1", Coins: 500, BoostMultiplier: 1})

	r := f.ledger.TakeCurrency(ctx, "g1", "u1", CurrencyCoins, 100, "test")
	if !r.Success || r.NewBalance != 400 {
		t.Errorf("got %+v, want balance 400", r)
	}
}

func TestTransferCurrency(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.users.Seed(&models.UserProgress{GuildID: "g1", UserID: "alice", Coins: 500, BoostMultiplier: 1})

	r := f.ledger.TransferCurrency(ctx, "g1", "alice", "bob", CurrencyCoins, 200)
	if !r.Success {
		t.Fatalf("transfer failed: %+v", r)
	}

	alice, _ := f.users.Get(ctx, "g1", "alice")
	bob, _ := f.users.Get(ctx, "g1", "bob")
	if alice.Coins != 300 || bob.Coins != 200 {
		t.Errorf("alice=%d bob=%d, want 300/200", alice.Coins, bob.Coins)
	}
}

func TestTransferCompensatesFailedGive(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.users.Seed(&models.UserProgress{GuildID: "g1", UserID: "alice", Coins: 500, BoostMultiplier: 1})
	f.users.AddBalanceFail = map[string]error{"bob": errors.New("connection reset")}

	r := f.ledger.TransferCurrency(ctx, "g1", "alice", "bob", CurrencyCoins, 200)
	if r.Success || r.Reason != ReasonInternal {
		t.Fatalf("got %+v, want internal failure", r)
	}

	alice, _ := f.users.Get(ctx, "g1", "alice")
	if alice.Coins != 500 {
		t.Errorf("alice = %d after compensation, want 500", alice.Coins)
	}
}
