package voice

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"golang.org/x/sync/errgroup"
)

// State of a voice session. Only Active time earns rewards.
type State int

const (
	StateActive State = iota
	StateMuted
)

// Session is the transient per-(guild,user) accrual record. Sessions live in
// memory and are periodically persisted; a crash loses at most the window
// since the last backup sweep.
type Session struct {
	GuildID   string
	UserID    string
	ChannelID string
	State     State

	Start      time.Time
	LastUpdate time.Time

	AccumulatedMinutes int64
	CoinsEarned        int64
	persistedMinutes   int64
}

// Presence is a snapshot row used to rehydrate sessions after a restart.
// Time spent in voice during the outage earns nothing.
type Presence struct {
	GuildID   string
	UserID    string
	ChannelID string
	Muted     bool
}

// Tracker runs the per-user voice session state machine and flushes earned
// minutes into the ledger.
type Tracker struct {
	users      repositories.UserProgressRepository
	guildCfg   repositories.GuildConfigRepository
	ledger     *economy.Ledger
	clock      clock.Clock

	mu       sync.Mutex
	sessions map[string]*Session // guildID:userID
}

func NewTracker(users repositories.UserProgressRepository, guildCfg repositories.GuildConfigRepository, ledger *economy.Ledger, clk clock.Clock) *Tracker {
	return &Tracker{
		users:    users,
		guildCfg: guildCfg,
		ledger:   ledger,
		clock:    clk,
		sessions: make(map[string]*Session),
	}
}

// HandleVoiceState drives the state machine from a gateway voice update. An
// empty channelID means the user left voice.
func (t *Tracker) HandleVoiceState(ctx context.Context, guildID, userID, channelID string, muted bool) {
	now := t.clock.Now()
	key := guildID + ":" + userID

	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[key]

	if channelID == "" {
		if ok {
			t.flushLocked(ctx, session, now)
			delete(t.sessions, key)
		}
		return
	}

	if !ok {
		state := StateActive
		if muted {
			state = StateMuted
		}
		t.sessions[key] = &Session{
			GuildID:    guildID,
			UserID:     userID,
			ChannelID:  channelID,
			State:      state,
			Start:      now,
			LastUpdate: now,
		}
		return
	}

	if session.ChannelID != channelID {
		// Channel hop: settle earned minutes at the old channel's multiplier.
		t.flushLocked(ctx, session, now)
		session.ChannelID = channelID
		session.LastUpdate = now
	}

	switch {
	case session.State == StateActive && muted:
		t.flushLocked(ctx, session, now)
		session.State = StateMuted
	case session.State == StateMuted && !muted:
		session.State = StateActive
		session.LastUpdate = now
	}
}

// flushLocked credits whole minutes of Active time and carries the sub-minute
// remainder forward through LastUpdate. Callers hold the mutex.
func (t *Tracker) flushLocked(ctx context.Context, session *Session, now time.Time) {
	if session.State != StateActive {
		return
	}

	elapsed := now.Sub(session.LastUpdate)
	minutes := int64(elapsed / time.Minute)
	if minutes < 1 {
		return
	}
	session.LastUpdate = session.LastUpdate.Add(time.Duration(minutes) * time.Minute)
	session.AccumulatedMinutes += minutes

	cfg, err := t.guildCfg.Get(ctx, session.GuildID)
	if err != nil {
		slog.Error("Failed to load guild config for voice payout",
			slog.String("type", "db"),
			slog.String("guild_id", session.GuildID),
			slog.Any("error", err))
		return
	}

	user, err := t.users.GetOrCreate(ctx, session.GuildID, session.UserID)
	if err != nil {
		slog.Error("Failed to load user for voice payout",
			slog.String("type", "db"),
			slog.String("user_id", session.UserID),
			slog.Any("error", err))
		return
	}

	payout := int64(math.Floor(float64(minutes) *
		float64(cfg.VoiceCoinsPerMinute) *
		cfg.ChannelMultiplier(session.ChannelID) *
		user.ActiveBoost(now)))
	if cfg.DailyCoinCap > 0 && payout > cfg.DailyCoinCap-user.CoinsToday {
		payout = cfg.DailyCoinCap - user.CoinsToday
	}
	if payout <= 0 {
		return
	}

	give := t.ledger.GiveCurrency(ctx, session.GuildID, session.UserID, economy.CurrencyCoins, payout, "voice")
	if !give.Success {
		return
	}
	session.CoinsEarned += give.FinalAmount

	if cfg.DailyCoinCap > 0 {
		if err := t.users.AddDailyEarned(ctx, session.GuildID, session.UserID, 0, give.FinalAmount); err != nil {
			slog.Error("Failed to record daily coin earnings",
				slog.String("type", "db"),
				slog.String("user_id", session.UserID),
				slog.Any("error", err))
		}
	}
}

// FlushAll force-flushes every active session; registered on the scheduler at
// a one-minute interval so long sessions pay out steadily.
func (t *Tracker) FlushAll(ctx context.Context) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, session := range t.sessions {
		t.flushLocked(ctx, session, now)
	}
}

// PersistAll writes in-memory minute totals to durable storage; registered at
// a two-minute interval for crash resilience.
func (t *Tracker) PersistAll(ctx context.Context) {
	t.mu.Lock()
	pending := make([]*Session, 0, len(t.sessions))
	for _, session := range t.sessions {
		if session.AccumulatedMinutes > session.persistedMinutes {
			pending = append(pending, session)
		}
	}
	t.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, session := range pending {
		session := session
		g.Go(func() error {
			t.mu.Lock()
			delta := session.AccumulatedMinutes - session.persistedMinutes
			t.mu.Unlock()
			if delta <= 0 {
				return nil
			}
			if err := t.users.AddVoiceMinutes(gctx, session.GuildID, session.UserID, delta); err != nil {
				return err
			}
			t.mu.Lock()
			session.persistedMinutes += delta
			t.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("Voice minute backup failed",
			slog.String("type", "db"),
			slog.Any("error", err))
	}
}

// Rehydrate rebuilds sessions from current channel membership after a
// restart. Start times are fresh: no retroactive credit for the outage.
func (t *Tracker) Rehydrate(entries []Presence) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range entries {
		state := StateActive
		if p.Muted {
			state = StateMuted
		}
		t.sessions[p.GuildID+":"+p.UserID] = &Session{
			GuildID:    p.GuildID,
			UserID:     p.UserID,
			ChannelID:  p.ChannelID,
			State:      state,
			Start:      now,
			LastUpdate: now,
		}
	}
	slog.Info("Voice sessions rehydrated",
		slog.String("type", "sys"),
		slog.Int("sessions", len(entries)))
}

// SessionCount returns the number of live sessions.
func (t *Tracker) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot returns a copy of the session for display, if present.
func (t *Tracker) Snapshot(guildID, userID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[guildID+":"+userID]; ok {
		return *s, true
	}
	return Session{}, false
}
