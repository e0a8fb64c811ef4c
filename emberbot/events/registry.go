package events

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

// RewardBreakdown describes how an amount was modified by active events.
type RewardBreakdown struct {
	BaseAmount  int64
	FinalAmount int64
	Multiplier  float64
	Bonus       int64
}

// Registry is the in-memory index of active events plus the periodic scans
// that keep it aligned with the database. Reads during reward calculation
// never hit the repository.
type Registry struct {
	repo      repositories.EventRepository
	guildRepo repositories.GuildConfigRepository
	sink      interfaces.NotificationSink
	clock     clock.Clock

	mu     sync.RWMutex
	active map[string][]*models.Event // guildID -> active events
}

func NewRegistry(repo repositories.EventRepository, guildRepo repositories.GuildConfigRepository, sink interfaces.NotificationSink, clk clock.Clock) *Registry {
	return &Registry{
		repo:      repo,
		guildRepo: guildRepo,
		sink:      sink,
		clock:     clk,
		active:    make(map[string][]*models.Event),
	}
}

// RefreshIndex rebuilds the in-memory index from the database; called once at
// startup so active events survive restarts.
func (r *Registry) RefreshIndex(ctx context.Context) error {
	events, err := r.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active events: %w", err)
	}

	index := make(map[string][]*models.Event)
	for _, ev := range events {
		index[ev.GuildID] = append(index[ev.GuildID], ev)
	}

	r.mu.Lock()
	r.active = index
	r.mu.Unlock()

	slog.Info("Event index rebuilt",
		slog.String("type", "sys"),
		slog.Int("active_events", len(events)))
	return nil
}

// ApplyEventRewards multiplies the amount by the product of every active
// matching multiplier, then adds the sum of every active matching flat bonus.
func (r *Registry) ApplyEventRewards(guildID string, amount int64, kind models.EventKind) RewardBreakdown {
	mult, bonus := r.aggregate(guildID, kind)
	final := int64(math.Floor(float64(amount)*mult)) + bonus
	return RewardBreakdown{
		BaseAmount:  amount,
		FinalAmount: final,
		Multiplier:  mult,
		Bonus:       bonus,
	}
}

// ActiveMultiplier exposes the aggregate multiplier for display without
// mutating anything.
func (r *Registry) ActiveMultiplier(guildID string, kind models.EventKind) float64 {
	mult, _ := r.aggregate(guildID, kind)
	return mult
}

// ActiveSaleDiscount returns the strongest discount fraction among active
// sale events, capped at 90%.
func (r *Registry) ActiveSaleDiscount(guildID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	discount := 0.0
	for _, ev := range r.active[guildID] {
		if ev.Kind == models.EventSale && ev.Multiplier > discount {
			discount = ev.Multiplier
		}
	}
	return math.Min(discount, 0.9)
}

func (r *Registry) aggregate(guildID string, kind models.EventKind) (float64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mult := 1.0
	var bonus int64
	for _, ev := range r.active[guildID] {
		if ev.Kind != kind {
			continue
		}
		if ev.Multiplier > 0 {
			mult *= ev.Multiplier
		}
		bonus += ev.Bonus
	}
	return mult, bonus
}

// ActivationScan activates scheduled events whose window covers the current
// time; registered hourly.
func (r *Registry) ActivationScan(ctx context.Context) {
	now := r.clock.Now()

	scheduled, err := r.repo.ListScheduled(ctx)
	if err != nil {
		slog.Error("Event activation scan failed",
			slog.String("type", "db"),
			slog.Any("error", err))
		return
	}

	for _, ev := range scheduled {
		if !ev.IsScheduled() || !ScheduleMatches(ev.Schedule, now) {
			continue
		}

		cfg, err := r.guildRepo.Get(ctx, ev.GuildID)
		if err != nil {
			slog.Error("Failed to load guild config for event activation",
				slog.String("guild_id", ev.GuildID),
				slog.Any("error", err))
			continue
		}
		if !cfg.EventAutoStart {
			continue
		}

		endsAt := WindowEnd(ev.Schedule, now)
		if err := r.repo.Activate(ctx, ev.ID, now, endsAt); err != nil {
			slog.Error("Failed to activate event",
				slog.String("event_id", ev.EventID),
				slog.Any("error", err))
			continue
		}

		ev.Active = true
		ev.StartsAt = now
		ev.EndsAt = endsAt
		r.addToIndex(ev)

		slog.Info("Event activated",
			slog.String("type", "sys"),
			slog.String("guild_id", ev.GuildID),
			slog.String("event_id", ev.EventID),
			slog.Time("ends_at", endsAt))

		r.announce(ctx, cfg, ev, true)
	}
}

// ExpiryScan deactivates events whose end has passed; registered every five
// minutes.
func (r *Registry) ExpiryScan(ctx context.Context) {
	now := r.clock.Now()

	expired, err := r.repo.DeactivateExpired(ctx, now)
	if err != nil {
		slog.Error("Event expiry scan failed",
			slog.String("type", "db"),
			slog.Any("error", err))
		return
	}

	for _, ev := range expired {
		r.removeFromIndex(ev.GuildID, ev.ID)
		slog.Info("Event expired",
			slog.String("type", "sys"),
			slog.String("guild_id", ev.GuildID),
			slog.String("event_id", ev.EventID))

		if cfg, err := r.guildRepo.Get(ctx, ev.GuildID); err == nil {
			r.announce(ctx, cfg, ev, false)
		}
	}
}

// PruneIndex evicts expired entries that slipped past the expiry scan;
// registered every thirty minutes.
func (r *Registry) PruneIndex(_ context.Context) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for guildID, list := range r.active {
		kept := list[:0]
		for _, ev := range list {
			if !ev.Expired(now) {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			delete(r.active, guildID)
		} else {
			r.active[guildID] = kept
		}
	}
}

// StartEvent is the admin path: activates an event immediately for the given
// duration regardless of its schedule.
func (r *Registry) StartEvent(ctx context.Context, guildID, eventID string, duration time.Duration) (*models.Event, error) {
	ev, err := r.repo.GetByEventID(ctx, guildID, eventID)
	if err != nil {
		return nil, fmt.Errorf("event not found: %w", err)
	}
	if ev.Active {
		return ev, nil
	}

	now := r.clock.Now()
	if err := r.repo.Activate(ctx, ev.ID, now, now.Add(duration)); err != nil {
		return nil, err
	}
	ev.Active = true
	ev.StartsAt = now
	ev.EndsAt = now.Add(duration)
	r.addToIndex(ev)

	if cfg, err := r.guildRepo.Get(ctx, guildID); err == nil {
		r.announce(ctx, cfg, ev, true)
	}
	return ev, nil
}

// StopEvent is the admin path: deactivates an event immediately.
func (r *Registry) StopEvent(ctx context.Context, guildID, eventID string) error {
	ev, err := r.repo.GetByEventID(ctx, guildID, eventID)
	if err != nil {
		return fmt.Errorf("event not found: %w", err)
	}
	if err := r.repo.Deactivate(ctx, ev.ID); err != nil {
		return err
	}
	r.removeFromIndex(guildID, ev.ID)
	return nil
}

func (r *Registry) addToIndex(ev *models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.active[ev.GuildID] {
		if existing.ID == ev.ID {
			return
		}
	}
	r.active[ev.GuildID] = append(r.active[ev.GuildID], ev)
}

func (r *Registry) removeFromIndex(guildID string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.active[guildID]
	for i, ev := range list {
		if ev.ID == id {
			r.active[guildID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (r *Registry) announce(ctx context.Context, cfg *models.GuildConfig, ev *models.Event, started bool) {
	if r.sink == nil || cfg.AnnounceChannelID == "" {
		return
	}
	details := fmt.Sprintf("x%.2f multiplier", ev.Multiplier)
	if ev.Bonus > 0 {
		details = fmt.Sprintf("%s, +%d bonus", details, ev.Bonus)
	}
	r.sink.NotifyEvent(ctx, interfaces.EventNotice{
		GuildID:   ev.GuildID,
		ChannelID: cfg.AnnounceChannelID,
		EventName: ev.Name,
		Started:   started,
		Details:   details,
	})
}
