package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/uptrace/bun"
)

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByEventID(ctx context.Context, guildID, eventID string) (*models.Event, error)
	ListByGuild(ctx context.Context, guildID string) ([]*models.Event, error)

	// ListScheduled returns inactive events with a recurring schedule across
	// all guilds, for the hourly activation scan.
	ListScheduled(ctx context.Context) ([]*models.Event, error)
	ListActive(ctx context.Context) ([]*models.Event, error)

	Activate(ctx context.Context, id int64, startsAt, endsAt time.Time) error
	Deactivate(ctx context.Context, id int64) error
	DeactivateExpired(ctx context.Context, now time.Time) ([]*models.Event, error)
}

type eventRepository struct {
	db *bun.DB
}

func NewEventRepository(db *bun.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	_, err := r.db.NewInsert().
		Model(event).
		On("CONFLICT (guild_id, event_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("kind = EXCLUDED.kind").
		Set("multiplier = EXCLUDED.multiplier").
		Set("bonus = EXCLUDED.bonus").
		Set("schedule = EXCLUDED.schedule").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

func (r *eventRepository) GetByEventID(ctx context.Context, guildID, eventID string) (*models.Event, error) {
	event := new(models.Event)
	err := r.db.NewSelect().
		Model(event).
		Where("guild_id = ?", guildID).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *eventRepository) ListByGuild(ctx context.Context, guildID string) ([]*models.Event, error) {
	var events []*models.Event
	err := r.db.NewSelect().
		Model(&events).
		Where("guild_id = ?", guildID).
		Order("event_id ASC").
		Scan(ctx)
	return events, err
}

func (r *eventRepository) ListScheduled(ctx context.Context) ([]*models.Event, error) {
	var events []*models.Event
	err := r.db.NewSelect().
		Model(&events).
		Where("active = false").
		Where("schedule IS NOT NULL").
		Scan(ctx)
	return events, err
}

func (r *eventRepository) ListActive(ctx context.Context) ([]*models.Event, error) {
	var events []*models.Event
	err := r.db.NewSelect().
		Model(&events).
		Where("active = true").
		Scan(ctx)
	return events, err
}

func (r *eventRepository) Activate(ctx context.Context, id int64, startsAt, endsAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.Event)(nil)).
		Set("active = true").
		Set("starts_at = ?", startsAt).
		Set("ends_at = ?", endsAt).
		Set("times_triggered = times_triggered + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *eventRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Event)(nil)).
		Set("active = false").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *eventRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]*models.Event, error) {
	var expired []*models.Event
	err := r.db.NewSelect().
		Model(&expired).
		Where("active = true").
		Where("ends_at IS NOT NULL").
		Where("ends_at <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, ev := range expired {
		if err := r.Deactivate(ctx, ev.ID); err != nil {
			return expired, fmt.Errorf("failed to deactivate event %s: %w", ev.EventID, err)
		}
	}
	return expired, nil
}
