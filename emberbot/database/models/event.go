package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventKind is the reward stream an event modifies.
type EventKind string

const (
	EventXPMultiplier   EventKind = "xp_multiplier"
	EventCoinMultiplier EventKind = "coin_multiplier"
	EventTokenBonus     EventKind = "token_bonus"
	EventSale           EventKind = "sale"
	EventBoxBonus       EventKind = "box_bonus"
)

// Valid reports whether the kind is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventXPMultiplier, EventCoinMultiplier, EventTokenBonus, EventSale, EventBoxBonus:
		return true
	}
	return false
}

// Event is a time-scoped reward modifier. An event is either explicitly
// scheduled with StartsAt/EndsAt or recurs on a Schedule; the hourly scan
// activates recurring events whose window matches the current time.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	ID      int64     `bun:"id,pk,autoincrement"`
	GuildID string    `bun:"guild_id,notnull"`
	EventID string    `bun:"event_id,notnull"`
	Name    string    `bun:"name,notnull"`
	Kind    EventKind `bun:"kind,notnull"`

	Multiplier float64 `bun:"multiplier,notnull,default:1"`
	Bonus      int64   `bun:"bonus,notnull,default:0"`

	Schedule Schedule `bun:"schedule,type:jsonb"`

	Active   bool      `bun:"active,notnull,default:false"`
	StartsAt time.Time `bun:"starts_at,nullzero"`
	EndsAt   time.Time `bun:"ends_at,nullzero"`

	TimesTriggered int `bun:"times_triggered,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Schedule describes a recurring activation window. Empty slices match
// everything for that dimension. Hours are half-open [StartHour, EndHour) and
// may wrap past midnight. When RequireBoth is set a date must match both a
// month-day and a weekday to activate.
type Schedule struct {
	Weekdays    []time.Weekday `json:"weekdays,omitempty"`
	StartHour   int            `json:"start_hour"`
	EndHour     int            `json:"end_hour"`
	Months      []time.Month   `json:"months,omitempty"`
	MonthDays   []int          `json:"month_days,omitempty"`
	RequireBoth bool           `json:"require_both,omitempty"`
}

// IsScheduled reports whether the event recurs rather than running once
// between explicit start/end times.
func (e *Event) IsScheduled() bool {
	s := e.Schedule
	return len(s.Weekdays) > 0 || len(s.Months) > 0 || len(s.MonthDays) > 0 ||
		s.StartHour != 0 || s.EndHour != 0
}

// Expired reports whether an active event's window has passed.
func (e *Event) Expired(now time.Time) bool {
	return !e.EndsAt.IsZero() && !e.EndsAt.After(now)
}
