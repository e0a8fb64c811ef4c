package events

import (
	"testing"
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
)

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 30, 0, 0, time.UTC)
}

func TestScheduleMatches(t *testing.T) {
	weekend := models.Schedule{Weekdays: []time.Weekday{time.Saturday, time.Sunday}}
	happyHour := models.Schedule{StartHour: 18, EndHour: 20}
	nightOwl := models.Schedule{StartHour: 22, EndHour: 4}
	either := models.Schedule{Weekdays: []time.Weekday{time.Tuesday}, MonthDays: []int{15}}
	both := models.Schedule{Weekdays: []time.Weekday{time.Tuesday}, MonthDays: []int{15}, RequireBoth: true}
	december := models.Schedule{Months: []time.Month{time.December}}

	tests := []struct {
		name     string
		schedule models.Schedule
		now      time.Time
		want     bool
	}{
		{"weekend on saturday", weekend, at(2026, time.January, 3, 12), true},
		{"weekend on sunday", weekend, at(2026, time.January, 4, 12), true},
		{"weekend on friday", weekend, at(2026, time.January, 2, 12), false},

		{"hour window start", happyHour, at(2026, time.January, 3, 18), true},
		{"hour window middle", happyHour, at(2026, time.January, 3, 19), true},
		{"hour window end is exclusive", happyHour, at(2026, time.January, 3, 20), false},
		{"hour window before", happyHour, at(2026, time.January, 3, 17), false},

		{"wrapped window late evening", nightOwl, at(2026, time.January, 3, 23), true},
		{"wrapped window early morning", nightOwl, at(2026, time.January, 3, 3), true},
		{"wrapped window midday", nightOwl, at(2026, time.January, 3, 12), false},

		{"either dimension: weekday only", either, at(2026, time.September, 8, 12), true},
		{"either dimension: month day only", either, at(2026, time.October, 15, 12), true},
		{"either dimension: neither", either, at(2026, time.October, 14, 12), false},

		{"require both: both match", both, at(2026, time.September, 15, 12), true},
		{"require both: weekday only", both, at(2026, time.September, 8, 12), false},
		{"require both: month day only", both, at(2026, time.October, 15, 12), false},

		{"month filter matches", december, at(2026, time.December, 10, 12), true},
		{"month filter rejects", december, at(2026, time.November, 10, 12), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScheduleMatches(tt.schedule, tt.now); got != tt.want {
				t.Errorf("ScheduleMatches(%+v, %v) = %v, want %v", tt.schedule, tt.now, got, tt.want)
			}
		})
	}
}

func TestWindowEnd(t *testing.T) {
	now := at(2026, time.January, 3, 19) // 19:30

	unbounded := models.Schedule{Weekdays: []time.Weekday{time.Saturday}}
	if got := WindowEnd(unbounded, now); !got.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("unbounded window end = %v, want +24h", got)
	}

	happyHour := models.Schedule{StartHour: 18, EndHour: 20}
	want := time.Date(2026, time.January, 3, 20, 0, 0, 0, time.UTC)
	if got := WindowEnd(happyHour, now); !got.Equal(want) {
		t.Errorf("bounded window end = %v, want %v", got, want)
	}

	nightOwl := models.Schedule{StartHour: 22, EndHour: 4}
	wrapped := time.Date(2026, time.January, 3, 23, 30, 0, 0, time.UTC)
	wantWrapped := time.Date(2026, time.January, 4, 4, 0, 0, 0, time.UTC)
	if got := WindowEnd(nightOwl, wrapped); !got.Equal(wantWrapped) {
		t.Errorf("wrapped window end = %v, want %v", got, wantWrapped)
	}
}
