package events

import (
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
)

// ScheduleMatches reports whether a recurring schedule covers the given
// instant. Pure so it can be tested against a table of dates without any
// repository or clock.
func ScheduleMatches(s models.Schedule, now time.Time) bool {
	if len(s.Months) > 0 && !containsMonth(s.Months, now.Month()) {
		return false
	}

	if !hourInWindow(s, now.Hour()) {
		return false
	}

	hasWeekdays := len(s.Weekdays) > 0
	hasMonthDays := len(s.MonthDays) > 0

	weekdayOK := !hasWeekdays || containsWeekday(s.Weekdays, now.Weekday())
	monthDayOK := !hasMonthDays || containsInt(s.MonthDays, now.Day())

	if s.RequireBoth {
		return weekdayOK && monthDayOK
	}

	// With both dimensions configured, matching either one activates.
	if hasWeekdays && hasMonthDays {
		return containsWeekday(s.Weekdays, now.Weekday()) || containsInt(s.MonthDays, now.Day())
	}
	return weekdayOK && monthDayOK
}

// WindowEnd returns when the current activation window closes. Events with no
// hour bounds default to a 24 hour run.
func WindowEnd(s models.Schedule, now time.Time) time.Time {
	if s.StartHour == 0 && s.EndHour == 0 {
		return now.Add(24 * time.Hour)
	}

	end := time.Date(now.Year(), now.Month(), now.Day(), s.EndHour, 0, 0, 0, now.Location())
	if !end.After(now) {
		// Wrapped window, ends tomorrow.
		end = end.Add(24 * time.Hour)
	}
	return end
}

func hourInWindow(s models.Schedule, hour int) bool {
	if s.StartHour == 0 && s.EndHour == 0 {
		return true
	}
	if s.StartHour <= s.EndHour {
		return hour >= s.StartHour && hour < s.EndHour
	}
	// Wraparound, e.g. 22 -> 4.
	return hour >= s.StartHour || hour < s.EndHour
}

func containsMonth(months []time.Month, m time.Month) bool {
	for _, x := range months {
		if x == m {
			return true
		}
	}
	return false
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
