package agenda

import (
	"fmt"
	"strings"
	"time"
)

// ViewMode selects the calendar grid.
type ViewMode string

const (
	DayView   ViewMode = "day"
	WeekView  ViewMode = "week"
	MonthView ViewMode = "month"
)

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case DayView, "giorno":
		return DayView, nil
	case WeekView, "settimana", "":
		return WeekView, nil
	case MonthView, "mese":
		return MonthView, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// startOfWeek returns the Monday of day's week.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return AddDays(day, -offset)
}

// Grid returns the midnights of every day cell for mode around ref.
// Weeks start on Monday. The month grid covers whole weeks, so it includes
// days of the neighbouring months.
func Grid(mode ViewMode, ref time.Time, loc *time.Location) []time.Time {
	ref = StartOfDay(ref, loc)

	var first, last time.Time
	switch mode {
	case DayView:
		return []time.Time{ref}
	case MonthView:
		first = startOfWeek(time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc))
		last = AddDays(startOfWeek(time.Date(ref.Year(), ref.Month()+1, 0, 0, 0, 0, 0, loc)), 6)
	default:
		first = startOfWeek(ref)
		last = AddDays(first, 6)
	}

	var days []time.Time
	for d := first; !d.After(last); d = AddDays(d, 1) {
		days = append(days, d)
	}
	return days
}

// Range is the window readers must cover for a view.
func Range(mode ViewMode, ref time.Time, loc *time.Location) Window {
	days := Grid(mode, ref, loc)
	return Window{Start: days[0], End: EndOfDay(days[len(days)-1], loc)}
}

// OnDay reports whether item belongs to the bucket of calendar day.
//
// Deadlines and to-dos match on calendar dates only: their anchor or due date
// must fall on day. Other items also match every day of their interval.
func OnDay(it Item, day time.Time, loc *time.Location) bool {
	if SameDay(it.Start, day, loc) {
		return true
	}
	if it.Due != nil && SameDay(*it.Due, day, loc) {
		return true
	}
	if it.Origin.DueDateOnly() {
		return false
	}
	return it.Interval() && dayWithin(day, it.Start, *it.End, loc)
}
