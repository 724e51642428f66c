package agenda

import (
	"strings"
	"time"
)

// layouts carrying their own zone
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// layouts interpreted in the agenda time zone
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

type dateState int

const (
	dateAbsent dateState = iota
	dateOK
	dateMalformed
)

// parseDate accepts time.Time, strings in the layouts above and []byte.
func parseDate(v any, loc *time.Location) (time.Time, dateState) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, dateAbsent
	case time.Time:
		if t.IsZero() {
			return time.Time{}, dateAbsent
		}
		return t.In(loc), dateOK
	case *time.Time:
		if t == nil {
			return time.Time{}, dateAbsent
		}
		return parseDate(*t, loc)
	case []byte:
		return parseDate(string(t), loc)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, dateAbsent
		}
		for _, layout := range zonedLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.In(loc), dateOK
			}
		}
		for _, layout := range localLayouts {
			if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
				return parsed, dateOK
			}
		}
	}
	return time.Time{}, dateMalformed
}

// ParseDate parses a date the way rows are parsed. ok is false for absent
// or malformed values.
func ParseDate(v any, loc *time.Location) (time.Time, bool) {
	t, st := parseDate(v, loc)
	return t, st == dateOK
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999 of t's calendar day in loc. A deadline due on
// day D stays active through all of D.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}

// SameDay compares calendar dates in loc, ignoring time of day.
func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AddDays moves by calendar days, keeping midnight across DST changes.
func AddDays(day time.Time, n int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+n, 0, 0, 0, 0, day.Location())
}

// dayWithin reports whether day d lies in [from, to] comparing calendar dates only.
func dayWithin(d, from, to time.Time, loc *time.Location) bool {
	d, from, to = StartOfDay(d, loc), StartOfDay(from, loc), StartOfDay(to, loc)
	return !d.Before(from) && !d.After(to)
}
