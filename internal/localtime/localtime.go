// Package localtime converts between wall-clock times in the household's
// configured zone and the UTC instants used for storage and queries.
package localtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is an inclusive UTC range [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies within the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

func (w Window) Empty() bool {
	return w.To.Before(w.From)
}

// Zone wraps the configured IANA location.
type Zone struct {
	loc *time.Location
}

// Load resolves an IANA zone name such as "Asia/Jerusalem".
func Load(name string) (Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// FromLocation wraps an existing location, e.g. a time.FixedZone in tests.
func FromLocation(loc *time.Location) Zone {
	return Zone{loc: loc}
}

func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z Zone) String() string {
	return z.Location().String()
}

// In returns t as wall-clock time in the zone.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.Location())
}

// Date returns the UTC instant of the given local wall-clock time.
func (z Zone) Date(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, z.Location()).UTC()
}

// StartOfDay returns local midnight of t's local day, as UTC.
func (z Zone) StartOfDay(t time.Time) time.Time {
	l := z.In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, z.Location()).UTC()
}

// EndOfDay returns the last nanosecond of t's local day, as UTC.
func (z Zone) EndOfDay(t time.Time) time.Time {
	l := z.In(t)
	next := time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, z.Location())
	return next.Add(-time.Nanosecond).UTC()
}

// Today is the full local day containing now.
func (z Zone) Today(now time.Time) Window {
	return Window{From: z.StartOfDay(now), To: z.EndOfDay(now)}
}

// DaysAhead runs from now until the end of the local day `days` days later.
// It is the batch generation horizon.
func (z Zone) DaysAhead(now time.Time, days int) Window {
	l := z.In(now)
	return Window{From: now.UTC(), To: z.EndOfDay(l.AddDate(0, 0, days))}
}

// Week runs from the start of today through the end of the sixth day after,
// seven local days in all.
func (z Zone) Week(now time.Time) Window {
	return z.Days(now, 7)
}

// Days covers `days` whole local days starting with today.
func (z Zone) Days(now time.Time, days int) Window {
	l := z.In(now)
	return Window{From: z.StartOfDay(now), To: z.EndOfDay(l.AddDate(0, 0, days-1))}
}

// LastDays covers the `days` local days ending with today.
func (z Zone) LastDays(now time.Time, days int) Window {
	l := z.In(now)
	return Window{From: z.StartOfDay(l.AddDate(0, 0, -(days - 1))), To: z.EndOfDay(now)}
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a strict "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || !twoDigits(hh) || !twoDigits(mm) {
		return Clock{}, fmt.Errorf("invalid due time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid due time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid due time %q: bad minute", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// twoDigits reports whether s is exactly two ASCII digits.
func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On replaces the time of day of local, keeping its date and location.
// Seconds and sub-seconds are zeroed.
func (c Clock) On(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, local.Location())
}

// ParseDueTime stamps base with dueTime. An empty dueTime returns base as is.
func ParseDueTime(base time.Time, dueTime string) (time.Time, error) {
	if dueTime == "" {
		return base, nil
	}
	c, err := ParseClock(dueTime)
	if err != nil {
		return time.Time{}, err
	}
	return c.On(base), nil
}
