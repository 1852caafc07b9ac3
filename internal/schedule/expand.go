// Package schedule turns a chore schedule into the UTC due instants that
// should exist inside a window.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
	"github.com/dukerupert/chorly/internal/recurrence"
)

// Expander evaluates schedules on the calendar of one zone.
type Expander struct {
	zone localtime.Zone
}

func NewExpander(zone localtime.Zone) *Expander {
	return &Expander{zone: zone}
}

// DueDates returns the due instants of s inside w (both ends inclusive),
// deduplicated and ascending, all in UTC.
//
// anchor is only read for RepeatingAfterCompletion schedules: it is the last
// approval of the chore, or the current time when it was never approved.
// A schedule that fails to evaluate returns an error wrapping
// model.ErrInvalidDefinition; it never degrades to an empty result.
func (e *Expander) DueDates(s model.Schedule, w localtime.Window, anchor time.Time) ([]time.Time, error) {
	var (
		dates []time.Time
		err   error
	)
	switch v := s.(type) {
	case model.OneTime:
		if w.Contains(v.DueAt) {
			dates = []time.Time{v.DueAt.UTC()}
		}
	case model.RepeatingCalendar:
		dates, err = e.calendar(v, w)
	case model.RepeatingAfterCompletion:
		dates, err = e.afterCompletion(v, w, anchor)
	case nil:
		return nil, fmt.Errorf("%w: missing schedule", model.ErrInvalidDefinition)
	default:
		return nil, fmt.Errorf("%w: unknown schedule %T", model.ErrInvalidDefinition, s)
	}
	if err != nil {
		return nil, err
	}
	return Normalize(dates), nil
}

// Normalize converts to UTC, sorts ascending and drops duplicate instants.
func Normalize(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return nil
	}
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = d.UTC()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	n := 1
	for i := 1; i < len(out); i++ {
		if !out[i].Equal(out[n-1]) {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

// clamp bounds the window's upper end by endsAt.
func clamp(w localtime.Window, endsAt *time.Time) localtime.Window {
	if endsAt != nil && endsAt.Before(w.To) {
		w.To = *endsAt
	}
	return w
}

func (e *Expander) calendar(s model.RepeatingCalendar, w localtime.Window) ([]time.Time, error) {
	rule, err := recurrence.Parse(s.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: rrule %q: %v", model.ErrInvalidDefinition, s.RRule, err)
	}
	clock, err := parseOptionalClock(s.DueTime)
	if err != nil {
		return nil, err
	}

	w = clamp(w, s.EndsAt)
	if w.Empty() {
		return nil, nil
	}

	// The rule walks local dates from midnight of from's local day. The
	// raw walk runs through the end of to's local day so that a date whose
	// stamped due time still lands in the window is not cut off early.
	dtstart := e.zone.In(e.zone.StartOfDay(w.From))
	last := e.zone.In(e.zone.EndOfDay(w.To))

	var dates []time.Time
	for _, day := range recurrence.Between(rule, dtstart, dtstart, last) {
		due := day
		if clock != nil {
			due = clock.On(day)
		}
		if w.Contains(due) {
			dates = append(dates, due)
		}
	}
	return dates, nil
}

func (e *Expander) afterCompletion(s model.RepeatingAfterCompletion, w localtime.Window, anchor time.Time) ([]time.Time, error) {
	if s.IntervalDays < 1 {
		return nil, fmt.Errorf("%w: intervalDays must be positive, got %d", model.ErrInvalidDefinition, s.IntervalDays)
	}
	clock, err := parseOptionalClock(s.DueTime)
	if err != nil {
		return nil, err
	}

	w = clamp(w, s.EndsAt)
	if w.Empty() {
		return nil, nil
	}

	var dates []time.Time
	cursor := e.zone.In(anchor)
	for {
		next := cursor.AddDate(0, 0, s.IntervalDays)
		if clock != nil {
			next = clock.On(next)
		}
		if next.After(w.To) {
			break
		}
		if !next.Before(w.From) {
			dates = append(dates, next)
		}
		cursor = next
	}
	return dates, nil
}

func parseOptionalClock(s string) (*localtime.Clock, error) {
	if s == "" {
		return nil, nil
	}
	c, err := localtime.ParseClock(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidDefinition, err)
	}
	return &c, nil
}
