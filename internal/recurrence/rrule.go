// Package recurrence parses the supported subset of RFC 5545 recurrence
// rules and walks the calendar dates they produce.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqNames = [...]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

func (f Freq) String() string {
	if int(f) < len(freqNames) {
		return freqNames[f]
	}
	return fmt.Sprintf("Freq(%d)", int(f))
}

var weekdayCodes = [...]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

const (
	untilLayout     = "20060102T150405Z"
	untilDateLayout = "20060102"
)

// Rule is a parsed recurrence rule.
type Rule struct {
	Freq       Freq
	Interval   int            // >= 1
	ByDay      []time.Weekday // WEEKLY only; empty = weekday of the start date
	ByMonthDay int            // MONTHLY only; 0 = day of the start date
	Count      int            // 0 = unlimited
	Until      *time.Time
	// UntilDate marks a date-only UNTIL. Until then holds that date at UTC
	// midnight and the series runs through the end of the date on the start
	// time's calendar.
	UntilDate bool
}

// Parse parses a rule such as "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
// A leading "RRULE:" property name is accepted.
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "RRULE:")
	if s == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	r := Rule{Interval: 1}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok || val == "" {
			return Rule{}, fmt.Errorf("invalid rule part %q", part)
		}
		key = strings.ToUpper(key)
		if seen[key] {
			return Rule{}, fmt.Errorf("duplicate rule key %q", key)
		}
		seen[key] = true

		if err := r.set(key, strings.ToUpper(val)); err != nil {
			return Rule{}, err
		}
	}

	if !seen["FREQ"] {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if len(r.ByDay) > 0 && r.Freq != Weekly {
		return Rule{}, fmt.Errorf("BYDAY is only supported with FREQ=WEEKLY")
	}
	if r.ByMonthDay > 0 && r.Freq != Monthly {
		return Rule{}, fmt.Errorf("BYMONTHDAY is only supported with FREQ=MONTHLY")
	}
	if r.Count > 0 && r.Until != nil {
		return Rule{}, fmt.Errorf("COUNT and UNTIL are mutually exclusive")
	}
	return r, nil
}

func (r *Rule) set(key, val string) error {
	switch key {
	case "FREQ":
		for f, name := range freqNames {
			if name == val {
				r.Freq = Freq(f)
				return nil
			}
		}
		return fmt.Errorf("unsupported frequency %q", val)

	case "INTERVAL":
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid INTERVAL %q", val)
		}
		r.Interval = n

	case "BYDAY":
		for _, code := range strings.Split(val, ",") {
			wd, ok := parseWeekday(strings.TrimSpace(code))
			if !ok {
				return fmt.Errorf("invalid BYDAY entry %q", code)
			}
			r.ByDay = append(r.ByDay, wd)
		}

	case "BYMONTHDAY":
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 || n > 31 {
			return fmt.Errorf("invalid BYMONTHDAY %q", val)
		}
		r.ByMonthDay = n

	case "COUNT":
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid COUNT %q", val)
		}
		r.Count = n

	case "UNTIL":
		t, err := time.Parse(untilLayout, val)
		if err != nil {
			t, err = time.Parse(untilDateLayout, val)
			if err != nil {
				return fmt.Errorf("invalid UNTIL %q", val)
			}
			r.UntilDate = true
		}
		r.Until = &t

	default:
		return fmt.Errorf("unsupported rule key %q", key)
	}
	return nil
}

func parseWeekday(code string) (time.Weekday, bool) {
	for wd, c := range weekdayCodes {
		if c == code {
			return time.Weekday(wd), true
		}
	}
	return 0, false
}

// String serializes the rule in canonical key order.
func (r Rule) String() string {
	parts := []string{"FREQ=" + r.Freq.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = weekdayCodes[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.ByMonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	switch {
	case r.Until != nil && r.UntilDate:
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(untilDateLayout))
	case r.Until != nil:
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(untilLayout))
	}
	return strings.Join(parts, ";")
}

// Describe renders the rule for people, e.g. "Every 2 weeks on Mon, Thu".
func (r Rule) Describe() string {
	var b strings.Builder
	unit := map[Freq]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.Freq]
	if r.Interval > 1 {
		fmt.Fprintf(&b, "Every %d %ss", r.Interval, unit)
	} else {
		b.WriteString("Every " + unit)
	}

	switch {
	case len(r.ByDay) > 0:
		days := sortedWeekdays(r.ByDay)
		names := make([]string, len(days))
		for i, d := range days {
			names[i] = d.String()[:3]
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	case r.ByMonthDay > 0:
		fmt.Fprintf(&b, " on day %d", r.ByMonthDay)
	}

	if r.Count > 0 {
		fmt.Fprintf(&b, ", %d times", r.Count)
	}
	if r.Until != nil {
		b.WriteString(", until " + r.Until.UTC().Format("2006-01-02"))
	}
	return b.String()
}

// limit is the last instant the series may produce, seen from loc.
func (r Rule) limit(loc *time.Location) (time.Time, bool) {
	if r.Until == nil {
		return time.Time{}, false
	}
	if !r.UntilDate {
		return *r.Until, true
	}
	y, m, d := r.Until.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond), true
}

// sortedWeekdays returns days deduplicated in Monday-first order.
func sortedWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return sinceMonday(out[i]) < sinceMonday(out[j])
	})
	return out
}

func sinceMonday(d time.Weekday) int {
	return (int(d) + 6) % 7
}
