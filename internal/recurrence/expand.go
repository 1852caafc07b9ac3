package recurrence

import "time"

// maxPeriods bounds the walk for rules whose periods can be empty
// (BYMONTHDAY=31, Feb 29 yearly) so a pathological rule cannot spin.
const maxPeriods = 10000

// Between returns the occurrences of rule started at dtstart that fall within
// [from, to], both ends inclusive. Occurrences carry dtstart's wall-clock time
// and location; the walk is done on that location's calendar so DST shifts
// keep the local time of day.
//
// COUNT is counted from dtstart, including occurrences before from. A
// date-only UNTIL includes that whole day on dtstart's calendar.
func Between(rule Rule, dtstart, from, to time.Time) []time.Time {
	if to.Before(from) {
		return nil
	}
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	until, bounded := rule.limit(dtstart.Location())
	var out []time.Time
	emitted := 0
	for k := 0; k < maxPeriods; k++ {
		for _, t := range period(rule, dtstart, k*interval) {
			if t.Before(dtstart) {
				continue
			}
			if t.After(to) || (bounded && t.After(until)) {
				return out
			}
			emitted++
			if rule.Count > 0 && emitted > rule.Count {
				return out
			}
			if !t.Before(from) {
				out = append(out, t)
			}
		}
	}
	return out
}

// period returns the candidate dates of the period `offset` frequency units
// after dtstart's period, ascending. It may be empty when the target day does
// not exist in that month or year.
func period(r Rule, dtstart time.Time, offset int) []time.Time {
	y, m, d := dtstart.Date()
	hh, mm, ss := dtstart.Clock()
	loc := dtstart.Location()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, loc)
	}

	switch r.Freq {
	case Daily:
		return []time.Time{at(y, m, d+offset)}

	case Weekly:
		monday := d - sinceMonday(dtstart.Weekday()) + 7*offset
		days := r.ByDay
		if len(days) == 0 {
			days = []time.Weekday{dtstart.Weekday()}
		}
		days = sortedWeekdays(days)
		out := make([]time.Time, len(days))
		for i, wd := range days {
			out[i] = at(y, m, monday+sinceMonday(wd))
		}
		return out

	case Monthly:
		day := r.ByMonthDay
		if day == 0 {
			day = d
		}
		first := time.Date(y, m+time.Month(offset), 1, 0, 0, 0, 0, loc)
		if day > daysInMonth(first.Year(), first.Month()) {
			return nil
		}
		return []time.Time{at(first.Year(), first.Month(), day)}

	case Yearly:
		if d > daysInMonth(y+offset, m) {
			return nil
		}
		return []time.Time{at(y+offset, m, d)}
	}
	return nil
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
