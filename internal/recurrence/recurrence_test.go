package recurrence

import (
	"testing"
	"time"
)

func TestParseFreqOnly(t *testing.T) {
	tests := []struct {
		input string
		freq  Freq
	}{
		{"FREQ=DAILY", Daily},
		{"FREQ=WEEKLY", Weekly},
		{"FREQ=MONTHLY", Monthly},
		{"FREQ=YEARLY", Yearly},
		{"RRULE:FREQ=DAILY", Daily},
		{"freq=weekly", Weekly},
	}

	for _, tt := range tests {
		r, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if r.Freq != tt.freq {
			t.Errorf("Parse(%q).Freq = %v, want %v", tt.input, r.Freq, tt.freq)
		}
		if r.Interval != 1 {
			t.Errorf("Parse(%q).Interval = %d, want 1", tt.input, r.Interval)
		}
	}
}

func TestParseParts(t *testing.T) {
	r, err := Parse("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE,FR")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Interval != 2 {
		t.Errorf("Interval = %d, want 2", r.Interval)
	}
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(r.ByDay) != len(want) {
		t.Fatalf("ByDay len = %d, want %d", len(r.ByDay), len(want))
	}
	for i, d := range r.ByDay {
		if d != want[i] {
			t.Errorf("ByDay[%d] = %v, want %v", i, d, want[i])
		}
	}

	r, err = Parse("FREQ=DAILY;COUNT=5")
	if err != nil || r.Count != 5 {
		t.Errorf("COUNT: got %d, %v", r.Count, err)
	}

	r, err = Parse("FREQ=WEEKLY;UNTIL=20260301T000000Z")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Until == nil || !r.Until.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Until = %v", r.Until)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"RRULE:",
		"BYDAY=MO",
		"FREQ=HOURLY",
		"FREQ=WEEKLY;INTERVAL=0",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=DAILY;COUNT=0",
		"FREQ=DAILY;UNKNOWN=1",
		"FREQ=DAILY;FREQ=WEEKLY",
		"FREQ=DAILY;BYDAY=MO",
		"FREQ=WEEKLY;BYMONTHDAY=3",
		"FREQ=MONTHLY;BYMONTHDAY=32",
		"FREQ=DAILY;COUNT=3;UNTIL=20260301",
		"FREQ=DAILY;UNTIL=tomorrow",
		"FREQ",
	}

	for _, input := range tests {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should error", input)
		}
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	inputs := []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE",
		"FREQ=MONTHLY;BYMONTHDAY=15",
		"FREQ=YEARLY",
		"FREQ=DAILY;COUNT=5",
		"FREQ=WEEKLY;UNTIL=20260301T000000Z",
		"FREQ=DAILY;UNTIL=20260301",
	}

	for _, input := range inputs {
		r, err := Parse(input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", input, err)
			continue
		}
		if got := r.String(); got != input {
			t.Errorf("round-trip %q -> %q", input, got)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=DAILY", "Every day"},
		{"FREQ=DAILY;INTERVAL=3", "Every 3 days"},
		{"FREQ=WEEKLY;BYDAY=TH,MO", "Every week on Mon, Thu"},
		{"FREQ=WEEKLY;INTERVAL=2", "Every 2 weeks"},
		{"FREQ=MONTHLY;BYMONTHDAY=1", "Every month on day 1"},
		{"FREQ=YEARLY;COUNT=2", "Every year, 2 times"},
		{"FREQ=DAILY;UNTIL=20260301", "Every day, until 2026-03-01"},
	}
	for _, tt := range tests {
		r, err := Parse(tt.rule)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.rule, err)
		}
		if got := r.Describe(); got != tt.want {
			t.Errorf("Describe(%q) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func mustParse(t *testing.T, s string) Rule {
	t.Helper()
	r, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", s, err)
	}
	return r
}

func assertDates(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d dates %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("date[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBetweenDaily(t *testing.T) {
	start := day(2026, 2, 4)
	got := Between(mustParse(t, "FREQ=DAILY"), start, start, day(2026, 2, 6))
	assertDates(t, got, day(2026, 2, 4), day(2026, 2, 5), day(2026, 2, 6))
}

func TestBetweenDailyInterval(t *testing.T) {
	start := day(2026, 2, 1)
	got := Between(mustParse(t, "FREQ=DAILY;INTERVAL=3"), start, start, day(2026, 2, 10))
	assertDates(t, got, day(2026, 2, 1), day(2026, 2, 4), day(2026, 2, 7), day(2026, 2, 10))
}

func TestBetweenWeeklySameWeekday(t *testing.T) {
	// Feb 3 2026 is a Tuesday.
	start := day(2026, 2, 3)
	got := Between(mustParse(t, "FREQ=WEEKLY"), start, start, day(2026, 2, 28))
	assertDates(t, got, day(2026, 2, 3), day(2026, 2, 10), day(2026, 2, 17), day(2026, 2, 24))
}

func TestBetweenWeeklyByDaySkipsDaysBeforeStart(t *testing.T) {
	// Starting on Wednesday, the Monday of the first week is skipped.
	start := day(2026, 2, 4)
	got := Between(mustParse(t, "FREQ=WEEKLY;BYDAY=FR,MO,WE"), start, start, day(2026, 2, 13))
	assertDates(t, got, day(2026, 2, 4), day(2026, 2, 6), day(2026, 2, 9), day(2026, 2, 11), day(2026, 2, 13))
}

func TestBetweenWeeklySunday(t *testing.T) {
	start := day(2026, 2, 2) // Monday
	got := Between(mustParse(t, "FREQ=WEEKLY;BYDAY=SU"), start, start, day(2026, 2, 15))
	assertDates(t, got, day(2026, 2, 8), day(2026, 2, 15))
}

func TestBetweenBiweekly(t *testing.T) {
	start := day(2026, 2, 2)
	got := Between(mustParse(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO"), start, start, day(2026, 3, 2))
	assertDates(t, got, day(2026, 2, 2), day(2026, 2, 16), day(2026, 3, 2))
}

func TestBetweenMonthlyByMonthDay(t *testing.T) {
	start := day(2026, 1, 20)
	got := Between(mustParse(t, "FREQ=MONTHLY;BYMONTHDAY=15"), start, start, day(2026, 4, 30))
	assertDates(t, got, day(2026, 2, 15), day(2026, 3, 15), day(2026, 4, 15))
}

func TestBetweenMonthly31stSkipsShortMonths(t *testing.T) {
	start := day(2026, 1, 31)
	got := Between(mustParse(t, "FREQ=MONTHLY"), start, start, day(2026, 6, 30))
	assertDates(t, got, day(2026, 1, 31), day(2026, 3, 31), day(2026, 5, 31))
}

func TestBetweenYearlyLeapDay(t *testing.T) {
	start := day(2024, 2, 29)
	got := Between(mustParse(t, "FREQ=YEARLY"), start, start, day(2032, 12, 31))
	assertDates(t, got, day(2024, 2, 29), day(2028, 2, 29), day(2032, 2, 29))
}

func TestBetweenCountIncludesDatesBeforeFrom(t *testing.T) {
	start := day(2026, 2, 1)
	got := Between(mustParse(t, "FREQ=DAILY;COUNT=3"), start, day(2026, 2, 2), day(2026, 2, 10))
	assertDates(t, got, day(2026, 2, 2), day(2026, 2, 3))
}

func TestBetweenUntilInclusive(t *testing.T) {
	start := day(2026, 2, 1)
	got := Between(mustParse(t, "FREQ=DAILY;UNTIL=20260203T000000Z"), start, start, day(2026, 2, 10))
	assertDates(t, got, day(2026, 2, 1), day(2026, 2, 2), day(2026, 2, 3))
}

func TestBetweenDateOnlyUntilCoversLocalDay(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	r := mustParse(t, "FREQ=DAILY;UNTIL=20260203")
	if !r.UntilDate {
		t.Fatal("UntilDate = false for a date-only UNTIL")
	}

	// 19:00 in Denver is 02:00 UTC the next day, past UTC midnight.
	start := time.Date(2026, 2, 1, 19, 0, 0, 0, denver)
	got := Between(r, start, start, start.AddDate(0, 0, 10))
	assertDates(t, got,
		start,
		time.Date(2026, 2, 2, 19, 0, 0, 0, denver),
		time.Date(2026, 2, 3, 19, 0, 0, 0, denver),
	)

	// The whole day counts, even the last minute.
	late := time.Date(2026, 2, 1, 23, 59, 0, 0, denver)
	got = Between(r, late, late, late.AddDate(0, 0, 10))
	if len(got) != 3 || !got[2].Equal(time.Date(2026, 2, 3, 23, 59, 0, 0, denver)) {
		t.Errorf("late series = %v, want through Feb 3 23:59 local", got)
	}
}

func TestBetweenBoundsInclusive(t *testing.T) {
	start := day(2026, 2, 1)
	r := mustParse(t, "FREQ=DAILY")

	got := Between(r, start, day(2026, 2, 3), day(2026, 2, 4))
	assertDates(t, got, day(2026, 2, 3), day(2026, 2, 4))

	got = Between(r, start, day(2026, 2, 3).Add(time.Nanosecond), day(2026, 2, 4).Add(-time.Nanosecond))
	assertDates(t, got)

	if got := Between(r, start, day(2026, 2, 5), day(2026, 2, 4)); got != nil {
		t.Errorf("inverted range = %v, want nil", got)
	}
}

func TestBetweenKeepsLocalTimeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Clocks go forward on March 29 2026 in Berlin.
	start := time.Date(2026, 3, 28, 0, 0, 0, 0, loc)
	got := Between(mustParse(t, "FREQ=DAILY"), start, start, time.Date(2026, 3, 30, 0, 0, 0, 0, loc))
	if len(got) != 3 {
		t.Fatalf("got %d dates, want 3", len(got))
	}
	for _, d := range got {
		if d.Hour() != 0 || d.Minute() != 0 {
			t.Errorf("%v is not local midnight", d)
		}
	}
	if diff := got[2].Sub(got[1]); diff != 23*time.Hour {
		t.Errorf("gap across DST = %v, want 23h", diff)
	}
}
