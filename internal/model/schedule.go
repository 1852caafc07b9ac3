package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/recurrence"
)

type ScheduleType string

const (
	ScheduleOneTime                  ScheduleType = "one_time"
	ScheduleRepeatingCalendar        ScheduleType = "repeating_calendar"
	ScheduleRepeatingAfterCompletion ScheduleType = "repeating_after_completion"
)

// DefaultGracePeriodMinutes applies when a stored schedule omits the field.
const DefaultGracePeriodMinutes = 60

// Schedule is one of OneTime, RepeatingCalendar or RepeatingAfterCompletion.
// The unexported method closes the set to this package.
type Schedule interface {
	Type() ScheduleType
	GracePeriod() time.Duration
	Validate() error
	isSchedule()
}

// OneTime is due exactly once, at a fixed instant.
type OneTime struct {
	DueAt              time.Time
	GracePeriodMinutes int
}

// RepeatingCalendar is due on every calendar day matched by RRule, stamped
// with DueTime in the configured zone. An empty DueTime keeps local midnight.
type RepeatingCalendar struct {
	RRule              string
	DueTime            string
	EndsAt             *time.Time
	GracePeriodMinutes int
}

// RepeatingAfterCompletion is due IntervalDays after the previous approval.
type RepeatingAfterCompletion struct {
	IntervalDays       int
	DueTime            string
	EndsAt             *time.Time
	GracePeriodMinutes int
}

func (OneTime) Type() ScheduleType                  { return ScheduleOneTime }
func (RepeatingCalendar) Type() ScheduleType        { return ScheduleRepeatingCalendar }
func (RepeatingAfterCompletion) Type() ScheduleType { return ScheduleRepeatingAfterCompletion }

func (OneTime) isSchedule()                  {}
func (RepeatingCalendar) isSchedule()        {}
func (RepeatingAfterCompletion) isSchedule() {}

func (s OneTime) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodMinutes) * time.Minute
}

func (s RepeatingCalendar) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodMinutes) * time.Minute
}

func (s RepeatingAfterCompletion) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodMinutes) * time.Minute
}

func (s OneTime) Validate() error {
	if s.DueAt.IsZero() {
		return fmt.Errorf("%w: one_time schedule requires oneTimeDueAt", ErrInvalidDefinition)
	}
	return validateGrace(s.GracePeriodMinutes)
}

func (s RepeatingCalendar) Validate() error {
	if _, err := recurrence.Parse(s.RRule); err != nil {
		return fmt.Errorf("%w: rrule: %v", ErrInvalidDefinition, err)
	}
	if err := validateDueTime(s.DueTime); err != nil {
		return err
	}
	return validateGrace(s.GracePeriodMinutes)
}

func (s RepeatingAfterCompletion) Validate() error {
	if s.IntervalDays < 1 {
		return fmt.Errorf("%w: intervalDays must be positive, got %d", ErrInvalidDefinition, s.IntervalDays)
	}
	if err := validateDueTime(s.DueTime); err != nil {
		return err
	}
	return validateGrace(s.GracePeriodMinutes)
}

func validateGrace(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: gracePeriodMinutes must be >= 0, got %d", ErrInvalidDefinition, minutes)
	}
	return nil
}

func validateDueTime(s string) error {
	if s == "" {
		return nil
	}
	if _, err := localtime.ParseClock(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return nil
}

// scheduleJSON is the stored and wire shape of every schedule variant.
type scheduleJSON struct {
	Type               ScheduleType `json:"type"`
	OneTimeDueAt       *time.Time   `json:"oneTimeDueAt,omitempty"`
	RRule              string       `json:"rrule,omitempty"`
	IntervalDays       int          `json:"intervalDays,omitempty"`
	DueTime            string       `json:"dueTime,omitempty"`
	EndsAt             *time.Time   `json:"endsAt,omitempty"`
	GracePeriodMinutes *int         `json:"gracePeriodMinutes,omitempty"`
}

// MarshalSchedule encodes a schedule with its "type" discriminator.
func MarshalSchedule(s Schedule) ([]byte, error) {
	var out scheduleJSON
	switch v := s.(type) {
	case OneTime:
		due := v.DueAt.UTC()
		grace := v.GracePeriodMinutes
		out = scheduleJSON{Type: ScheduleOneTime, OneTimeDueAt: &due, GracePeriodMinutes: &grace}
	case RepeatingCalendar:
		grace := v.GracePeriodMinutes
		out = scheduleJSON{Type: ScheduleRepeatingCalendar, RRule: v.RRule, DueTime: v.DueTime, EndsAt: utcPtr(v.EndsAt), GracePeriodMinutes: &grace}
	case RepeatingAfterCompletion:
		grace := v.GracePeriodMinutes
		out = scheduleJSON{Type: ScheduleRepeatingAfterCompletion, IntervalDays: v.IntervalDays, DueTime: v.DueTime, EndsAt: utcPtr(v.EndsAt), GracePeriodMinutes: &grace}
	case nil:
		return nil, fmt.Errorf("%w: missing schedule", ErrInvalidDefinition)
	default:
		return nil, fmt.Errorf("%w: unknown schedule %T", ErrInvalidDefinition, s)
	}
	return json.Marshal(out)
}

// UnmarshalSchedule decodes and validates a schedule payload. Every failure
// wraps ErrInvalidDefinition.
func UnmarshalSchedule(data []byte) (Schedule, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty schedule", ErrInvalidDefinition)
	}
	var in scheduleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: decode schedule: %v", ErrInvalidDefinition, err)
	}

	grace := DefaultGracePeriodMinutes
	if in.GracePeriodMinutes != nil {
		grace = *in.GracePeriodMinutes
	}

	var s Schedule
	switch in.Type {
	case ScheduleOneTime:
		if in.OneTimeDueAt == nil {
			return nil, fmt.Errorf("%w: one_time schedule requires oneTimeDueAt", ErrInvalidDefinition)
		}
		s = OneTime{DueAt: in.OneTimeDueAt.UTC(), GracePeriodMinutes: grace}
	case ScheduleRepeatingCalendar:
		s = RepeatingCalendar{RRule: in.RRule, DueTime: in.DueTime, EndsAt: utcPtr(in.EndsAt), GracePeriodMinutes: grace}
	case ScheduleRepeatingAfterCompletion:
		s = RepeatingAfterCompletion{IntervalDays: in.IntervalDays, DueTime: in.DueTime, EndsAt: utcPtr(in.EndsAt), GracePeriodMinutes: grace}
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidDefinition, in.Type)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
