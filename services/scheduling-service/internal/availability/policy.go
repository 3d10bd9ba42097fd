package availability

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMeetingDuration is the length of every bookable slot.
const DefaultMeetingDuration = 30 * time.Minute

const clockLayout = "15:04"

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:mm" (24-hour).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("%w: time of day %q must be HH:mm", ErrInvalidArgument, s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// on returns the instant at which this wall-clock time occurs on d in loc.
// Times inside a DST gap are normalized forward by time.Date.
func (c Clock) on(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// WeekdaySet is a set of weekdays, bit n set for time.Weekday(n).
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Days lists members in Sunday-first order.
func (s WeekdaySet) Days() []int {
	out := []int{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, int(d))
		}
	}
	return out
}

// WorkingHoursPolicy is a seller's recurring weekly availability.
type WorkingHoursPolicy struct {
	Start           Clock
	End             Clock
	WorkingDays     WeekdaySet
	Buffer          time.Duration
	MeetingDuration time.Duration
	// Location anchors Start and End. Nil means the policy predates seller
	// timezones and is read in the requester's timezone.
	Location *time.Location
}

// PolicyInput is the loosely typed shape policies are stored and edited in.
type PolicyInput struct {
	Start         string
	End           string
	Days          []int
	BufferMinutes int
	Timezone      string
}

// NewWorkingHoursPolicy validates raw policy data.
func NewWorkingHoursPolicy(in PolicyInput) (WorkingHoursPolicy, error) {
	start, err := ParseClock(in.Start)
	if err != nil {
		return WorkingHoursPolicy{}, err
	}
	end, err := ParseClock(in.End)
	if err != nil {
		return WorkingHoursPolicy{}, err
	}
	if start.minutes() >= end.minutes() {
		return WorkingHoursPolicy{}, fmt.Errorf("%w: working hours start %s must be before end %s", ErrInvalidArgument, start, end)
	}
	if in.BufferMinutes < 0 {
		return WorkingHoursPolicy{}, fmt.Errorf("%w: buffer must not be negative", ErrInvalidArgument)
	}

	var set WeekdaySet
	for _, d := range in.Days {
		if d < 0 || d > 6 {
			return WorkingHoursPolicy{}, fmt.Errorf("%w: working day %d out of range 0-6", ErrInvalidArgument, d)
		}
		set |= NewWeekdaySet(time.Weekday(d))
	}

	p := WorkingHoursPolicy{
		Start:           start,
		End:             end,
		WorkingDays:     set,
		Buffer:          time.Duration(in.BufferMinutes) * time.Minute,
		MeetingDuration: DefaultMeetingDuration,
	}
	if tz := strings.TrimSpace(in.Timezone); tz != "" {
		loc, err := LoadLocation(tz)
		if err != nil {
			return WorkingHoursPolicy{}, err
		}
		p.Location = loc
	}
	return p, nil
}

// Input converts the policy back to its stored shape.
func (p WorkingHoursPolicy) Input() PolicyInput {
	in := PolicyInput{
		Start:         p.Start.String(),
		End:           p.End.String(),
		Days:          p.WorkingDays.Days(),
		BufferMinutes: int(p.Buffer / time.Minute),
	}
	if p.Location != nil {
		in.Timezone = p.Location.String()
	}
	return in
}

func (p WorkingHoursPolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// anchoredIn fills a missing Location with fallback.
func (p WorkingHoursPolicy) anchoredIn(fallback *time.Location) WorkingHoursPolicy {
	if p.Location == nil {
		p.Location = fallback
	}
	return p
}
