package availability

import (
	"errors"
	"testing"
	"time"
)

func TestNewWorkingHoursPolicy_Valid(t *testing.T) {
	p, err := NewWorkingHoursPolicy(PolicyInput{Start: "09:00", End: "17:30", Days: []int{5, 1, 3}, BufferMinutes: 10, Timezone: "Europe/Berlin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Start != (Clock{9, 0}) || p.End != (Clock{17, 30}) {
		t.Fatalf("clock mismatch: %+v", p)
	}
	if !p.WorkingDays.Has(time.Monday) || p.WorkingDays.Has(time.Tuesday) {
		t.Fatalf("working days mismatch: %v", p.WorkingDays.Days())
	}
	if p.Buffer != 10*time.Minute || p.MeetingDuration != DefaultMeetingDuration {
		t.Fatalf("durations mismatch: %+v", p)
	}
	if p.Location == nil || p.Location.String() != "Europe/Berlin" {
		t.Fatalf("location = %v", p.Location)
	}

	in := p.Input()
	if in.Start != "09:00" || in.End != "17:30" || in.BufferMinutes != 10 || in.Timezone != "Europe/Berlin" {
		t.Fatalf("Input() = %+v", in)
	}
	if len(in.Days) != 3 || in.Days[0] != 1 || in.Days[2] != 5 {
		t.Fatalf("Input().Days = %v", in.Days)
	}
}

func TestNewWorkingHoursPolicy_NoTimezone(t *testing.T) {
	p, err := NewWorkingHoursPolicy(PolicyInput{Start: "09:00", End: "17:00", Days: weekdays})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Location != nil {
		t.Fatalf("expected nil location, got %v", p.Location)
	}
	if got := p.anchoredIn(time.UTC).Location; got != time.UTC {
		t.Fatalf("anchoredIn did not fill location: %v", got)
	}
}

func TestNewWorkingHoursPolicy_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   PolicyInput
	}{
		{"start after end", PolicyInput{Start: "17:00", End: "09:00"}},
		{"start equals end", PolicyInput{Start: "09:00", End: "09:00"}},
		{"bad clock", PolicyInput{Start: "9am", End: "17:00"}},
		{"hour out of range", PolicyInput{Start: "09:00", End: "25:00"}},
		{"negative buffer", PolicyInput{Start: "09:00", End: "17:00", BufferMinutes: -5}},
		{"day out of range", PolicyInput{Start: "09:00", End: "17:00", Days: []int{7}}},
		{"unknown timezone", PolicyInput{Start: "09:00", End: "17:00", Timezone: "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWorkingHoursPolicy(tt.in); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}
