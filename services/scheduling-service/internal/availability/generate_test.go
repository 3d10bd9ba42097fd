package availability

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func mustPolicy(t *testing.T, in PolicyInput) WorkingHoursPolicy {
	t.Helper()
	p, err := NewWorkingHoursPolicy(in)
	if err != nil {
		t.Fatalf("NewWorkingHoursPolicy(%+v): %v", in, err)
	}
	return p
}

var weekdays = []int{1, 2, 3, 4, 5}

func TestGenerate_WorkdayWithBuffer(t *testing.T) {
	p := mustPolicy(t, PolicyInput{Start: "09:00", End: "17:00", Days: weekdays, BufferMinutes: 15, Timezone: "UTC"})
	got := Generate(p, Date{2024, time.June, 5})

	if len(got) != 11 {
		t.Fatalf("expected 11 candidates, got %d", len(got))
	}
	first, last := got[0], got[len(got)-1]
	if first.Start != time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("first start = %s", first.Start)
	}
	if last.Start != time.Date(2024, 6, 5, 16, 30, 0, 0, time.UTC) || last.End != time.Date(2024, 6, 5, 17, 0, 0, 0, time.UTC) {
		t.Fatalf("last = %s-%s", last.Start, last.End)
	}
	for i, c := range got {
		if c.End.Sub(c.Start) != 30*time.Minute {
			t.Fatalf("candidate %d lasts %s", i, c.End.Sub(c.Start))
		}
		if i > 0 && c.Start.Sub(got[i-1].Start) != 45*time.Minute {
			t.Fatalf("candidate %d spaced %s from previous", i, c.Start.Sub(got[i-1].Start))
		}
	}
}

func TestGenerate_NoBufferFillsWindow(t *testing.T) {
	p := mustPolicy(t, PolicyInput{Start: "09:00", End: "10:00", Days: weekdays, Timezone: "UTC"})
	got := Generate(p, Date{2024, time.June, 5})
	if len(got) != 2 || got[1].End != time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestGenerate_WindowShorterThanMeeting(t *testing.T) {
	p := mustPolicy(t, PolicyInput{Start: "09:00", End: "09:20", Days: weekdays, Timezone: "UTC"})
	got := Generate(p, Date{2024, time.June, 5})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestGenerate_IgnoresWorkingDays(t *testing.T) {
	p := mustPolicy(t, PolicyInput{Start: "09:00", End: "10:00", Days: []int{1}, Timezone: "UTC"})
	if got := Generate(p, Date{2024, time.June, 8}); len(got) != 2 {
		t.Fatalf("expected generation on a non-working day, got %d", len(got))
	}
}

func TestGenerate_SpringForwardUsesWallClockBounds(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	p := mustPolicy(t, PolicyInput{Start: "01:00", End: "04:00", Days: []int{0}, Timezone: "America/New_York"})
	got := Generate(p, Date{2024, time.March, 10})

	// 01:00 EST to 04:00 EDT is two real hours.
	if len(got) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(got))
	}
	labels := []string{"01:00", "01:30", "03:00", "03:30"}
	for i, c := range got {
		if ToLocal(c.Start, ny) != labels[i] {
			t.Fatalf("candidate %d starts %s, want %s", i, ToLocal(c.Start, ny), labels[i])
		}
	}
}

func TestGenerate_FallBackAddsRealTime(t *testing.T) {
	p := mustPolicy(t, PolicyInput{Start: "00:00", End: "03:00", Days: []int{0}, Timezone: "America/New_York"})
	got := Generate(p, Date{2024, time.November, 3})
	if len(got) != 8 {
		t.Fatalf("expected 8 candidates across a 4 hour wall-clock span, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start.Sub(got[i-1].Start) != 30*time.Minute {
			t.Fatalf("candidates %d and %d are not 30m apart", i-1, i)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	p := mustPolicy(t, PolicyInput{Start: "08:15", End: "12:40", Days: weekdays, BufferMinutes: 10, Timezone: "Asia/Kolkata"})
	a := Generate(p, Date{2024, time.June, 5})
	b := Generate(p, Date{2024, time.June, 5})
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			t.Fatalf("candidate %d differs", i)
		}
	}
}
