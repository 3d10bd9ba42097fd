package availability

import "time"

// BusyInterval is a span during which the seller is unavailable. It is
// supplied fresh for every computation.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (c Candidate) Overlaps(b BusyInterval) bool {
	return c.Start.Before(b.End) && c.End.After(b.Start)
}

// Filter keeps, in order, the candidates that fall on a working day in the
// policy location and overlap no busy interval. Candidates on the current
// civil day (in the policy location) that start before now are dropped;
// other days are not judged against now.
func Filter(candidates []Candidate, p WorkingHoursPolicy, busy []BusyInterval, now time.Time) []Candidate {
	loc := p.location()
	today := DateOf(now.In(loc))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		local := c.Start.In(loc)
		if !p.WorkingDays.Has(local.Weekday()) {
			continue
		}
		if DateOf(local) == today && c.Start.Before(now) {
			continue
		}
		if overlapsAny(c, busy) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func overlapsAny(c Candidate, busy []BusyInterval) bool {
	for _, b := range busy {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}
