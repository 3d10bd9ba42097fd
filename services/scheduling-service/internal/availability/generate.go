package availability

import "time"

// Candidate is a potential slot before filtering.
type Candidate struct {
	Start time.Time
	End   time.Time
}

// Generate lays out candidate slots for one civil date in the policy's
// location. The first slot starts at the policy start; each next one starts
// MeetingDuration+Buffer later; generation stops before a slot would end
// after the policy end. The weekday rule is not applied here.
func Generate(p WorkingHoursPolicy, d Date) []Candidate {
	if p.MeetingDuration <= 0 || p.Buffer < 0 {
		return []Candidate{}
	}
	loc := p.location()
	cursor := p.Start.on(d, loc)
	limit := p.End.on(d, loc)
	step := p.MeetingDuration + p.Buffer

	out := []Candidate{}
	for {
		end := cursor.Add(p.MeetingDuration)
		if end.After(limit) {
			return out
		}
		out = append(out, Candidate{Start: cursor, End: end})
		cursor = cursor.Add(step)
	}
}

// candidatesWithin generates for every civil date in the policy location
// that intersects [start, end) and keeps candidates starting inside it.
func candidatesWithin(p WorkingHoursPolicy, start, end time.Time) []Candidate {
	loc := p.location()
	first := DateOf(start.In(loc))
	last := DateOf(end.Add(-time.Nanosecond).In(loc))

	out := []Candidate{}
	for d := first; !last.Before(d); d = d.AddDays(1) {
		for _, c := range Generate(p, d) {
			if !c.Start.Before(start) && c.Start.Before(end) {
				out = append(out, c)
			}
		}
	}
	return out
}
