package schedule

import (
	"sort"
	"time"
)

// Interval is a half-open UTC time interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the interval is empty or inverted.
func (i Interval) IsZero() bool {
	return !i.End.After(i.Start)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains reports whether t lies within [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Overlaps reports whether the two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Encloses reports whether o lies entirely within i.
func (i Interval) Encloses(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Intersect returns the overlap of two intervals, possibly zero.
func (i Interval) Intersect(o Interval) Interval {
	start := i.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := i.End
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return Interval{}
	}
	return Interval{Start: start, End: end}
}

// IntervalSet is a collection of intervals. Operations return normalized
// sets: sorted, non-empty, non-overlapping.
type IntervalSet []Interval

// Normalize sorts the set and merges overlapping or touching intervals.
func (s IntervalSet) Normalize() IntervalSet {
	var in IntervalSet
	for _, iv := range s {
		if !iv.IsZero() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(a, b int) bool { return in[a].Start.Before(in[b].Start) })

	out := IntervalSet{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Intersect returns the instants present in both sets.
func (s IntervalSet) Intersect(o IntervalSet) IntervalSet {
	a, b := s.Normalize(), o.Normalize()
	var out IntervalSet
	for i, j := 0, 0; i < len(a) && j < len(b); {
		if iv := a[i].Intersect(b[j]); !iv.IsZero() {
			out = append(out, iv)
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Subtract removes the instants of o from s.
func (s IntervalSet) Subtract(o IntervalSet) IntervalSet {
	a, b := s.Normalize(), o.Normalize()
	if len(b) == 0 {
		return a
	}
	var out IntervalSet
	for _, iv := range a {
		rest := []Interval{iv}
		for _, cut := range b {
			var next []Interval
			for _, r := range rest {
				if !r.Overlaps(cut) {
					next = append(next, r)
					continue
				}
				if cut.Start.After(r.Start) {
					next = append(next, Interval{Start: r.Start, End: cut.Start})
				}
				if cut.End.Before(r.End) {
					next = append(next, Interval{Start: cut.End, End: r.End})
				}
			}
			rest = next
		}
		out = append(out, rest...)
	}
	return out.Normalize()
}
