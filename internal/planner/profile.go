package planner

import (
	"cmp"
	"slices"
	"time"
)

// Interval is one step's occupancy of its resources.
// Zero-length intervals occupy a single nanosecond for contention purposes.
type Interval struct {
	StepID    string
	Start     time.Duration
	End       time.Duration
	Resources []string
}

func (iv Interval) occupiedEnd() time.Duration {
	return max(iv.End, iv.Start+1)
}

// Segment is a maximal span of constant usage.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Count int
}

type edge struct {
	at    time.Duration
	delta int
}

// UsageProfile returns, per resource, the piecewise-constant count of
// intervals holding it. Only spans with a non-zero count are listed, in time
// order. Duplicate resources within one interval count once.
func UsageProfile(intervals []Interval) map[string][]Segment {
	edges := make(map[string][]edge)
	for _, iv := range intervals {
		var seen []string
		for _, r := range iv.Resources {
			if slices.Contains(seen, r) {
				continue
			}
			seen = append(seen, r)
			edges[r] = append(edges[r],
				edge{at: iv.Start, delta: +1},
				edge{at: iv.occupiedEnd(), delta: -1},
			)
		}
	}

	out := make(map[string][]Segment, len(edges))
	for r, es := range edges {
		out[r] = sweep(es)
	}
	return out
}

// sweep turns start/end edges into segments. Ends sort before starts at the
// same instant: intervals are half-open.
func sweep(es []edge) []Segment {
	slices.SortFunc(es, func(a, b edge) int {
		return cmp.Or(cmp.Compare(a.at, b.at), cmp.Compare(a.delta, b.delta))
	})

	var segs []Segment
	count := 0
	for k := 0; k < len(es); {
		at := es[k].at
		for k < len(es) && es[k].at == at {
			count += es[k].delta
			k++
		}
		if k == len(es) || count == 0 {
			continue
		}
		next := es[k].at
		if n := len(segs); n > 0 && segs[n-1].End == at && segs[n-1].Count == count {
			segs[n-1].End = next
			continue
		}
		segs = append(segs, Segment{Start: at, End: next, Count: count})
	}
	return segs
}

// Peak returns the highest count in a profile.
func Peak(segs []Segment) int {
	peak := 0
	for _, s := range segs {
		peak = max(peak, s.Count)
	}
	return peak
}

// peakWithin returns the highest number of intervals holding resource at any
// instant of [lo, hi).
func peakWithin(placed []Interval, resource string, lo, hi time.Duration) int {
	var es []edge
	for _, iv := range placed {
		end := iv.occupiedEnd()
		if iv.Start >= hi || end <= lo || !slices.Contains(iv.Resources, resource) {
			continue
		}
		es = append(es, edge{at: max(iv.Start, lo), delta: +1}, edge{at: min(end, hi), delta: -1})
	}
	return Peak(sweep(es))
}
