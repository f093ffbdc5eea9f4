package planner

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Report summarizes what re-planning changed.
type Report struct {
	OriginalPeak     map[string]int
	NewPeak          map[string]int
	OriginalMakespan time.Duration
	NewMakespan      time.Duration
	MakespanDelta    time.Duration

	// Violations lists placements that still exceed a capacity.
	Violations []Violation

	// Unplanned lists steps copied verbatim: manual steps and their dependents.
	Unplanned []string

	// Bottlenecks lists the over-capacity spans of the declared schedule.
	Bottlenecks []Bottleneck

	// Shifted maps moved steps to how much later they now start.
	Shifted map[string]time.Duration
}

// Bottleneck is a span where declared usage exceeds capacity.
type Bottleneck struct {
	Resource string
	Start    time.Duration
	End      time.Duration
	Usage    int
	Capacity int
}

// Improved reports whether any resource's peak went down.
func (r Report) Improved() bool {
	for res, before := range r.OriginalPeak {
		if r.NewPeak[res] < before {
			return true
		}
	}
	return false
}

// String renders the report for terminal output.
func (r Report) String() string {
	var b strings.Builder
	sign := "+"
	if r.MakespanDelta < 0 {
		sign = ""
	}
	fmt.Fprintf(&b, "makespan: %s -> %s (%s%s)\n",
		r.OriginalMakespan, r.NewMakespan, sign, r.MakespanDelta)
	for _, res := range slices.Sorted(maps.Keys(r.OriginalPeak)) {
		fmt.Fprintf(&b, "peak %s: %d -> %d\n", res, r.OriginalPeak[res], r.NewPeak[res])
	}
	for _, id := range slices.Sorted(maps.Keys(r.Shifted)) {
		fmt.Fprintf(&b, "shifted %s: +%s\n", id, r.Shifted[id])
	}
	for _, bn := range r.Bottlenecks {
		fmt.Fprintf(&b, "bottleneck %s [%s, %s): %d/%d\n", bn.Resource, bn.Start, bn.End, bn.Usage, bn.Capacity)
	}
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "violation: %s\n", v.Error())
	}
	if len(r.Unplanned) > 0 {
		fmt.Fprintf(&b, "unplanned: %s\n", strings.Join(r.Unplanned, ", "))
	}
	return b.String()
}
