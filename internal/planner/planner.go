package planner

import (
	"cmp"
	"container/heap"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/cadence/internal/graph"
	"github.com/roach88/cadence/internal/schedule"
)

// Option configures Plan.
type Option func(*config)

type config struct {
	slack   time.Duration
	bounded bool
	causal  bool
	logger  *slog.Logger
}

// WithSlack bounds the revised makespan to the declared makespan plus d.
// Default: unbounded.
func WithSlack(d time.Duration) Option {
	return func(c *config) {
		c.slack = max(d, 0)
		c.bounded = true
	}
}

// WithCausalTriggers keeps AfterStep triggers and rewrites their offsets,
// instead of converting every placed step to AtOffset.
func WithCausalTriggers() Option {
	return func(c *config) {
		c.causal = true
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Result is a revised program plus its contention report.
type Result struct {
	Program *schedule.Program
	Report  Report

	// Placements holds the planned interval of every planned step, in
	// definition order.
	Placements []Interval
}

// Placement returns the planned interval of a step.
func (r *Result) Placement(stepID string) (Interval, bool) {
	for _, iv := range r.Placements {
		if iv.StepID == stepID {
			return iv, true
		}
	}
	return Interval{}, false
}

// Plan revises p to reduce peak concurrent use of constrained resources.
//
// g may be nil, in which case it is built from p. caps may be nil, in which
// case the program's own constraints are used. Capacity violations that
// cannot be avoided are reported in Report.Violations; only graph build
// errors fail the call.
func Plan(p *schedule.Program, g *graph.Graph, caps schedule.Capacities, opts ...Option) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("planner: nil program")
	}
	if g == nil {
		built, err := graph.Build(p)
		if err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
		g = built
	}
	if caps == nil {
		caps = p.Capacities()
	}

	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	pl := newPlan(p, g, caps)
	report := Report{
		OriginalPeak:     pl.peaks(pl.declaredIntervals()),
		OriginalMakespan: pl.declaredMakespan(),
		Unplanned:        pl.unplannedIDs(),
		Bottlenecks:      pl.bottlenecks(),
	}

	bound := time.Duration(-1)
	if cfg.bounded {
		bound = report.OriginalMakespan + cfg.slack
	}
	report.Violations = pl.place(bound, cfg.logger)

	placements := pl.placedIntervals()
	report.NewPeak = pl.peaks(placements)
	report.NewMakespan = makespan(placements)
	report.MakespanDelta = report.NewMakespan - report.OriginalMakespan
	report.Shifted = pl.shifts()

	out := pl.rewrite(cfg.causal)

	cfg.logger.Info("plan complete",
		"program", p.ID,
		"planned", len(placements),
		"unplanned", len(report.Unplanned),
		"violations", len(report.Violations),
		"makespan_delta", report.MakespanDelta,
		"event", "plan_complete",
	)
	return &Result{Program: out, Report: report, Placements: placements}, nil
}

// node is one step's planning state, indexed by graph node.
type node struct {
	step     *schedule.Step
	dur      time.Duration
	res      []string // constrained resources only
	declared time.Duration
	planned  bool // false for Manual steps and their descendants
	pinned   bool // ProgramStart steps stay at zero
	placed   bool
	start    time.Duration
}

type plan struct {
	program *schedule.Program
	graph   *graph.Graph
	caps    schedule.Capacities
	nodes   []*node // nodes[graph.StartNode] is nil
}

func newPlan(p *schedule.Program, g *graph.Graph, caps schedule.Capacities) *plan {
	steps := p.Steps()
	pl := &plan{program: p, graph: g, caps: caps, nodes: make([]*node, g.Len())}
	for _, s := range steps {
		i, _ := g.Index(s.ID)
		pl.nodes[i] = &node{
			step: s,
			dur:  max(s.Duration.PlanningHorizon(), 0),
			res:  s.ConstrainedResources(caps),
		}
	}

	var manual []int
	for _, id := range g.Roots() {
		i, _ := g.Index(id)
		manual = append(manual, i)
	}
	unplanned := g.Descendants(manual...)

	// As-declared starts, predecessors first.
	for _, i := range g.TopologicalOrder() {
		n := pl.nodes[i]
		n.planned = !unplanned[i]
		if !n.planned {
			continue
		}
		switch tr := n.step.Trigger.(type) {
		case schedule.ProgramStart:
			n.declared = 0
			n.pinned = true
		case schedule.AtOffset:
			n.declared = max(tr.Offset, 0)
		case schedule.AfterStep:
			pi, _ := g.Predecessor(i)
			pred := pl.nodes[pi]
			n.declared = pred.declared + pred.dur + max(tr.Offset, 0)
		case schedule.Manual:
			panic("planner: manual step marked planned")
		default:
			panic(fmt.Sprintf("planner: unknown trigger %T", n.step.Trigger))
		}
	}
	return pl
}

// forEachPlanned visits planned nodes in definition order.
func (pl *plan) forEachPlanned(fn func(i int, n *node)) {
	for i := 1; i < len(pl.nodes); i++ {
		if n := pl.nodes[i]; n.planned {
			fn(i, n)
		}
	}
}

func (pl *plan) declaredIntervals() []Interval {
	var out []Interval
	pl.forEachPlanned(func(_ int, n *node) {
		out = append(out, Interval{StepID: n.step.ID, Start: n.declared, End: n.declared + n.dur, Resources: n.res})
	})
	return out
}

func (pl *plan) placedIntervals() []Interval {
	var out []Interval
	pl.forEachPlanned(func(_ int, n *node) {
		if n.placed {
			out = append(out, n.interval())
		}
	})
	return out
}

func (n *node) interval() Interval {
	return Interval{StepID: n.step.ID, Start: n.start, End: n.start + n.dur, Resources: n.res}
}

func (pl *plan) declaredMakespan() time.Duration {
	return makespan(pl.declaredIntervals())
}

func makespan(ivs []Interval) time.Duration {
	var end time.Duration
	for _, iv := range ivs {
		end = max(end, iv.End)
	}
	return end
}

// peaks returns the peak usage of every constrained resource.
func (pl *plan) peaks(ivs []Interval) map[string]int {
	profile := UsageProfile(ivs)
	out := make(map[string]int, len(pl.caps))
	for r := range pl.caps {
		out[r] = Peak(profile[r])
	}
	return out
}

func (pl *plan) unplannedIDs() []string {
	var out []string
	for i := 1; i < len(pl.nodes); i++ {
		if !pl.nodes[i].planned {
			out = append(out, pl.nodes[i].step.ID)
		}
	}
	return out
}

// bottlenecks lists the spans of the declared schedule where a resource is
// over capacity, ordered by start then resource.
func (pl *plan) bottlenecks() []Bottleneck {
	profile := UsageProfile(pl.declaredIntervals())
	var out []Bottleneck
	for _, r := range slices.Sorted(maps.Keys(profile)) {
		limit, ok := pl.caps[r]
		if !ok {
			continue
		}
		for _, seg := range profile[r] {
			if seg.Count > limit {
				out = append(out, Bottleneck{Resource: r, Start: seg.Start, End: seg.End, Usage: seg.Count, Capacity: limit})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Bottleneck) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.Resource, b.Resource))
	})
	return out
}

// place runs list scheduling. bound < 0 means unbounded.
func (pl *plan) place(bound time.Duration, logger *slog.Logger) []Violation {
	var violations []Violation
	var placed []Interval

	commit := func(i int, start time.Duration) {
		n := pl.nodes[i]
		n.start = start
		n.placed = true
		placed = append(placed, n.interval())
		logger.Debug("step placed", "step", n.step.ID, "start", start, "declared", n.declared)
	}

	ready := &readyHeap{}
	release := func(i int) {
		end := pl.nodes[i].start + pl.nodes[i].dur
		for _, j := range pl.graph.Successors(i) {
			m := pl.nodes[j]
			if !m.planned {
				continue
			}
			tr := m.step.Trigger.(schedule.AfterStep)
			heap.Push(ready, pl.readyItem(j, end+max(tr.Offset, 0)))
		}
	}

	// Pinned steps first, in definition order. Overflow between them cannot
	// be fixed by shifting and is reported.
	pl.forEachPlanned(func(i int, n *node) {
		if !n.pinned {
			return
		}
		violations = append(violations, pl.overflow(placed, n, 0)...)
		commit(i, 0)
	})
	pl.forEachPlanned(func(i int, n *node) {
		switch {
		case n.pinned:
			release(i)
		case n.step.Trigger.Kind() == schedule.KindAtOffset:
			heap.Push(ready, pl.readyItem(i, n.declared))
		}
	})

	for ready.Len() > 0 {
		it := heap.Pop(ready).(readyItem)
		n := pl.nodes[it.node]
		start, fits := pl.earliestFit(placed, n, it.feasible, bound)
		if !fits {
			violations = append(violations, pl.overflow(placed, n, start)...)
		}
		commit(it.node, start)
		release(it.node)
	}
	return violations
}

func (pl *plan) readyItem(i int, feasible time.Duration) readyItem {
	n := pl.nodes[i]
	return readyItem{node: i, feasible: feasible, constrained: len(n.res), id: n.step.ID}
}

// earliestFit returns the earliest candidate start at or after feasible where
// n fits every capacity. Candidates are feasible itself and the end of every
// placed interval sharing a resource. Under a bound, only candidates finishing
// within it are tried; if none fits, the least-overflowing candidate is
// returned with fits=false.
func (pl *plan) earliestFit(placed []Interval, n *node, feasible, bound time.Duration) (time.Duration, bool) {
	if len(n.res) == 0 {
		return feasible, true
	}

	candidates := []time.Duration{feasible}
	for _, iv := range placed {
		if end := iv.occupiedEnd(); end > feasible && sharesAny(iv.Resources, n.res) {
			candidates = append(candidates, end)
		}
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	best, bestOver := feasible, -1
	for _, t := range candidates {
		if bound >= 0 && t+n.dur > bound && t != feasible {
			continue
		}
		over := pl.overflowAt(placed, n, t)
		if over == 0 {
			return t, true
		}
		if bestOver < 0 || over < bestOver {
			best, bestOver = t, over
		}
	}
	return best, false
}

// overflowAt is the largest amount by which placing n at t would exceed a
// capacity.
func (pl *plan) overflowAt(placed []Interval, n *node, t time.Duration) int {
	hi := max(t+n.dur, t+1)
	worst := 0
	for _, r := range n.res {
		worst = max(worst, peakWithin(placed, r, t, hi)+1-pl.caps[r])
	}
	return worst
}

// overflow lists the violations of placing n at t.
func (pl *plan) overflow(placed []Interval, n *node, t time.Duration) []Violation {
	var out []Violation
	hi := max(t+n.dur, t+1)
	for _, r := range n.res {
		usage := peakWithin(placed, r, t, hi) + 1
		if usage > pl.caps[r] {
			out = append(out, Violation{
				Code:     ErrCodeResourceOverCapacity,
				StepID:   n.step.ID,
				Resource: r,
				Start:    t,
				End:      t + n.dur,
				Usage:    usage,
				Capacity: pl.caps[r],
			})
		}
	}
	return out
}

func (pl *plan) shifts() map[string]time.Duration {
	out := make(map[string]time.Duration)
	pl.forEachPlanned(func(_ int, n *node) {
		if n.start > n.declared {
			out[n.step.ID] = n.start - n.declared
		}
	})
	return out
}

// rewrite copies the program with every planned, unpinned step's trigger
// re-derived from its placement. Everything else is copied verbatim.
func (pl *plan) rewrite(causal bool) *schedule.Program {
	out := pl.program.Clone()
	for _, s := range out.Steps() {
		i, _ := pl.graph.Index(s.ID)
		n := pl.nodes[i]
		if !n.planned || n.pinned {
			continue
		}
		if tr, ok := s.Trigger.(schedule.AfterStep); ok && causal {
			pi, _ := pl.graph.Predecessor(i)
			pred := pl.nodes[pi]
			tr.Offset = n.start - (pred.start + pred.dur)
			s.Trigger = tr
			continue
		}
		s.Trigger = schedule.AtOffset{Offset: n.start}
	}
	return out
}

func sharesAny(a, b []string) bool {
	for _, r := range a {
		if slices.Contains(b, r) {
			return true
		}
	}
	return false
}

type readyItem struct {
	node        int
	feasible    time.Duration
	constrained int
	id          string
}

// readyHeap orders by feasible start, then fewer constrained resources, then step ID.
type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	return cmp.Or(
		cmp.Compare(a.feasible, b.feasible),
		cmp.Compare(a.constrained, b.constrained),
		cmp.Compare(a.id, b.id),
	) < 0
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)   { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
