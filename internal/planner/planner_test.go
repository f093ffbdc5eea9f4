package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/graph"
	"github.com/roach88/cadence/internal/schedule"
	"github.com/roach88/cadence/internal/testutil"
)

const sec = time.Second

// ovenProgram has three offset steps fighting over a single oven.
func ovenProgram() *schedule.Program {
	return testutil.NewProgram("oven").
		Constraint("oven", 1).
		Track("t",
			testutil.Step("a", testutil.At(0), testutil.Fixed(30*sec), "oven"),
			testutil.Step("b", testutil.At(0), testutil.Fixed(30*sec), "oven"),
			testutil.Step("c", testutil.At(10*sec), testutil.Fixed(20*sec), "oven"),
		).
		Build()
}

func trigger(t *testing.T, p *schedule.Program, id string) schedule.Trigger {
	t.Helper()
	s, ok := p.Step(id)
	require.True(t, ok, id)
	return s.Trigger
}

func TestPlan_SerializesContendedSteps(t *testing.T) {
	res, err := Plan(ovenProgram(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, schedule.AtOffset{Offset: 0}, trigger(t, res.Program, "a"))
	assert.Equal(t, schedule.AtOffset{Offset: 30 * sec}, trigger(t, res.Program, "b"))
	assert.Equal(t, schedule.AtOffset{Offset: 60 * sec}, trigger(t, res.Program, "c"))

	r := res.Report
	assert.Equal(t, map[string]int{"oven": 3}, r.OriginalPeak)
	assert.Equal(t, map[string]int{"oven": 1}, r.NewPeak)
	assert.Equal(t, 30*sec, r.OriginalMakespan)
	assert.Equal(t, 80*sec, r.NewMakespan)
	assert.Equal(t, 50*sec, r.MakespanDelta)
	assert.Empty(t, r.Violations)
	assert.Empty(t, r.Unplanned)
	assert.Equal(t, map[string]time.Duration{"b": 30 * sec, "c": 50 * sec}, r.Shifted)
	assert.True(t, r.Improved())

	assert.Equal(t, []Bottleneck{
		{Resource: "oven", Start: 0, End: 10 * sec, Usage: 2, Capacity: 1},
		{Resource: "oven", Start: 10 * sec, End: 30 * sec, Usage: 3, Capacity: 1},
	}, r.Bottlenecks)

	iv, ok := res.Placement("c")
	require.True(t, ok)
	assert.Equal(t, Interval{StepID: "c", Start: 60 * sec, End: 80 * sec, Resources: []string{"oven"}}, iv)
}

func TestPlan_NeverMutatesInput(t *testing.T) {
	p := ovenProgram()
	before := p.Clone()
	_, err := Plan(p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, before, p)
}

func TestPlan_ProgramStartStepsPinned(t *testing.T) {
	res, err := Plan(testutil.BurnerProgram(), nil, nil)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, schedule.ProgramStart{}, trigger(t, res.Program, id))
	}
	assert.Equal(t, map[string]int{"stove-burner": 3}, res.Report.NewPeak)
	require.Len(t, res.Report.Violations, 1)
	v := res.Report.Violations[0]
	assert.Equal(t, "c", v.StepID)
	assert.Equal(t, 3, v.Usage)
	assert.Equal(t, 2, v.Capacity)
	assert.True(t, IsResourceOverCapacity(&v))
	assert.False(t, res.Report.Improved())
}

func chainProgram() *schedule.Program {
	return testutil.NewProgram("chain").
		Constraint("oven", 1).
		Track("prep",
			testutil.Step("prep", testutil.AtStart(), testutil.Fixed(10*sec)),
			testutil.Step("sear", testutil.After("prep", 5*sec), testutil.Fixed(20*sec), "oven"),
		).
		Track("bake",
			testutil.Step("bake", testutil.At(0), testutil.Fixed(30*sec), "oven"),
		).
		Build()
}

func TestPlan_AfterStepBecomesAtOffset(t *testing.T) {
	res, err := Plan(chainProgram(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, schedule.ProgramStart{}, trigger(t, res.Program, "prep"))
	assert.Equal(t, schedule.AtOffset{Offset: 0}, trigger(t, res.Program, "bake"))
	assert.Equal(t, schedule.AtOffset{Offset: 30 * sec}, trigger(t, res.Program, "sear"))
	assert.Equal(t, map[string]time.Duration{"sear": 15 * sec}, res.Report.Shifted)
}

func TestPlan_CausalTriggersKeepAfterStep(t *testing.T) {
	res, err := Plan(chainProgram(), nil, nil, WithCausalTriggers())
	require.NoError(t, err)

	assert.Equal(t, schedule.AfterStep{StepID: "prep", Offset: 20 * sec}, trigger(t, res.Program, "sear"))
	assert.Equal(t, schedule.AtOffset{Offset: 0}, trigger(t, res.Program, "bake"))
}

func TestPlan_DependencyOrderNeverViolated(t *testing.T) {
	p := testutil.NewProgram("deps").
		Constraint("burner", 1).
		Track("t1",
			testutil.Step("a", testutil.AtStart(), testutil.Fixed(10*sec), "burner"),
			testutil.Step("b", testutil.After("a", 3*sec), testutil.Between(5*sec, 15*sec), "burner"),
			testutil.Step("c", testutil.After("b", 0), testutil.Fixed(5*sec), "burner"),
		).
		Track("t2",
			testutil.Step("x", testutil.At(5*sec), testutil.Fixed(20*sec), "burner"),
			testutil.Step("y", testutil.After("x", 1*sec), testutil.Fixed(2*sec)),
		).
		Build()
	g, err := graph.Build(p)
	require.NoError(t, err)

	res, err := Plan(p, g, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Report.Violations)

	for _, s := range p.Steps() {
		tr, ok := s.Trigger.(schedule.AfterStep)
		if !ok {
			continue
		}
		pred, _ := res.Placement(tr.StepID)
		own, _ := res.Placement(s.ID)
		assert.GreaterOrEqual(t, own.Start, pred.End+tr.Offset, "%s starts before %s allows", s.ID, tr.StepID)
		assert.LessOrEqual(t, own.End, res.Report.NewMakespan)
	}

	// Variable steps are planned at their maximum.
	b, _ := res.Placement("b")
	assert.Equal(t, 15*sec, b.End-b.Start)
}

func TestPlan_FixedPoint(t *testing.T) {
	first, err := Plan(ovenProgram(), nil, nil)
	require.NoError(t, err)
	second, err := Plan(first.Program, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, second.Report.Shifted)
	assert.Equal(t, first.Report.NewPeak, second.Report.NewPeak)
	assert.Equal(t, second.Report.OriginalPeak, second.Report.NewPeak)
	assert.Equal(t, time.Duration(0), second.Report.MakespanDelta)
	assert.Equal(t, first.Program, second.Program)
}

func TestPlan_SlackBoundReportsViolations(t *testing.T) {
	res, err := Plan(ovenProgram(), nil, nil, WithSlack(10*sec))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 30*sec, r.NewMakespan)
	assert.LessOrEqual(t, r.NewMakespan, r.OriginalMakespan+10*sec)
	require.Len(t, r.Violations, 2)
	assert.Equal(t, "b", r.Violations[0].StepID)
	assert.Equal(t, 2, r.Violations[0].Usage)
	assert.Equal(t, "c", r.Violations[1].StepID)
	assert.Equal(t, 3, r.Violations[1].Usage)
	assert.Equal(t, ErrCodeResourceOverCapacity, r.Violations[1].Code)
}

func TestPlan_SlackAllowsSomeShifting(t *testing.T) {
	res, err := Plan(ovenProgram(), nil, nil, WithSlack(30*sec))
	require.NoError(t, err)

	// b fits at 30 within the 60s bound; c cannot reach 60 and overlaps.
	assert.Equal(t, schedule.AtOffset{Offset: 30 * sec}, trigger(t, res.Program, "b"))
	require.Len(t, res.Report.Violations, 1)
	assert.Equal(t, "c", res.Report.Violations[0].StepID)
	assert.LessOrEqual(t, res.Report.NewMakespan, 60*sec)
}

func TestPlan_ManualStepsUnplanned(t *testing.T) {
	p := testutil.NewProgram("manual").
		Constraint("oven", 1).
		Track("t",
			testutil.Step("m", testutil.OnSignal(), testutil.Fixed(10*sec), "oven"),
			testutil.Step("d", testutil.After("m", 2*sec), testutil.Fixed(10*sec), "oven"),
			testutil.Step("a", testutil.At(0), testutil.Fixed(10*sec), "oven"),
		).
		Build()
	res, err := Plan(p, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"m", "d"}, res.Report.Unplanned)
	assert.Equal(t, schedule.Manual{}, trigger(t, res.Program, "m"))
	assert.Equal(t, schedule.AfterStep{StepID: "m", Offset: 2 * sec}, trigger(t, res.Program, "d"))
	_, ok := res.Placement("m")
	assert.False(t, ok)
	assert.Equal(t, map[string]int{"oven": 1}, res.Report.OriginalPeak)
}

func TestPlan_ExplicitCapacities(t *testing.T) {
	res, err := Plan(ovenProgram(), nil, schedule.Capacities{"oven": 3})
	require.NoError(t, err)
	assert.Empty(t, res.Report.Shifted)
	assert.Empty(t, res.Report.Bottlenecks)
}

func TestPlan_GraphErrors(t *testing.T) {
	p := testutil.NewProgram("bad").
		Track("t", testutil.Step("a", testutil.After("ghost", 0), testutil.Fixed(sec))).
		Build()
	_, err := Plan(p, nil, nil)
	require.Error(t, err)
	assert.True(t, graph.IsUnresolvedReference(err))

	_, err = Plan(nil, nil, nil)
	assert.Error(t, err)
}

func TestReport_String(t *testing.T) {
	res, err := Plan(ovenProgram(), nil, nil)
	require.NoError(t, err)
	out := res.Report.String()
	assert.Contains(t, out, "makespan: 30s -> 1m20s (+50s)")
	assert.Contains(t, out, "peak oven: 3 -> 1")
	assert.Contains(t, out, "shifted c: +50s")
	assert.Contains(t, out, "bottleneck oven [10s, 30s): 3/1")
}

func TestUsageProfile(t *testing.T) {
	profile := UsageProfile([]Interval{
		{StepID: "x", Start: 0, End: 10 * sec, Resources: []string{"oven"}},
		{StepID: "y", Start: 5 * sec, End: 15 * sec, Resources: []string{"oven", "oven", "burner"}},
		{StepID: "z", Start: 15 * sec, End: 20 * sec, Resources: []string{"oven"}},
	})

	assert.Equal(t, []Segment{
		{Start: 0, End: 5 * sec, Count: 1},
		{Start: 5 * sec, End: 10 * sec, Count: 2},
		{Start: 10 * sec, End: 20 * sec, Count: 1},
	}, profile["oven"])
	assert.Equal(t, []Segment{{Start: 5 * sec, End: 15 * sec, Count: 1}}, profile["burner"])
	assert.Equal(t, 2, Peak(profile["oven"]))
	assert.Equal(t, 0, Peak(nil))
}

func TestUsageProfile_ZeroLengthIntervalsCount(t *testing.T) {
	profile := UsageProfile([]Interval{
		{StepID: "long", Start: 0, End: 10 * sec, Resources: []string{"oven"}},
		{StepID: "blink", Start: 5 * sec, End: 5 * sec, Resources: []string{"oven"}},
	})
	assert.Equal(t, 2, Peak(profile["oven"]))
}
