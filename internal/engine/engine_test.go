package engine

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/graph"
	"github.com/roach88/cadence/internal/schedule"
	"github.com/roach88/cadence/internal/testutil"
)

// newTestEngine creates an engine recording every event.
func newTestEngine(t *testing.T, p *schedule.Program, opts ...EngineOption) (*Engine, *event.Recorder) {
	t.Helper()
	rec := event.NewRecorder()
	opts = append([]EngineOption{
		WithSink(rec),
		WithRunIDGenerator(testutil.NewFixedRunID("run-test")),
	}, opts...)
	e, err := New(p, nil, opts...)
	require.NoError(t, err)
	return e, rec
}

type transition struct {
	step     string
	from, to schedule.StepState
	at       time.Duration
}

func transitions(rec *event.Recorder) []transition {
	var out []transition
	for _, ev := range rec.Events() {
		if ev.Kind == event.KindStepTransition {
			out = append(out, transition{ev.StepID, ev.From, ev.To, ev.At})
		}
	}
	return out
}

func kinds(rec *event.Recorder) []event.Kind {
	var out []event.Kind
	for _, ev := range rec.Events() {
		if ev.Kind != event.KindStepTransition {
			out = append(out, ev.Kind)
		}
	}
	return out
}

const (
	waiting   = schedule.StateWaiting
	ready     = schedule.StateReady
	running   = schedule.StateRunning
	completed = schedule.StateCompleted
	blocked   = schedule.StateBlocked
	cancelled = schedule.StateCancelled
)

// Two of three burner steps run at t=0; the third is admitted at t=60.
func TestEngine_ScenarioA_BlockedUntilRelease(t *testing.T) {
	e, rec := newTestEngine(t, testutil.BurnerProgram())

	require.NoError(t, e.Start())
	assert.Equal(t, map[string]schedule.StepState{"a": running, "b": running, "c": blocked}, e.States())
	assert.Equal(t, 2, e.Usage("stove-burner"))
	assert.Equal(t, []string{"c"}, e.Blocked())

	require.NoError(t, e.Advance(59*time.Second))
	st, _ := e.State("c")
	assert.Equal(t, blocked, st)

	require.NoError(t, e.Advance(time.Second))
	st, _ = e.State("c")
	assert.Equal(t, running, st)
	assert.Empty(t, e.Blocked())

	require.NoError(t, e.Advance(60*time.Second))
	assert.True(t, e.Done())
	assert.False(t, e.Stopped())

	assert.Equal(t, []transition{
		{"a", waiting, ready, 0},
		{"a", ready, running, 0},
		{"b", waiting, ready, 0},
		{"b", ready, running, 0},
		{"c", waiting, ready, 0},
		{"c", ready, blocked, 0},
		{"a", running, completed, 60 * time.Second},
		{"c", blocked, ready, 60 * time.Second},
		{"c", ready, running, 60 * time.Second},
		{"b", running, completed, 60 * time.Second},
		{"c", running, completed, 120 * time.Second},
	}, transitions(rec))
	assert.Equal(t, []event.Kind{event.KindRunStarted, event.KindRunCompleted}, kinds(rec))

	blockedEv, ok := rec.FirstEntry("c", blocked)
	require.True(t, ok)
	assert.Equal(t, "stove-burner", blockedEv.Detail[event.DetailSaturated])
}

// X fires at 40: Y's completion at 30 plus X's 10s offset.
func TestEngine_ScenarioB_AfterStepOffset(t *testing.T) {
	p := testutil.NewProgram("b").
		Track("t",
			testutil.Step("Y", testutil.AtStart(), testutil.Fixed(30*time.Second)),
			testutil.Step("X", testutil.After("Y", 10*time.Second), testutil.Fixed(5*time.Second)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())

	next, ok := e.NextEventAt()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, next)

	require.NoError(t, e.Advance(39*time.Second))
	st, _ := e.State("X")
	assert.Equal(t, waiting, st)

	next, _ = e.NextEventAt()
	assert.Equal(t, 40*time.Second, next)

	require.NoError(t, e.Advance(time.Second))
	fired, ok := rec.FirstEntry("X", ready)
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, fired.At)
}

// Scenario B with one large advance: processing order cannot move X earlier.
func TestEngine_ScenarioB_SingleAdvance(t *testing.T) {
	p := testutil.NewProgram("b").
		Track("t",
			testutil.Step("X", testutil.After("Y", 10*time.Second), testutil.Fixed(5*time.Second)),
			testutil.Step("Y", testutil.AtStart(), testutil.Fixed(30*time.Second)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(time.Hour))

	fired, ok := rec.FirstEntry("X", ready)
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, fired.At)
	done, _ := rec.FirstEntry("X", completed)
	assert.Equal(t, 45*time.Second, done.At)
	assert.Equal(t, time.Hour, e.Now())
}

// Stop with three running holders returns every count to zero before the
// run is reported stopped.
func TestEngine_ScenarioC_StopReleasesEverything(t *testing.T) {
	p := testutil.NewProgram("c").
		Constraint("burner", 3).
		Track("t",
			testutil.Step("a", testutil.AtStart(), testutil.Fixed(time.Minute), "burner"),
			testutil.Step("b", testutil.AtStart(), testutil.Fixed(time.Minute), "burner"),
			testutil.Step("c", testutil.AtStart(), testutil.Fixed(time.Minute), "burner"),
			testutil.Step("d", testutil.After("a", 0), testutil.Fixed(time.Minute), "burner"),
		).
		Build()

	var e *Engine
	usageAtStop := -1
	rec := event.NewRecorder()
	sink := event.Multi(rec, event.SinkFunc(func(ev event.Event) {
		if ev.Kind == event.KindRunStopped {
			usageAtStop = e.Usage("burner")
		}
	}))
	e, err := New(p, nil, WithSink(sink), WithRunIDGenerator(testutil.NewFixedRunID("r")))
	require.NoError(t, err)

	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(10*time.Second))
	assert.Equal(t, 3, e.Usage("burner"))

	assert.True(t, e.Stop())
	assert.Equal(t, 0, usageAtStop)
	assert.Equal(t, 0, e.Usage("burner"))
	assert.True(t, e.Done())
	assert.True(t, e.Stopped())
	assert.Equal(t, map[string]schedule.StepState{
		"a": cancelled, "b": cancelled, "c": cancelled, "d": cancelled,
	}, e.States())

	// Releases balance: every admitted step released exactly once.
	for id, b := range e.Balances() {
		assert.Equal(t, Balance{Admitted: 1, Released: 1}, b, id)
	}
	assert.Empty(t, e.Outstanding())

	// Running steps are cancelled before waiting ones, then the run stops.
	tail := transitions(rec)[6:]
	assert.Equal(t, []transition{
		{"a", running, cancelled, 10 * time.Second},
		{"b", running, cancelled, 10 * time.Second},
		{"c", running, cancelled, 10 * time.Second},
		{"d", waiting, cancelled, 10 * time.Second},
	}, tail)
	events := rec.Events()
	assert.Equal(t, event.KindRunStopped, events[len(events)-1].Kind)

	// Nothing happens after the stop.
	require.NoError(t, e.Advance(time.Hour))
	assert.Len(t, rec.Events(), len(events))
	assert.False(t, e.Stop())
}

func TestEngine_ResourceFreedAtTriggerInstant(t *testing.T) {
	// b's trigger and a's completion coincide at 30s; b runs at that same instant.
	p := testutil.NewProgram("p").
		Constraint("oven", 1).
		Track("t",
			testutil.Step("a", testutil.AtStart(), testutil.Fixed(30*time.Second), "oven"),
			testutil.Step("b", testutil.At(30*time.Second), testutil.Fixed(30*time.Second), "oven"),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(30*time.Second))

	st, _ := e.State("b")
	assert.Equal(t, running, st)
	runs, ok := rec.FirstEntry("b", running)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, runs.At)
}

func TestEngine_FairnessEarliestTriggeredFirst(t *testing.T) {
	// z blocks at 1s, y at 2s; when the oven frees, z goes first despite its ID.
	p := testutil.NewProgram("p").
		Constraint("oven", 1).
		Track("t",
			testutil.Step("holder", testutil.AtStart(), testutil.Fixed(10*time.Second), "oven"),
			testutil.Step("y", testutil.At(2*time.Second), testutil.Fixed(10*time.Second), "oven"),
			testutil.Step("z", testutil.At(time.Second), testutil.Fixed(10*time.Second), "oven"),
		).
		Build()
	e, _ := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(10*time.Second))

	z, _ := e.State("z")
	y, _ := e.State("y")
	assert.Equal(t, running, z)
	assert.Equal(t, blocked, y)
}

func TestEngine_FairnessAcrossSeveralFreedResources(t *testing.T) {
	// h frees a and z together. p1 was triggered first and takes z, so p2
	// keeps waiting even though a comes first in name order.
	p := testutil.NewProgram("p").
		Constraint("a", 1).
		Constraint("z", 1).
		Track("t",
			testutil.Step("h", testutil.AtStart(), testutil.Fixed(time.Minute), "a", "z"),
			testutil.Step("p1", testutil.At(10*time.Second), testutil.Fixed(time.Minute), "z"),
			testutil.Step("p2", testutil.At(20*time.Second), testutil.Fixed(time.Minute), "a", "z"),
		).
		Build()
	e, _ := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(time.Minute))

	p1, _ := e.State("p1")
	p2, _ := e.State("p2")
	assert.Equal(t, running, p1)
	assert.Equal(t, blocked, p2)
	assert.Equal(t, []string{"p2"}, e.Blocked())
}

func TestEngine_FairnessTieBrokenByID(t *testing.T) {
	p := testutil.NewProgram("p").
		Constraint("oven", 1).
		Track("t",
			testutil.Step("holder", testutil.AtStart(), testutil.Fixed(10*time.Second), "oven"),
			testutil.Step("q", testutil.At(time.Second), testutil.Fixed(10*time.Second), "oven"),
			testutil.Step("p", testutil.At(time.Second), testutil.Fixed(10*time.Second), "oven"),
		).
		Build()
	e, _ := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(10*time.Second))

	got, _ := e.State("p")
	assert.Equal(t, running, got)
}

func TestEngine_AllOrNothingAdmission(t *testing.T) {
	// both needs oven and burner; burner is free but the oven is not.
	p := testutil.NewProgram("p").
		Constraint("oven", 1).
		Constraint("burner", 1).
		Track("t",
			testutil.Step("bake", testutil.AtStart(), testutil.Fixed(time.Minute), "oven"),
			testutil.Step("both", testutil.AtStart(), testutil.Fixed(time.Minute), "oven", "burner"),
		).
		Build()
	e, _ := newTestEngine(t, p)
	require.NoError(t, e.Start())

	st, _ := e.State("both")
	assert.Equal(t, blocked, st)
	assert.Equal(t, 0, e.Usage("burner"))
}

func TestEngine_UnconstrainedResourcesNeverBlock(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("a", testutil.AtStart(), testutil.Fixed(time.Minute), "knife"),
			testutil.Step("b", testutil.AtStart(), testutil.Fixed(time.Minute), "knife"),
		).
		Build()
	e, _ := newTestEngine(t, p)
	require.NoError(t, e.Start())
	assert.Equal(t, map[string]schedule.StepState{"a": running, "b": running}, e.States())
}

func TestEngine_WithCapacitiesOverridesProgram(t *testing.T) {
	e, _ := newTestEngine(t, testutil.BurnerProgram(), WithCapacities(schedule.Capacities{"stove-burner": 3}))
	require.NoError(t, e.Start())
	assert.Empty(t, e.Blocked())
	assert.Equal(t, schedule.Capacities{"stove-burner": 3}, e.Capacities())
}

func TestEngine_ManualSignal(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("m", testutil.OnSignal(), testutil.Fixed(10*time.Second)),
			testutil.Step("after", testutil.After("m", 0), testutil.Fixed(time.Second)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(5*time.Second))

	st, _ := e.State("m")
	assert.Equal(t, waiting, st)

	assert.Equal(t, SignalTriggered, e.Signal("m"))
	st, _ = e.State("m")
	assert.Equal(t, running, st)

	ev, ok := rec.FirstEntry("m", ready)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, ev.At)
	assert.Equal(t, "signal", ev.Detail[event.DetailCause])

	// Second signal is a no-op: m is running with a fixed duration.
	assert.Equal(t, SignalIgnored, e.Signal("m"))

	require.NoError(t, e.Advance(11*time.Second))
	assert.True(t, e.Done())
	assert.Equal(t, SignalIgnored, e.Signal("m"))
}

func TestEngine_SignalIgnored(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("auto", testutil.AtStart(), testutil.Fixed(time.Minute)),
			testutil.Step("later", testutil.At(time.Hour), testutil.Fixed(time.Minute)),
			testutil.Step("m", testutil.OnSignal(), testutil.Fixed(time.Minute)),
		).
		Build()

	t.Run("before start", func(t *testing.T) {
		e, _ := newTestEngine(t, p)
		assert.Equal(t, SignalIgnored, e.Signal("m"))
	})

	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())
	before := rec.Len()

	assert.Equal(t, SignalIgnored, e.Signal("missing"))
	assert.Equal(t, SignalIgnored, e.Signal("auto"), "fixed duration step ignores signals")
	assert.Equal(t, SignalIgnored, e.Signal("later"), "waiting non-manual step ignores signals")
	assert.Equal(t, before, rec.Len(), "ignored signals publish nothing")
}

func TestEngine_VariableDuration(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("rest", testutil.AtStart(), testutil.Between(10*time.Second, 20*time.Second)),
			testutil.Step("early", testutil.AtStart(), testutil.Between(10*time.Second, 20*time.Second)),
			testutil.Step("forced", testutil.AtStart(), testutil.Between(10*time.Second, 20*time.Second)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())

	require.NoError(t, e.Advance(5*time.Second))
	assert.Equal(t, SignalCompleted, e.Signal("early"))

	require.NoError(t, e.Advance(7*time.Second))
	assert.Equal(t, SignalCompleted, e.Signal("rest"))

	require.NoError(t, e.Advance(8*time.Second))

	ev, _ := rec.FirstEntry("early", completed)
	assert.Equal(t, 5*time.Second, ev.At)
	assert.Equal(t, "true", ev.Detail[event.DetailEarly])
	assert.Equal(t, "signal", ev.Detail[event.DetailCause])

	ev, _ = rec.FirstEntry("rest", completed)
	assert.Equal(t, 12*time.Second, ev.At)
	assert.NotContains(t, ev.Detail, event.DetailEarly)

	ev, _ = rec.FirstEntry("forced", completed)
	assert.Equal(t, 20*time.Second, ev.At)
	assert.Equal(t, "duration", ev.Detail[event.DetailCause])

	assert.True(t, e.Done())
	// The signalled steps' scheduled completions were withdrawn.
	assert.Len(t, rec.Transitions("early"), 3)
}

func TestEngine_AbortReleasesAndLeavesDependentsWaiting(t *testing.T) {
	p := testutil.NewProgram("p").
		Constraint("oven", 1).
		Track("t",
			testutil.Step("bake", testutil.AtStart(), testutil.Fixed(time.Hour), "oven"),
			testutil.Step("roast", testutil.AtStart(), testutil.Fixed(time.Minute), "oven"),
			testutil.Step("plate", testutil.After("bake", 0), testutil.Fixed(time.Minute)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(5*time.Second))

	assert.True(t, e.Abort("bake"))

	st, _ := e.State("bake")
	assert.Equal(t, cancelled, st)
	ev, ok := rec.FirstEntry("bake", cancelled)
	require.True(t, ok)
	assert.Equal(t, "abort", ev.Detail[event.DetailCause])
	assert.Equal(t, 5*time.Second, ev.At)

	st, _ = e.State("roast")
	assert.Equal(t, running, st, "freed oven admits the blocked step")
	assert.Equal(t, Balance{Admitted: 1, Released: 1}, e.Balances()["bake"])

	require.NoError(t, e.Advance(2*time.Hour))
	st, _ = e.State("plate")
	assert.Equal(t, waiting, st)
	assert.False(t, e.Done(), "run stays open until stopped")

	assert.True(t, e.Stop())
	st, _ = e.State("plate")
	assert.Equal(t, cancelled, st)
	assert.Empty(t, e.Outstanding())
}

func TestEngine_AbortIgnoredUnlessRunning(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("auto", testutil.AtStart(), testutil.Fixed(time.Second)),
			testutil.Step("m", testutil.OnSignal(), testutil.Fixed(time.Minute)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	assert.False(t, e.Abort("auto"), "before start")

	require.NoError(t, e.Start())
	before := rec.Len()
	assert.False(t, e.Abort("m"), "waiting step")
	assert.False(t, e.Abort("missing"))
	assert.Equal(t, before, rec.Len())

	require.NoError(t, e.Advance(time.Second))
	assert.False(t, e.Abort("auto"), "completed step")
}

func TestEngine_CompleteForcesAnyRunningStep(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("boil", testutil.AtStart(), testutil.Fixed(10*time.Minute)),
			testutil.Step("rest", testutil.AtStart(), testutil.Between(time.Minute, 5*time.Minute)),
			testutil.Step("drain", testutil.After("boil", 30*time.Second), testutil.Fixed(time.Second)),
		).
		Build()
	e, rec := newTestEngine(t, p)
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(2*time.Minute))

	assert.True(t, e.Complete("boil"))
	assert.True(t, e.Complete("rest"))
	assert.False(t, e.Complete("drain"), "not yet triggered")

	ev, _ := rec.FirstEntry("boil", completed)
	assert.Equal(t, 2*time.Minute, ev.At)
	assert.Equal(t, "forced", ev.Detail[event.DetailCause])
	assert.Equal(t, "true", ev.Detail[event.DetailEarly])

	ev, _ = rec.FirstEntry("rest", completed)
	assert.NotContains(t, ev.Detail, event.DetailEarly, "past its minimum")

	require.NoError(t, e.Advance(31*time.Second))
	ev, ok := rec.FirstEntry("drain", completed)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute+31*time.Second, ev.At)
	assert.True(t, e.Done())

	// The withdrawn duration completion never fires.
	assert.Len(t, rec.Transitions("boil"), 3)
}

func TestEngine_StartReportsProcessingError(t *testing.T) {
	e, _ := newTestEngine(t, testutil.BurnerProgram())
	e.queue.push(-time.Second, pendingTrigger, "stale")
	assert.Error(t, e.Start())
}

func TestEngine_ZeroDurationChain(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("a", testutil.AtStart(), testutil.Fixed(0)),
			testutil.Step("b", testutil.After("a", 0), testutil.Fixed(0)),
		).
		Build()
	e, _ := newTestEngine(t, p)
	require.NoError(t, e.Start())
	assert.True(t, e.Done())
	assert.Equal(t, time.Duration(0), e.Now())
}

func TestEngine_EmptyProgramCompletesOnStart(t *testing.T) {
	e, rec := newTestEngine(t, testutil.NewProgram("empty").Build())
	require.NoError(t, e.Start())
	assert.True(t, e.Done())
	assert.Equal(t, []event.Kind{event.KindRunStarted, event.KindRunCompleted}, kinds(rec))
}

func TestEngine_ControlErrors(t *testing.T) {
	e, _ := newTestEngine(t, testutil.BurnerProgram())

	err := e.Advance(time.Second)
	assert.True(t, IsNotStarted(err))

	require.NoError(t, e.Start())
	assert.True(t, IsAlreadyStarted(e.Start()))

	err = e.Advance(-time.Second)
	assert.True(t, IsNegativeAdvance(err))
	assert.Equal(t, time.Duration(0), e.Now())
}

func TestEngine_StopBeforeStartIgnored(t *testing.T) {
	e, rec := newTestEngine(t, testutil.BurnerProgram())
	assert.False(t, e.Stop())
	assert.Zero(t, rec.Len())
}

func TestEngine_NewRejectsInvalidGraph(t *testing.T) {
	p := testutil.NewProgram("p").
		Track("t",
			testutil.Step("a", testutil.After("b", 0), testutil.Fixed(time.Second)),
			testutil.Step("b", testutil.After("a", 0), testutil.Fixed(time.Second)),
		).
		Build()
	_, err := New(p, nil)
	require.Error(t, err)
	assert.True(t, graph.IsCyclicDependency(err))

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestEngine_NewRejectsMismatchedGraph(t *testing.T) {
	g, err := graph.Build(testutil.BurnerProgram())
	require.NoError(t, err)
	other := testutil.NewProgram("p").
		Track("t", testutil.Step("x", testutil.AtStart(), testutil.Fixed(time.Second))).
		Build()
	_, err = New(other, g)
	assert.Error(t, err)
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	p := testutil.BurnerProgram()
	e, _ := newTestEngine(t, p)
	p.Tracks[0].Steps[0].Duration = testutil.Fixed(time.Hour)

	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(60*time.Second))
	st, _ := e.State("a")
	assert.Equal(t, completed, st)
}

func TestEngine_IndependentInstances(t *testing.T) {
	e1, _ := newTestEngine(t, testutil.BurnerProgram())
	e2, _ := newTestEngine(t, testutil.BurnerProgram())
	require.NoError(t, e1.Start())
	require.NoError(t, e1.Advance(60*time.Second))

	assert.False(t, e2.Started())
	assert.Equal(t, time.Duration(0), e2.Now())
	assert.Equal(t, 0, e2.Usage("stove-burner"))
}

func TestEngine_SeqStrictlyIncreasing(t *testing.T) {
	e, rec := newTestEngine(t, testutil.BurnerProgram())
	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(2*time.Minute))

	var last int64
	for _, ev := range rec.Events() {
		assert.Greater(t, ev.Seq, last)
		assert.Equal(t, "run-test", ev.RunID)
		last = ev.Seq
	}
}

// replay drives a fresh engine through a fixed control script.
func replay(t *testing.T) []byte {
	t.Helper()
	p := testutil.NewProgram("replay").
		Constraint("burner", 1).
		Track("t1",
			testutil.Step("a", testutil.AtStart(), testutil.Fixed(20*time.Second), "burner"),
			testutil.Step("b", testutil.After("a", 5*time.Second), testutil.Between(5*time.Second, 30*time.Second), "burner"),
		).
		Track("t2",
			testutil.Step("m", testutil.OnSignal(), testutil.Fixed(10*time.Second), "burner"),
			testutil.Step("n", testutil.At(3*time.Second), testutil.Fixed(time.Second)),
		).
		Build()

	var buf bytes.Buffer
	w := event.NewJSONLWriter(&buf)
	e, err := New(p, nil, WithSink(w), WithRunIDGenerator(NewFixedGenerator("run-1")))
	require.NoError(t, err)

	require.NoError(t, e.Start())
	require.NoError(t, e.Advance(4*time.Second))
	e.Signal("m")
	require.NoError(t, e.Advance(30*time.Second))
	e.Signal("b")
	e.Signal("b")
	require.NoError(t, e.Advance(time.Minute))
	require.NoError(t, w.Err())
	return buf.Bytes()
}

func TestEngine_ReplayIsByteIdentical(t *testing.T) {
	first := replay(t)
	second := replay(t)
	require.NotEmpty(t, first)
	assert.Equal(t, string(first), string(second))
}
