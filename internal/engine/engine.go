package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/cadence/internal/admission"
	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/graph"
	"github.com/roach88/cadence/internal/schedule"
)

// SignalOutcome reports what an external signal did.
type SignalOutcome int

const (
	// SignalIgnored means the signal did not apply to the step's state.
	SignalIgnored SignalOutcome = iota
	// SignalTriggered means a waiting manual step was triggered.
	SignalTriggered
	// SignalCompleted means a running variable-duration step was completed.
	SignalCompleted
)

func (o SignalOutcome) String() string {
	switch o {
	case SignalTriggered:
		return "triggered"
	case SignalCompleted:
		return "completed"
	default:
		return "ignored"
	}
}

// stepRun is the live state of one step.
type stepRun struct {
	step       *schedule.Step
	state      schedule.StepState
	readyAt    time.Duration // when the trigger fired; admission fairness key
	startedAt  time.Duration
	completion *pending
}

// Engine runs one program. Every instance owns its clock, queue and
// admission controller; independent engines never share state.
//
// INVARIANTS:
//   - the program is a private clone and never changes after New
//   - a step is released exactly once per admission
//   - Seq strictly increases across published events
type Engine struct {
	program *schedule.Program
	graph   *graph.Graph
	steps   []*stepRun // indexed by graph node; steps[graph.StartNode] is nil
	caps    schedule.Capacities

	clock   *Clock
	seq     sequence
	queue   *eventQueue
	admit   *admission.Controller
	ledger  *releaseLedger
	blocked map[int]struct{}

	sink   event.Sink
	logger *slog.Logger
	runIDs RunIDGenerator
	runID  string

	started  bool
	stopped  bool
	done     bool
	terminal int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithSink sets the event sink. Default: event.Discard.
func WithSink(s event.Sink) EngineOption {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithCapacities replaces the capacity table derived from the program's
// resource constraints.
func WithCapacities(caps schedule.Capacities) EngineOption {
	return func(e *Engine) {
		e.caps = maps.Clone(caps)
	}
}

// New creates an engine for p.
//
// g is the dependency graph built from p; pass nil to build it here. Build
// errors (cycles, unresolved references, duplicate steps) are returned
// before any execution state exists.
func New(p *schedule.Program, g *graph.Graph, opts ...EngineOption) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: nil program")
	}
	prog := p.Clone()

	if g == nil {
		built, err := graph.Build(prog)
		if err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
		g = built
	}

	steps := prog.Steps()
	if g.Steps() != len(steps) {
		return nil, fmt.Errorf("engine: graph has %d steps, program has %d", g.Steps(), len(steps))
	}

	e := &Engine{
		program: prog,
		graph:   g,
		steps:   make([]*stepRun, len(steps)+1),
		caps:    prog.Capacities(),
		clock:   NewClock(),
		queue:   newEventQueue(),
		ledger:  newReleaseLedger(),
		blocked: make(map[int]struct{}),
		sink:    event.Discard,
		logger:  slog.Default(),
		runIDs:  UUIDv7Generator{},
	}
	for i, s := range steps {
		if idx, ok := g.Index(s.ID); !ok || idx != i+1 {
			return nil, fmt.Errorf("engine: graph does not match program at step %q", s.ID)
		}
		e.steps[i+1] = &stepRun{step: s, state: schedule.StateWaiting}
	}

	for _, opt := range opts {
		opt(e)
	}

	e.admit = admission.New(e.caps)
	e.runID = e.runIDs.Generate()
	e.logger = e.logger.With("run_id", e.runID, "program", prog.ID)
	return e, nil
}

// Start begins the run at virtual time 0: steps triggered at program start
// fire immediately and AtOffset steps are scheduled.
func (e *Engine) Start() error {
	if e.started {
		return &RuntimeError{Code: ErrCodeAlreadyStarted, Message: "run already started"}
	}
	e.started = true

	e.logger.Info("run started", "steps", len(e.steps)-1, "event", "run_started")
	e.emitRun(event.KindRunStarted)

	for i := 1; i < len(e.steps); i++ {
		s := e.steps[i].step
		switch tr := s.Trigger.(type) {
		case schedule.ProgramStart:
			e.queue.push(0, pendingTrigger, s.ID)
		case schedule.AtOffset:
			e.queue.push(max(tr.Offset, 0), pendingTrigger, s.ID)
		case schedule.Manual, schedule.AfterStep:
			// fired by a signal or by its predecessor
		default:
			panic(fmt.Sprintf("engine: unknown trigger %T", s.Trigger))
		}
	}

	e.checkCompleted()
	return e.drainDue(e.clock.Now())
}

// Advance moves virtual time forward by d, processing every event due on
// the way in order. Advancing a finished run only moves the clock.
func (e *Engine) Advance(d time.Duration) error {
	if !e.started {
		return &RuntimeError{Code: ErrCodeNotStarted, Message: "advance before start"}
	}
	if d < 0 {
		return &RuntimeError{Code: ErrCodeNegativeAdvance, Message: fmt.Sprintf("cannot advance by %s", d)}
	}
	target := e.clock.Now() + d
	if err := e.drainDue(target); err != nil {
		return err
	}
	return e.clock.AdvanceTo(target)
}

// Signal delivers an external signal for stepID at the current time.
//
// A waiting manual step is triggered; a running variable-duration step is
// completed. Anything else is a no-op reported as SignalIgnored and logged
// with ErrCodeInvalidSignal. Signals may race with engine state harmlessly.
func (e *Engine) Signal(stepID string) SignalOutcome {
	i, ok := e.graph.Index(stepID)
	if !ok {
		e.ignore(newInvalidSignal(stepID, "unknown step"))
		return SignalIgnored
	}
	if !e.started || e.done {
		e.ignore(newInvalidSignal(stepID, "run is not active"))
		return SignalIgnored
	}

	outcome := e.signalOutcome(i)
	if outcome == SignalIgnored {
		sr := e.steps[i]
		e.ignore(newInvalidSignal(stepID, fmt.Sprintf("%s step in state %s does not accept signals",
			sr.step.Trigger.Kind(), sr.state)))
		return SignalIgnored
	}

	e.queue.push(e.clock.Now(), pendingSignal, stepID)
	e.drainNow("signal")
	return outcome
}

func (e *Engine) signalOutcome(i int) SignalOutcome {
	sr := e.steps[i]
	switch {
	case sr.state == schedule.StateWaiting && sr.step.Trigger.Kind() == schedule.KindManual:
		return SignalTriggered
	case sr.state == schedule.StateRunning && isVariable(sr.step.Duration):
		return SignalCompleted
	default:
		return SignalIgnored
	}
}

// Stop cancels every non-terminal step, releasing held resources before the
// run is reported stopped. Returns false if the run was not active.
func (e *Engine) Stop() bool {
	if !e.started || e.done {
		e.ignore(newInvalidSignal("", "stop outside an active run"))
		return false
	}
	e.queue.push(e.clock.Now(), pendingStop, "")
	e.drainNow("stop")
	return true
}

// Abort cancels a running step and frees its resources. Steps that wait on
// it through AfterStep triggers stay Waiting, so the run only ends via
// Stop. Returns false, logging ErrCodeInvalidSignal, unless stepID is
// running.
func (e *Engine) Abort(stepID string) bool {
	if !e.acceptsControl(stepID, "abort") {
		return false
	}
	e.queue.push(e.clock.Now(), pendingAbort, stepID)
	e.drainNow("abort")
	return true
}

// Complete finishes a running step now regardless of its duration kind.
// Dependents are triggered as for a normal completion.
func (e *Engine) Complete(stepID string) bool {
	if !e.acceptsControl(stepID, "complete") {
		return false
	}
	e.queue.push(e.clock.Now(), pendingForce, stepID)
	e.drainNow("complete")
	return true
}

// acceptsControl reports whether stepID names a running step of an
// active run.
func (e *Engine) acceptsControl(stepID, op string) bool {
	i, ok := e.graph.Index(stepID)
	switch {
	case !ok:
		e.ignore(newInvalidSignal(stepID, "unknown step"))
		return false
	case !e.started || e.done:
		e.ignore(newInvalidSignal(stepID, "run is not active"))
		return false
	case e.steps[i].state != schedule.StateRunning:
		e.ignore(newInvalidSignal(stepID, fmt.Sprintf("cannot %s step in state %s", op, e.steps[i].state)))
		return false
	}
	return true
}

// drainNow processes events due at the current time on behalf of a
// control call that has no error return.
func (e *Engine) drainNow(op string) {
	if err := e.drainDue(e.clock.Now()); err != nil {
		e.logger.Error("event processing failed", "op", op, "error", err, "event", "drain_failed")
	}
}

// drainDue processes every queued event at or before until.
func (e *Engine) drainDue(until time.Duration) error {
	for {
		p, ok := e.queue.peek()
		if !ok || p.at > until {
			return nil
		}
		e.queue.pop()
		if err := e.clock.AdvanceTo(p.at); err != nil {
			return fmt.Errorf("process %s %s: %w", p.kind, p.subject, err)
		}
		e.process(p)
	}
}

// process handles one event. Called only from drainDue.
func (e *Engine) process(p *pending) {
	switch p.kind {
	case pendingReleased:
		e.onReleased(p.resources)
	case pendingTrigger:
		e.onTrigger(p.subject, "trigger")
	case pendingSignal:
		e.onSignal(p.subject)
	case pendingAbort:
		e.onAbort(p.subject)
	case pendingForce:
		e.onComplete(p.subject, "forced")
	case pendingComplete:
		e.onComplete(p.subject, "duration")
	case pendingStop:
		e.onStop()
	default:
		panic(fmt.Sprintf("engine: unknown event kind %d", p.kind))
	}
	e.checkCompleted()
}

func (e *Engine) onTrigger(stepID, cause string) {
	i := e.mustIndex(stepID)
	sr := e.steps[i]
	if sr.state != schedule.StateWaiting {
		e.logger.Debug("trigger for non-waiting step dropped", "step", stepID, "state", sr.state)
		return
	}
	sr.readyAt = e.clock.Now()
	e.transition(i, schedule.StateReady, map[string]string{event.DetailCause: cause})
	e.tryStart(i)
}

func (e *Engine) onSignal(stepID string) {
	i := e.mustIndex(stepID)
	switch e.signalOutcome(i) {
	case SignalTriggered:
		e.onTrigger(stepID, "signal")
	case SignalCompleted:
		e.onComplete(stepID, "signal")
	default:
		e.ignore(newInvalidSignal(stepID, "state changed before the signal was processed"))
	}
}

// tryStart asks for admission of a Ready or Blocked step.
func (e *Engine) tryStart(i int) bool {
	sr := e.steps[i]
	d := e.admit.TryAdmit(sr.step.ID, sr.step.Resources)
	if !d.Granted {
		if sr.state != schedule.StateBlocked {
			e.blocked[i] = struct{}{}
			e.transition(i, schedule.StateBlocked, map[string]string{
				event.DetailSaturated: strings.Join(d.Saturated, ","),
			})
		}
		return false
	}

	e.ledger.admit(sr.step.ID)
	if sr.state == schedule.StateBlocked {
		delete(e.blocked, i)
		e.transition(i, schedule.StateReady, map[string]string{event.DetailCause: "released"})
	}
	now := e.clock.Now()
	sr.startedAt = now
	e.transition(i, schedule.StateRunning, nil)
	sr.completion = e.queue.push(now+runLength(sr.step.Duration), pendingComplete, sr.step.ID)
	return true
}

func (e *Engine) onComplete(stepID, cause string) {
	i := e.mustIndex(stepID)
	sr := e.steps[i]
	if sr.state != schedule.StateRunning {
		return
	}
	e.queue.remove(sr.completion)
	sr.completion = nil

	freed := e.release(sr.step.ID)

	now := e.clock.Now()
	detail := map[string]string{event.DetailCause: cause}
	if cause != "duration" && now-sr.startedAt < minLength(sr.step.Duration) {
		detail[event.DetailEarly] = "true"
	}
	e.transition(i, schedule.StateCompleted, detail)

	if len(freed) > 0 {
		e.queue.pushRelease(now, freed)
	}
	for _, j := range e.graph.Successors(i) {
		next := e.steps[j].step
		tr, ok := next.Trigger.(schedule.AfterStep)
		if !ok {
			continue
		}
		e.queue.push(now+max(tr.Offset, 0), pendingTrigger, next.ID)
	}
}

func (e *Engine) onAbort(stepID string) {
	i := e.mustIndex(stepID)
	sr := e.steps[i]
	if sr.state != schedule.StateRunning {
		return
	}
	e.queue.remove(sr.completion)
	sr.completion = nil

	freed := e.release(sr.step.ID)
	e.transition(i, schedule.StateCancelled, map[string]string{event.DetailCause: "abort"})
	e.logger.Info("step aborted", "step", stepID, "at", e.clock.Now(), "event", "step_aborted")
	if len(freed) > 0 {
		e.queue.pushRelease(e.clock.Now(), freed)
	}
}

// onReleased re-evaluates, in one pass, every Blocked step that references
// any of the freed resources: earliest triggered first, ties broken by
// step ID.
func (e *Engine) onReleased(freed []string) {
	var waiting []int
	for i := range e.blocked {
		if slices.ContainsFunc(e.steps[i].step.Resources, func(r string) bool {
			return slices.Contains(freed, r)
		}) {
			waiting = append(waiting, i)
		}
	}
	slices.SortFunc(waiting, func(a, b int) int {
		sa, sb := e.steps[a], e.steps[b]
		return cmp.Or(
			cmp.Compare(sa.readyAt, sb.readyAt),
			cmp.Compare(sa.step.ID, sb.step.ID),
		)
	})
	for _, i := range waiting {
		e.tryStart(i)
	}
}

func (e *Engine) onStop() {
	e.queue.clear()

	// Running holders release first so no resource is held once any
	// cancellation is observed.
	for i := 1; i < len(e.steps); i++ {
		sr := e.steps[i]
		if sr.state != schedule.StateRunning {
			continue
		}
		sr.completion = nil
		e.release(sr.step.ID)
		e.transition(i, schedule.StateCancelled, map[string]string{event.DetailCause: "stop"})
	}
	for i := 1; i < len(e.steps); i++ {
		if e.steps[i].state.Terminal() {
			continue
		}
		delete(e.blocked, i)
		e.transition(i, schedule.StateCancelled, map[string]string{event.DetailCause: "stop"})
	}

	e.stopped = true
	e.done = true
	e.logger.Info("run stopped", "at", e.clock.Now(), "event", "run_stopped")
	e.emitRun(event.KindRunStopped)
}

// release returns a step's admission and records it in the ledger.
func (e *Engine) release(stepID string) []string {
	freed, err := e.admit.Release(stepID)
	if err != nil {
		e.logger.Warn("release anomaly", "step", stepID, "error", err, "event", "release_anomaly")
		return nil
	}
	if err := e.ledger.release(stepID); err != nil {
		e.logger.Warn("release anomaly", "step", stepID, "error", err, "event", "release_anomaly")
	}
	return freed
}

func (e *Engine) checkCompleted() {
	if e.done || !e.started || e.terminal < len(e.steps)-1 {
		return
	}
	e.done = true
	e.queue.clear()
	e.logger.Info("run completed", "at", e.clock.Now(), "event", "run_completed")
	e.emitRun(event.KindRunCompleted)
}

func (e *Engine) transition(i int, to schedule.StepState, detail map[string]string) {
	sr := e.steps[i]
	from := sr.state
	sr.state = to
	if to.Terminal() {
		e.terminal++
	}
	ev := event.Event{
		Seq:    e.seq.Next(),
		RunID:  e.runID,
		Kind:   event.KindStepTransition,
		StepID: sr.step.ID,
		From:   from,
		To:     to,
		At:     e.clock.Now(),
		Detail: detail,
	}
	e.logger.Debug("step transition",
		"step", sr.step.ID,
		"from", from,
		"to", to,
		"at", ev.At,
		"seq", ev.Seq,
	)
	e.sink.Publish(ev)
}

func (e *Engine) emitRun(kind event.Kind) {
	e.sink.Publish(event.Event{
		Seq:   e.seq.Next(),
		RunID: e.runID,
		Kind:  kind,
		At:    e.clock.Now(),
	})
}

func (e *Engine) ignore(err *RuntimeError) {
	e.logger.Warn("signal ignored",
		"step", err.StepID,
		"code", err.Code,
		"error", err,
		"event", "signal_ignored",
	)
}

func (e *Engine) mustIndex(stepID string) int {
	i, ok := e.graph.Index(stepID)
	if !ok {
		panic(fmt.Sprintf("engine: queued event for unknown step %q", stepID))
	}
	return i
}

// runLength is how long a step stays Running absent a signal.
// Variable steps are force-completed at their maximum.
func runLength(d schedule.Duration) time.Duration {
	switch v := d.(type) {
	case schedule.Fixed:
		return max(v.D, 0)
	case schedule.Variable:
		return max(v.Max, 0)
	default:
		panic(fmt.Sprintf("engine: unknown duration %T", d))
	}
}

// minLength is the earliest a step counts as finished on time.
func minLength(d schedule.Duration) time.Duration {
	switch v := d.(type) {
	case schedule.Fixed:
		return v.D
	case schedule.Variable:
		return v.Min
	default:
		return 0
	}
}

func isVariable(d schedule.Duration) bool {
	_, ok := d.(schedule.Variable)
	return ok
}

// Now returns the current virtual time.
func (e *Engine) Now() time.Duration { return e.clock.Now() }

// RunID returns the identifier stamped on this run's events.
func (e *Engine) RunID() string { return e.runID }

// Program returns the engine's private copy of the program. Callers must not modify it.
func (e *Engine) Program() *schedule.Program { return e.program }

// Started reports whether Start has been called.
func (e *Engine) Started() bool { return e.started }

// Done reports whether the run has completed or stopped.
func (e *Engine) Done() bool { return e.done }

// Stopped reports whether the run ended through Stop.
func (e *Engine) Stopped() bool { return e.stopped }

// State returns a step's current state.
func (e *Engine) State(stepID string) (schedule.StepState, bool) {
	i, ok := e.graph.Index(stepID)
	if !ok {
		return "", false
	}
	return e.steps[i].state, true
}

// States returns every step's current state.
func (e *Engine) States() map[string]schedule.StepState {
	out := make(map[string]schedule.StepState, len(e.steps)-1)
	for _, sr := range e.steps[1:] {
		out[sr.step.ID] = sr.state
	}
	return out
}

// Blocked returns the IDs of steps waiting for admission, in definition order.
func (e *Engine) Blocked() []string {
	idx := slices.Sorted(maps.Keys(e.blocked))
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = e.steps[i].step.ID
	}
	return out
}

// Usage returns how many running steps hold resource.
func (e *Engine) Usage(resource string) int { return e.admit.Usage(resource) }

// UsageSnapshot returns the usage of every constrained resource.
func (e *Engine) UsageSnapshot() map[string]int { return e.admit.Snapshot() }

// Capacities returns the capacity table admission runs against.
func (e *Engine) Capacities() schedule.Capacities { return maps.Clone(e.caps) }

// Balances returns admission and release counts per admitted step.
func (e *Engine) Balances() map[string]Balance { return e.ledger.snapshot() }

// Outstanding returns steps currently holding an admission, sorted.
func (e *Engine) Outstanding() []string {
	out := e.ledger.outstanding()
	slices.Sort(out)
	return out
}

// NextEventAt returns the time of the next pending event, if any.
func (e *Engine) NextEventAt() (time.Duration, bool) {
	p, ok := e.queue.peek()
	if !ok {
		return 0, false
	}
	return p.at, true
}
