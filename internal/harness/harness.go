package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cadence/internal/document"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/schedule"
	"github.com/roach88/cadence/internal/testutil"
)

// Harness executes scenario scripts against one engine.
type Harness struct {
	engine   *engine.Engine
	recorder *event.Recorder
	logger   *slog.Logger
}

// Run executes a scenario on a fresh engine and evaluates its assertions.
//
// A scenario that cannot be executed at all (unreadable or invalid program,
// invalid dependency graph) returns an error. Failed expectations are
// reported in the Result.
func Run(s *Scenario) (*Result, error) {
	data, err := s.programSource()
	if err != nil {
		return nil, err
	}
	p, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	return RunProgram(s, p)
}

// RunProgram executes a scenario's script and assertions against p,
// ignoring the scenario's own program source.
func RunProgram(s *Scenario, p *schedule.Program) (*Result, error) {
	runID := s.RunID
	if runID == "" {
		runID = DefaultRunID
	}

	rec := event.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []engine.EngineOption{
		engine.WithSink(rec),
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(testutil.NewFixedRunID(runID)),
	}
	if s.Capacities != nil {
		opts = append(opts, engine.WithCapacities(schedule.Capacities(s.Capacities)))
	}
	eng, err := engine.New(p, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	h := &Harness{engine: eng, recorder: rec, logger: logger}
	result := NewResult()
	for i, a := range s.Script {
		if err := h.apply(a); err != nil {
			result.AddError(fmt.Sprintf("script[%d] %s: %v", i, a.Do, err))
		}
	}

	result.Trace = rec.Events()
	result.States = eng.States()
	result.Status = status(eng)
	result.Now = eng.Now()

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) apply(a Action) error {
	switch a.Do {
	case DoStart:
		return h.engine.Start()
	case DoAdvance:
		d, err := document.ParseTime(a.By)
		if err != nil {
			return err
		}
		return h.engine.Advance(d)
	case DoSignal:
		got := h.engine.Signal(a.Step)
		if a.Expect != "" && got.String() != a.Expect {
			return fmt.Errorf("signal %s: expected %s, got %s", a.Step, a.Expect, got)
		}
		return nil
	case DoStop:
		h.engine.Stop()
		return nil
	default:
		return fmt.Errorf("unknown action %q", a.Do)
	}
}

func status(eng *engine.Engine) string {
	switch {
	case !eng.Started():
		return StatusPending
	case eng.Stopped():
		return StatusStopped
	case eng.Done():
		return StatusCompleted
	default:
		return StatusActive
	}
}
