package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/schedule"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	ProgramFlags
	AutoSignal bool
	Events     string

	// RunIDs overrides the run ID generator (for testing).
	RunIDs engine.RunIDGenerator
}

// SimulateResult is the JSON payload of the simulate command.
type SimulateResult struct {
	RunID    string                        `json:"run_id"`
	Status   string                        `json:"status"`
	Makespan string                        `json:"makespan"`
	States   map[string]schedule.StepState `json:"states"`
	Stalled  []string                      `json:"stalled,omitempty"`
	Events   []event.Event                 `json:"events"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <program>",
		Short: "Run a program in virtual time",
		Long: `Run a program to completion in virtual time, jumping straight
from one event to the next, and print the event stream.

Manual steps need a signal to start. With --auto-signal every waiting
manual step is signalled whenever nothing else is due; without it the run
is stopped when it stalls on manual steps. Variable-duration steps run to
their maximum.

Exit codes:
  0 - Run completed
  1 - Run stalled, or the program is invalid
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}
	opts.ProgramFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.AutoSignal, "auto-signal", false, "signal manual steps as soon as nothing else is due")
	cmd.Flags().StringVar(&opts.Events, "events", "", "also write events as JSON lines to this file")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	lp, err := loadProgram(cmd.Context(), f, path, opts.ProgramFlags)
	if err != nil {
		return err
	}

	rec := event.NewRecorder()
	sinks := []event.Sink{rec}
	var jsonl *event.JSONLWriter
	if opts.Events != "" {
		file, err := os.Create(opts.Events)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFile, "create events file", err, nil)
		}
		defer file.Close()
		jsonl = event.NewJSONLWriter(file)
		sinks = append(sinks, jsonl)
	}

	engOpts := []engine.EngineOption{
		engine.WithSink(event.Multi(sinks...)),
		engine.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
	}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng, err := engine.New(lp.Program, lp.Graph, engOpts...)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGraph, "build engine", err, nil)
	}

	stalled, err := simulate(eng, opts.AutoSignal)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGeneric, "simulate", err, nil)
	}
	if jsonl != nil {
		if err := jsonl.Err(); err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFile, "write events", err, nil)
		}
	}

	result := SimulateResult{
		RunID:    eng.RunID(),
		Status:   "completed",
		Makespan: eng.Now().String(),
		States:   eng.States(),
		Stalled:  stalled,
		Events:   rec.Events(),
	}
	if len(stalled) > 0 {
		result.Status = "stalled"
	}

	var text strings.Builder
	for _, ev := range result.Events {
		fmt.Fprintln(&text, ev.String())
	}
	if len(stalled) > 0 {
		fmt.Fprintf(&text, "stalled at %s: %s\n", result.Makespan, strings.Join(stalled, ", "))
	} else {
		fmt.Fprintf(&text, "completed in %s (%d events)\n", result.Makespan, len(result.Events))
	}

	if err := f.Success(result, text.String()); err != nil {
		return err
	}
	if len(stalled) > 0 {
		return NewExitError(ExitFailure, "run stalled")
	}
	return nil
}

// simulate drives eng from start to finish. When no event is pending the
// waiting manual steps are signalled (autoSignal) or the run is stopped
// and their IDs returned. Steps blocked forever (a zero capacity) also
// stop the run.
func simulate(eng *engine.Engine, autoSignal bool) ([]string, error) {
	if err := eng.Start(); err != nil {
		return nil, err
	}
	for !eng.Done() {
		if next, ok := eng.NextEventAt(); ok {
			if err := eng.Advance(next - eng.Now()); err != nil {
				return nil, err
			}
			continue
		}

		waiting := waitingManual(eng)
		if len(waiting) == 0 {
			// Only steps blocked on a resource nobody will release remain.
			blocked := eng.Blocked()
			if len(blocked) == 0 {
				return nil, fmt.Errorf("run at %s has no pending events", eng.Now())
			}
			eng.Stop()
			return blocked, nil
		}
		if !autoSignal {
			eng.Stop()
			return waiting, nil
		}
		for _, id := range waiting {
			eng.Signal(id)
		}
	}
	return nil, nil
}

// waitingManual returns the manual steps still waiting for a signal, in ID order.
func waitingManual(eng *engine.Engine) []string {
	var out []string
	for id, state := range eng.States() {
		if state != schedule.StateWaiting {
			continue
		}
		s, ok := eng.Program().Step(id)
		if ok && s.Trigger.Kind() == schedule.KindManual {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
