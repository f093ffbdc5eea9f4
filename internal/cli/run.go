package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/driver"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/event"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ProgramFlags
	Scale float64
	Tick  time.Duration

	// Now overrides the wall clock and RunIDs the run ID generator (for testing).
	Now    func() time.Time
	RunIDs engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a program against the wall clock",
		Long: `Run a program in real time, printing events as they happen.

Commands are read from stdin, one per line:
  start            start a program whose start trigger is manual
  signal <step>    trigger a manual step or finish a variable-duration step
  abort <step>     cancel a running step and free its resources
  complete <step>  finish a running step now
  faster, +        double the time scale
  slower, -        halve the time scale
  scale <factor>   set the time scale (0.1 to 100)
  stop             cancel the run

--scale speeds the clock up: with --scale 60 one second of wall time is
one minute of program time. The command exits when the run completes or
is stopped, or on Ctrl-C.

Examples:
  cadence run dinner.yaml
  cadence run dinner.yaml --scale 60 --tick 50ms --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}
	opts.ProgramFlags.register(cmd)
	cmd.Flags().Float64Var(&opts.Scale, "scale", 1, "program seconds per wall-clock second")
	cmd.Flags().DurationVar(&opts.Tick, "tick", 100*time.Millisecond, "wall-clock interval between engine advances")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	lp, err := loadProgram(cmd.Context(), f, path, opts.ProgramFlags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var sink event.Sink
	if f.JSON() {
		sink = event.NewJSONLWriter(out)
	} else {
		sink = event.SinkFunc(func(ev event.Event) {
			fmt.Fprintln(out, ev.String())
		})
	}

	engOpts := []engine.EngineOption{engine.WithSink(sink), engine.WithLogger(logger)}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng, err := engine.New(lp.Program, lp.Graph, engOpts...)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGraph, "build engine", err, nil)
	}

	drvOpts := []driver.Option{driver.WithLogger(logger)}
	if opts.Now != nil {
		drvOpts = append(drvOpts, driver.WithNow(opts.Now))
	}
	drv, err := driver.New(eng, opts.Scale, drvOpts...)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "invalid flags", err, nil)
	}

	ctx := cmd.Context()
	go readCommands(ctx, cmd.InOrStdin(), drv, f)

	f.VerboseLog("Running %s at scale %g (run %s)", lp.Program.ID, opts.Scale, eng.RunID())
	err = drv.Run(ctx, opts.Tick)
	switch {
	case errors.Is(err, context.Canceled):
		drv.Stop()
		f.VerboseLog("Interrupted")
		return nil
	case err != nil:
		return WrapExitError(ExitFailure, "run", err)
	}
	return nil
}

// readCommands forwards stdin commands to the driver until EOF or ctx ends.
func readCommands(ctx context.Context, in io.Reader, drv *driver.Driver, f *OutputFormatter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if msg := applyCommand(drv, scanner.Text()); msg != "" {
			f.VerboseLog("%s", msg)
		}
	}
}

// applyCommand executes one command line and returns a diagnostic, if any.
func applyCommand(drv *driver.Driver, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "start":
		if err := drv.Start(); err != nil {
			return fmt.Sprintf("start: %v", err)
		}
		return ""
	case "signal":
		if len(fields) != 2 {
			return "usage: signal <step>"
		}
		return fmt.Sprintf("signal %s: %s", fields[1], drv.Signal(fields[1]))
	case "abort", "complete":
		if len(fields) != 2 {
			return fmt.Sprintf("usage: %s <step>", fields[0])
		}
		apply := drv.Abort
		if fields[0] == "complete" {
			apply = drv.Complete
		}
		if !apply(fields[1]) {
			return fmt.Sprintf("%s %s: step is not running", fields[0], fields[1])
		}
		return ""
	case "faster", "+":
		return setScale(drv, drv.Scale()*2)
	case "slower", "-":
		return setScale(drv, drv.Scale()/2)
	case "scale":
		if len(fields) != 2 {
			return "usage: scale <factor>"
		}
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || math.IsNaN(f) {
			return "usage: scale <factor>"
		}
		return setScale(drv, f)
	case "stop":
		if !drv.Stop() {
			return "stop: run is not active"
		}
		return ""
	default:
		return fmt.Sprintf("unknown command %q (want start, signal, abort, complete, faster, slower, scale or stop)", fields[0])
	}
}

func setScale(drv *driver.Driver, scale float64) string {
	applied, err := drv.SetScale(scale)
	if err != nil {
		return fmt.Sprintf("scale: %v", err)
	}
	return fmt.Sprintf("scale %gx", applied)
}
