package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/document"
	"github.com/roach88/cadence/internal/planner"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	ProgramFlags
	Output string
	Slack  time.Duration
	Causal bool
}

// PlanResult is the JSON payload of the plan command.
type PlanResult struct {
	ProgramID        string            `json:"program_id"`
	OriginalMakespan string            `json:"original_makespan"`
	NewMakespan      string            `json:"new_makespan"`
	MakespanDelta    string            `json:"makespan_delta"`
	OriginalPeak     map[string]int    `json:"original_peak"`
	NewPeak          map[string]int    `json:"new_peak"`
	Improved         bool              `json:"improved"`
	Shifted          map[string]string `json:"shifted,omitempty"`
	Unplanned        []string          `json:"unplanned,omitempty"`
	Violations       []string          `json:"violations,omitempty"`
	Bottlenecks      []string          `json:"bottlenecks,omitempty"`
	Output           string            `json:"output,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <program>",
		Short: "Re-plan start offsets to reduce resource contention",
		Long: `Compute revised start offsets so that steps sharing a resource
stay within its capacity, and report the change in peak usage and makespan.

Manual steps and everything downstream of them are left unchanged.
With -o the revised program is written as a document; the format follows
the file extension.

Examples:
  cadence plan dinner.yaml
  cadence plan dinner.yaml --slack 10m -o dinner.planned.yaml
  cadence plan dinner.yaml --causal --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}
	opts.ProgramFlags.register(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the revised program to this file")
	cmd.Flags().DurationVar(&opts.Slack, "slack", 0, "allowed makespan growth beyond the original")
	cmd.Flags().BoolVar(&opts.Causal, "causal", false, "keep afterStep triggers, rewriting only their offsets")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	lp, err := loadProgram(cmd.Context(), f, path, opts.ProgramFlags)
	if err != nil {
		return err
	}

	planOpts := []planner.Option{
		planner.WithSlack(opts.Slack),
		planner.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
	}
	if opts.Causal {
		planOpts = append(planOpts, planner.WithCausalTriggers())
	}
	res, err := planner.Plan(lp.Program, lp.Graph, nil, planOpts...)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGraph, "plan", err, nil)
	}

	if opts.Output != "" {
		format, err := document.FormatFromPath(opts.Output)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFile, "write plan", err, nil)
		}
		data, err := document.Encode(res.Program, format)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFile, "encode plan", err, nil)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFile, "write plan", err, nil)
		}
		f.VerboseLog("Wrote %s", opts.Output)
	}

	result := newPlanResult(lp.Program.ID, res.Report)
	result.Output = opts.Output

	var text strings.Builder
	fmt.Fprintf(&text, "plan %s\n", lp.Program.ID)
	text.WriteString(res.Report.String())
	if opts.Output != "" {
		fmt.Fprintf(&text, "wrote %s\n", opts.Output)
	}
	return f.Success(result, text.String())
}

func newPlanResult(id string, r planner.Report) PlanResult {
	out := PlanResult{
		ProgramID:        id,
		OriginalMakespan: r.OriginalMakespan.String(),
		NewMakespan:      r.NewMakespan.String(),
		MakespanDelta:    r.MakespanDelta.String(),
		OriginalPeak:     r.OriginalPeak,
		NewPeak:          r.NewPeak,
		Improved:         r.Improved(),
		Unplanned:        r.Unplanned,
	}
	if len(r.Shifted) > 0 {
		out.Shifted = make(map[string]string, len(r.Shifted))
		for step, d := range r.Shifted {
			out.Shifted[step] = d.String()
		}
	}
	for _, v := range r.Violations {
		out.Violations = append(out.Violations, v.Error())
	}
	for _, b := range r.Bottlenecks {
		out.Bottlenecks = append(out.Bottlenecks,
			fmt.Sprintf("%s [%s, %s): %d/%d", b.Resource, b.Start, b.End, b.Usage, b.Capacity))
	}
	return out
}
