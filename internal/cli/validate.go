package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ProgramFlags
}

// ValidationResult is the JSON payload of a successful validation.
type ValidationResult struct {
	Valid       bool           `json:"valid"`
	ProgramID   string         `json:"program_id"`
	Tracks      int            `json:"tracks"`
	Steps       int            `json:"steps"`
	Environment string         `json:"environment,omitempty"`
	Capacities  map[string]int `json:"capacities"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Validate a program document",
		Long: `Validate a program document (.json, .yaml or .yml).

Checks the document against the program schema, converts triggers and
durations, resolves the environment catalog when --db is given, and
verifies the step dependency graph has no cycles or dangling references.

Exit codes:
  0 - Program is valid
  1 - Program is invalid
  2 - Command error (missing file, catalog error)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}
	opts.ProgramFlags.register(cmd)

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	lp, err := loadProgram(cmd.Context(), f, path, opts.ProgramFlags)
	if err != nil {
		return err
	}

	p := lp.Program
	result := ValidationResult{
		Valid:       true,
		ProgramID:   p.ID,
		Tracks:      len(p.Tracks),
		Steps:       len(p.Steps()),
		Environment: p.Environment,
		Capacities:  p.Capacities(),
	}
	text := fmt.Sprintf("✓ %s valid (%d tracks, %d steps)\n", p.ID, result.Tracks, result.Steps)
	return f.Success(result, text)
}
