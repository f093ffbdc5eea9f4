package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/catalog"
	"github.com/roach88/cadence/internal/document"
	"github.com/roach88/cadence/internal/graph"
	"github.com/roach88/cadence/internal/schedule"
)

// ProgramFlags are the program loading flags shared by every command that
// takes a program document.
type ProgramFlags struct {
	Database string // environment catalog; empty disables environment lookup
	Strict   bool   // every used task must have a constraint
}

func (pf *ProgramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&pf.Database, "db", "", "environment catalog database")
	cmd.Flags().BoolVar(&pf.Strict, "strict", false, "require a resource constraint for every task")
}

// loadedProgram is a program ready for execution or planning.
type loadedProgram struct {
	Program *schedule.Program
	Graph   *graph.Graph
}

// loadProgram loads, resolves and builds a program, reporting any failure
// through f. The returned error is an ExitError.
func loadProgram(ctx context.Context, f *OutputFormatter, path string, pf ProgramFlags) (*loadedProgram, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("program not found: %s", path), nil, nil)
	}

	var opts []document.Option
	if pf.Strict {
		opts = append(opts, document.WithStrict())
	}
	p, err := document.Load(path, opts...)
	if err != nil {
		var verrs document.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, outputValidationErrors(f, path, verrs)
		}
		return nil, f.fail(ExitCommandError, ErrCodeGeneric, "load program", err, nil)
	}
	f.VerboseLog("Loaded program %s: %d tracks, %d steps", p.ID, len(p.Tracks), len(p.Steps()))

	if pf.Database != "" {
		cat, err := catalog.Open(pf.Database)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeCatalog, "open catalog", err, nil)
		}
		defer cat.Close()

		resolved, err := cat.Resolve(ctx, p)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeCatalog, "resolve environment", err, nil)
		}
		if resolved.Environment != "" {
			f.VerboseLog("Using environment %s", resolved.Environment)
		}
		p = resolved
	}

	g, err := graph.Build(p)
	if err != nil {
		code := ErrCodeGraph
		var be *graph.BuildError
		if errors.As(err, &be) {
			code = string(be.Code)
		}
		return nil, f.fail(ExitFailure, code, "invalid program", err, nil)
	}
	return &loadedProgram{Program: p, Graph: g}, nil
}

// outputValidationErrors reports document errors and returns an ExitFailure.
func outputValidationErrors(f *OutputFormatter, path string, verrs document.ValidationErrors) error {
	if f.JSON() {
		if err := f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    ErrCodeValidation,
				Message: fmt.Sprintf("%d validation error(s)", len(verrs)),
				Details: []document.ValidationError(verrs),
			},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ %s: %d validation error(s)\n", path, len(verrs))
		for _, e := range verrs {
			fmt.Fprintf(f.Writer, "  %s\n", e.Error())
		}
	}
	return WrapExitError(ExitFailure, "invalid program", verrs)
}
