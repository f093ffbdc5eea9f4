package cli

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob over file names without extension)
	Golden string // golden directory, defaults to <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Pass    bool     `json:"pass"`
	Updated bool     `json:"updated,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scripted scenarios against the engine",
		Long: `Run scenario files: each replays a script of start, advance,
signal and stop actions against a fresh engine, then checks its
assertions. When a golden file <name>.golden exists its trace must match
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  cadence test ./scenarios
  cadence test ./scenarios --filter "oven-*"
  cadence test ./scenarios --golden ./golden --update
  cadence test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", dir), nil, nil)
	}
	goldenDir := opts.Golden
	if goldenDir == "" {
		goldenDir = filepath.Join(dir, "golden")
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "find scenarios", err, nil)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenario(file, goldenDir, opts.Update)
		if !f.JSON() {
			printScenario(f.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.JSON() {
		if result.Failed > 0 {
			return f.fail(ExitFailure, ErrCodeScenario, fmt.Sprintf("%d scenario(s) failed", result.Failed), nil, result)
		}
		return f.Success(result, "")
	}

	w := f.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// findScenarioFiles returns the YAML files under dir, skipping the golden
// directory, in lexical order.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(d.Name(), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario executes one scenario file and checks it against its golden
// trace, if any.
func runScenario(file, goldenDir string, update bool) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	s, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = s.Name

	result, err := harness.Run(s)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Errors = result.Errors

	trace, err := harness.TraceJSONL(result.Trace)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("encode trace: %v", err))
		return sr
	}

	goldenPath := filepath.Join(goldenDir, s.Name+".golden")
	switch {
	case update:
		if err := writeGolden(goldenPath, trace); err != nil {
			sr.Errors = append(sr.Errors, err.Error())
		} else {
			sr.Updated = true
		}
	default:
		want, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// assertions only
		case err != nil:
			sr.Errors = append(sr.Errors, fmt.Sprintf("read golden file: %v", err))
		case !bytes.Equal(want, trace):
			sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}

func printScenario(w io.Writer, sr ScenarioResult) {
	switch {
	case sr.Pass && sr.Updated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
	case sr.Pass:
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}
