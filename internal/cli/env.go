package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/catalog"
	"github.com/roach88/cadence/internal/schedule"
)

// EnvOptions holds flags shared by the env subcommands.
type EnvOptions struct {
	*RootOptions
	Database string
	Type     string
}

// EnvironmentInfo is the JSON view of a stored environment.
type EnvironmentInfo struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Source      string              `json:"source,omitempty"`
	Capacities  schedule.Capacities `json:"capacities"`
}

// ImportResult is the JSON payload of env import.
type ImportResult struct {
	Imported []string `json:"imported"`
}

// NewEnvCommand creates the env command group.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnvOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the environment catalog",
		Long: `Manage the environment catalog: a SQLite database of named
environments, each a set of resource capacities. Programs name an
environment (or an environment type) and take its capacities when run
with --db.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "cadence.db", "environment catalog database")

	cmd.AddCommand(newEnvImportCommand(opts))
	cmd.AddCommand(newEnvListCommand(opts))
	cmd.AddCommand(newEnvShowCommand(opts))
	return cmd
}

func newEnvImportCommand(opts *EnvOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-or-dir>",
		Short: "Import environment documents",
		Long: `Import one environment document, or every .yaml, .yml and .json
file in a directory. Re-importing an environment replaces it.

Examples:
  cadence env import ./environments --db kitchen.db
  cadence env import home-kitchen.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvImport(opts, args[0], cmd)
		},
	}
}

func newEnvListCommand(opts *EnvOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored environments",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvList(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "", "only list environments of this type")
	return cmd
}

func newEnvShowCommand(opts *EnvOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one environment",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvShow(opts, args[0], cmd)
		},
	}
}

func openCatalog(f *OutputFormatter, path string) (*catalog.Catalog, error) {
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeCatalog, "open catalog", err, nil)
	}
	return cat, nil
}

func runEnvImport(opts *EnvOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("not found: %s", path), nil, nil)
	}

	cat, err := openCatalog(f, opts.Database)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := cmd.Context()
	var ids []string
	if info.IsDir() {
		ids, err = cat.ImportDir(ctx, path)
	} else {
		var env *catalog.Environment
		env, err = catalog.LoadEnvironment(path)
		if err == nil {
			err = cat.Import(ctx, env)
		}
		if err == nil {
			ids = []string{env.ID}
		}
	}
	if err != nil {
		return f.fail(ExitFailure, ErrCodeCatalog, "import", err, ImportResult{Imported: ids})
	}

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "✓ %s\n", id)
	}
	fmt.Fprintf(&b, "imported %d environment(s) into %s\n", len(ids), opts.Database)
	return f.Success(ImportResult{Imported: ids}, b.String())
}

func runEnvList(opts *EnvOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cat, err := openCatalog(f, opts.Database)
	if err != nil {
		return err
	}
	defer cat.Close()

	envs, err := cat.List(cmd.Context(), opts.Type)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeCatalog, "list", err, nil)
	}

	infos := make([]EnvironmentInfo, 0, len(envs))
	var b strings.Builder
	for _, env := range envs {
		infos = append(infos, environmentInfo(env))
		fmt.Fprintf(&b, "%-24s %-16s %d resource(s)\n", env.ID, env.Type, len(env.Constraints))
	}
	if len(envs) == 0 {
		b.WriteString("No environments found.\n")
	}
	return f.Success(infos, b.String())
}

func runEnvShow(opts *EnvOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cat, err := openCatalog(f, opts.Database)
	if err != nil {
		return err
	}
	defer cat.Close()

	env, err := cat.Get(cmd.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		return f.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("environment %q not found", id), nil, nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeCatalog, "show", err, nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", env.Name, env.ID)
	if env.Type != "" {
		fmt.Fprintf(&b, "type: %s\n", env.Type)
	}
	for _, c := range env.Constraints {
		fmt.Fprintf(&b, "  %-20s %d", c.Resource, c.MaxConcurrent)
		if c.Description != "" {
			fmt.Fprintf(&b, "  %s", c.Description)
		}
		b.WriteString("\n")
	}
	return f.Success(environmentInfo(env), b.String())
}

func environmentInfo(env *catalog.Environment) EnvironmentInfo {
	return EnvironmentInfo{
		ID:          env.ID,
		Name:        env.Name,
		Type:        env.Type,
		Description: env.Description,
		Source:      env.Source,
		Capacities:  env.Capacities(),
	}
}
