package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cadence/internal/document"
	"github.com/roach88/cadence/internal/schedule"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - initial schema
// 1 - index on environments.type
const currentSchemaVersion = 1

// ErrNotFound is returned when no environment matches.
var ErrNotFound = errors.New("environment not found")

// Catalog is a SQLite-backed environment catalog.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database at path and applies pragmas
// and migrations. Use ":memory:" for a throwaway catalog.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect catalog: %w", err)
	}

	// One connection: SQLite has a single writer, and :memory: databases
	// are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_environments_type ON environments(type, id)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Import stores env, replacing any environment with the same ID.
func (c *Catalog) Import(ctx context.Context, env *Environment) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import %s: %w", env.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO environments (id, name, type, description, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			description = excluded.description,
			source = excluded.source
	`, env.ID, env.Name, env.Type, env.Description, env.Source)
	if err != nil {
		return fmt.Errorf("import %s: %w", env.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM constraints WHERE environment_id = ?`, env.ID); err != nil {
		return fmt.Errorf("import %s: %w", env.ID, err)
	}
	for i, rc := range env.Constraints {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO constraints (environment_id, position, task, max_concurrent, description)
			VALUES (?, ?, ?, ?, ?)
		`, env.ID, i, rc.Resource, rc.MaxConcurrent, rc.Description)
		if err != nil {
			return fmt.Errorf("import %s: constraint %s: %w", env.ID, rc.Resource, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import %s: %w", env.ID, err)
	}
	return nil
}

// ImportDir imports every .json, .yaml and .yml file in dir (not
// recursive), in file name order. It returns the imported IDs and stops
// at the first invalid file.
func (c *Catalog) ImportDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("import dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := document.FormatFromPath(e.Name()); err != nil {
			continue
		}
		env, err := LoadEnvironment(filepath.Join(dir, e.Name()))
		if err != nil {
			return ids, err
		}
		if err := c.Import(ctx, env); err != nil {
			return ids, err
		}
		ids = append(ids, env.ID)
	}
	return ids, nil
}

// Get returns the environment with the given ID, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*Environment, error) {
	env := &Environment{}
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, type, description, source FROM environments WHERE id = ?
	`, id).Scan(&env.ID, &env.Name, &env.Type, &env.Description, &env.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if err := c.loadConstraints(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Catalog) loadConstraints(ctx context.Context, env *Environment) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT task, max_concurrent, description FROM constraints
		WHERE environment_id = ? ORDER BY position
	`, env.ID)
	if err != nil {
		return fmt.Errorf("constraints %s: %w", env.ID, err)
	}
	defer rows.Close()

	env.Constraints = nil
	for rows.Next() {
		var rc schedule.ResourceConstraint
		if err := rows.Scan(&rc.Resource, &rc.MaxConcurrent, &rc.Description); err != nil {
			return fmt.Errorf("constraints %s: %w", env.ID, err)
		}
		env.Constraints = append(env.Constraints, rc)
	}
	return rows.Err()
}

// List returns every environment ordered by ID, optionally filtered by type
// (empty matches all). Constraints are included.
func (c *Catalog) List(ctx context.Context, envType string) ([]*Environment, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, type, description, source FROM environments
		WHERE ? = '' OR type = ?
		ORDER BY id
	`, envType, envType)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}

	var out []*Environment
	for rows.Next() {
		env := &Environment{}
		if err := rows.Scan(&env.ID, &env.Name, &env.Type, &env.Description, &env.Source); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list environments: %w", err)
		}
		out = append(out, env)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}

	// Constraints are read after the cursor closes; the pool has one connection.
	for _, env := range out {
		if err := c.loadConstraints(ctx, env); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DefaultFor picks the environment for a type: the first, by ID, whose ID
// contains "standard" or "default", otherwise the first by ID.
func (c *Catalog) DefaultFor(ctx context.Context, envType string) (*Environment, error) {
	envs, err := c.List(ctx, envType)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, fmt.Errorf("%w: no environment of type %q", ErrNotFound, envType)
	}
	sort.SliceStable(envs, func(i, j int) bool {
		return preferred(envs[i].ID) && !preferred(envs[j].ID)
	})
	return envs[0], nil
}

func preferred(id string) bool {
	id = strings.ToLower(id)
	return strings.Contains(id, "standard") || strings.Contains(id, "default")
}

// Resolve merges p with its environment: the one it names, otherwise the
// default for its environment type. A program naming neither, or whose
// type has no environment, is returned as an unchanged copy.
func (c *Catalog) Resolve(ctx context.Context, p *schedule.Program) (*schedule.Program, error) {
	var (
		env *Environment
		err error
	)
	switch {
	case p.Environment != "":
		env, err = c.Get(ctx, p.Environment)
	case p.EnvironmentType != "":
		env, err = c.DefaultFor(ctx, p.EnvironmentType)
		if errors.Is(err, ErrNotFound) {
			return p.Clone(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	return MergeConstraints(p, env)
}
