package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cadence/internal/document"
	"github.com/roach88/cadence/internal/schedule"
)

// Environment is a stored environment definition.
type Environment struct {
	ID          string
	Name        string
	Type        string
	Description string
	Constraints []schedule.ResourceConstraint

	// Source is the file the environment was imported from, if any.
	Source string
}

// Capacities returns the environment's capacity table.
func (e *Environment) Capacities() schedule.Capacities {
	caps := make(schedule.Capacities, len(e.Constraints))
	for _, c := range e.Constraints {
		caps[c.Resource] = c.MaxConcurrent
	}
	return caps
}

// environmentDoc is the on-disk environment document. Unknown fields
// (icons, layout hints) are ignored.
type environmentDoc struct {
	EnvironmentID       string                `yaml:"environmentId"`
	Name                string                `yaml:"name"`
	Type                string                `yaml:"type"`
	Description         string                `yaml:"description"`
	ResourceConstraints []document.Constraint `yaml:"resourceConstraints"`
}

// ParseEnvironment decodes a YAML or JSON environment document.
func ParseEnvironment(data []byte) (*Environment, error) {
	var doc environmentDoc
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if doc.EnvironmentID == "" {
		return nil, errors.New("parse environment: missing environmentId")
	}
	if doc.ResourceConstraints == nil {
		return nil, fmt.Errorf("parse environment %s: missing resourceConstraints", doc.EnvironmentID)
	}

	env := &Environment{
		ID:          doc.EnvironmentID,
		Name:        doc.Name,
		Type:        doc.Type,
		Description: doc.Description,
	}
	if env.Name == "" {
		env.Name = env.ID
	}
	seen := make(map[string]bool)
	for i, c := range doc.ResourceConstraints {
		switch {
		case c.Task == "":
			return nil, fmt.Errorf("parse environment %s: resourceConstraints[%d]: missing task", env.ID, i)
		case c.MaxConcurrent < 0:
			return nil, fmt.Errorf("parse environment %s: resourceConstraints[%d]: negative maxConcurrent", env.ID, i)
		case seen[c.Task]:
			return nil, fmt.Errorf("parse environment %s: duplicate constraint for task %q", env.ID, c.Task)
		}
		seen[c.Task] = true
		env.Constraints = append(env.Constraints, schedule.ResourceConstraint{
			Resource:      c.Task,
			MaxConcurrent: c.MaxConcurrent,
			Description:   c.Description,
		})
	}
	return env, nil
}

// LoadEnvironment reads an environment document from disk.
func LoadEnvironment(path string) (*Environment, error) {
	if _, err := document.FormatFromPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	env, err := ParseEnvironment(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	env.Source = path
	return env, nil
}

// ErrTypeMismatch is returned when a program is merged with an environment
// of a different type.
var ErrTypeMismatch = errors.New("environment type does not match program")

// MergeConstraints returns a copy of p whose constraints are env's with
// p's own constraints overriding per resource. Environment order is kept;
// program-only constraints follow in program order. A nil env returns an
// unchanged copy.
func MergeConstraints(p *schedule.Program, env *Environment) (*schedule.Program, error) {
	out := p.Clone()
	if env == nil {
		return out, nil
	}
	if p.EnvironmentType != "" && env.Type != "" && p.EnvironmentType != env.Type {
		return nil, fmt.Errorf("%w: program %s wants %q, environment %s is %q",
			ErrTypeMismatch, p.ID, p.EnvironmentType, env.ID, env.Type)
	}

	own := make(map[string]int, len(p.Constraints))
	for i, c := range p.Constraints {
		own[c.Resource] = i
	}
	used := make(map[string]bool)
	merged := make([]schedule.ResourceConstraint, 0, len(env.Constraints)+len(p.Constraints))
	for _, c := range env.Constraints {
		if i, ok := own[c.Resource]; ok {
			merged = append(merged, p.Constraints[i])
			used[c.Resource] = true
			continue
		}
		merged = append(merged, c)
	}
	for _, c := range p.Constraints {
		if !used[c.Resource] {
			merged = append(merged, c)
		}
	}
	out.Constraints = merged
	if out.Environment == "" {
		out.Environment = env.ID
	}
	return out, nil
}
