package document

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Program is the on-disk program document.
type Program struct {
	ProgramID           string        `yaml:"programId" json:"programId"`
	Name                string        `yaml:"name,omitempty" json:"name,omitempty"`
	Description         string        `yaml:"description,omitempty" json:"description,omitempty"`
	Version             string        `yaml:"version,omitempty" json:"version,omitempty"`
	EnvironmentType     string        `yaml:"environmentType,omitempty" json:"environmentType,omitempty"`
	Environment         string        `yaml:"environment,omitempty" json:"environment,omitempty"`
	StartTrigger        *ProgramStart `yaml:"startTrigger,omitempty" json:"startTrigger,omitempty"`
	Actors              int           `yaml:"actors,omitempty" json:"actors,omitempty"`
	Tracks              []Track       `yaml:"tracks" json:"tracks"`
	ResourceConstraints []Constraint  `yaml:"resourceConstraints,omitempty" json:"resourceConstraints,omitempty"`
}

// ProgramStart is the program-level start trigger.
type ProgramStart struct {
	Type          string     `yaml:"type" json:"type"`
	OffsetSeconds *TimeValue `yaml:"offsetSeconds,omitempty" json:"offsetSeconds,omitempty"`
}

// Track is a concurrent lane of steps.
type Track struct {
	TrackID string `yaml:"trackId" json:"trackId"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Steps   []Step `yaml:"steps" json:"steps"`
}

// Step is one schedulable step.
type Step struct {
	StepID       string   `yaml:"stepId" json:"stepId"`
	Name         string   `yaml:"name,omitempty" json:"name,omitempty"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	StartTrigger *Trigger `yaml:"startTrigger,omitempty" json:"startTrigger,omitempty"`
	Duration     Duration `yaml:"duration" json:"duration"`
	Task         string   `yaml:"task,omitempty" json:"task,omitempty"`
	Tasks        []string `yaml:"tasks,omitempty" json:"tasks,omitempty"`
}

// Trigger types.
const (
	TriggerManual              = "manual"
	TriggerProgramStart        = "programStart"
	TriggerProgramStartOffset  = "programStartOffset"
	TriggerAfterStep           = "afterStep"
	TriggerAfterStepWithBuffer = "afterStepWithBuffer"
)

// Trigger is a step start trigger.
type Trigger struct {
	Type          string     `yaml:"type" json:"type"`
	StepID        string     `yaml:"stepId,omitempty" json:"stepId,omitempty"`
	OffsetSeconds *TimeValue `yaml:"offsetSeconds,omitempty" json:"offsetSeconds,omitempty"`
	BufferSeconds *TimeValue `yaml:"bufferSeconds,omitempty" json:"bufferSeconds,omitempty"`
	Event         string     `yaml:"event,omitempty" json:"event,omitempty"`
}

// Duration types.
const (
	DurationFixed    = "fixed"
	DurationVariable = "variable"
)

// Duration is either a bare time value (fixed) or a typed mapping.
type Duration struct {
	Type           string     `yaml:"type" json:"type"`
	Seconds        *TimeValue `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	MinSeconds     *TimeValue `yaml:"minSeconds,omitempty" json:"minSeconds,omitempty"`
	MaxSeconds     *TimeValue `yaml:"maxSeconds,omitempty" json:"maxSeconds,omitempty"`
	DefaultSeconds *TimeValue `yaml:"defaultSeconds,omitempty" json:"defaultSeconds,omitempty"`
	TriggerName    string     `yaml:"triggerName,omitempty" json:"triggerName,omitempty"`
}

// durationFields has Duration's fields without its methods.
type durationFields Duration

// UnmarshalYAML accepts a scalar time value or a mapping.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var t TimeValue
		if err := node.Decode(&t); err != nil {
			return err
		}
		*d = Duration{Type: DurationFixed, Seconds: &t}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: duration must be a time value or a mapping", node.Line)
	}
	var f durationFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	*d = Duration(f)
	return nil
}

// bare reports whether d encodes as a plain time value.
func (d Duration) bare() bool {
	return d.Type == DurationFixed && d.Seconds != nil && d.MinSeconds == nil &&
		d.MaxSeconds == nil && d.DefaultSeconds == nil && d.TriggerName == ""
}

// MarshalYAML writes fixed durations as a bare number of seconds.
func (d Duration) MarshalYAML() (any, error) {
	if d.bare() {
		return *d.Seconds, nil
	}
	return durationFields(d), nil
}

// MarshalJSON writes fixed durations as a bare number of seconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	if d.bare() {
		return d.Seconds.MarshalJSON()
	}
	return json.Marshal(durationFields(d))
}

// Constraint caps concurrent use of a task (resource).
type Constraint struct {
	Task          string `yaml:"task" json:"task"`
	MaxConcurrent int    `yaml:"maxConcurrent" json:"maxConcurrent"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
}
