package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cadence/internal/schedule"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", ValidationError{
			Field:   "path",
			Message: fmt.Sprintf("unsupported document extension %q (want .json, .yaml or .yml)", filepath.Ext(path)),
			Code:    ErrCodeFormat,
		}
	}
}

// Option configures loading.
type Option func(*options)

type options struct {
	strict bool
}

// WithStrict requires every task used by a step to have a resource
// constraint, even when actors would supply a default.
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// Load reads and converts the program document at path.
// Validation problems are returned as ValidationErrors.
func Load(path string, opts ...Option) (*schedule.Program, error) {
	if _, err := FormatFromPath(path); err != nil {
		return nil, ValidationErrors{err.(ValidationError)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ValidationErrors{{Field: "path", Message: err.Error(), Code: ErrCodeRead}}
	}
	return Parse(data, opts...)
}

// Parse converts a YAML or JSON document. JSON is parsed as YAML.
func Parse(data []byte, opts ...Option) (*schedule.Program, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{parseError(err)}
	}
	if raw == nil {
		return nil, ValidationErrors{{Field: "document", Message: "document is empty", Code: ErrCodeParse}}
	}
	if errs := checkSchema(raw); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	var doc Program
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, ValidationErrors{parseError(err)}
	}

	p, errs := convert(&doc, o)
	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// Validate reports every problem in a document without returning the program.
func Validate(data []byte, opts ...Option) []ValidationError {
	_, err := Parse(data, opts...)
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	if err != nil {
		return []ValidationError{{Field: "document", Message: err.Error(), Code: ErrCodeParse}}
	}
	return nil
}

func parseError(err error) ValidationError {
	var te *yaml.TypeError
	if errors.As(err, &te) {
		return ValidationError{Field: "document", Message: strings.Join(te.Errors, "; "), Code: ErrCodeParse}
	}
	return ValidationError{Field: "document", Message: err.Error(), Code: ErrCodeParse}
}

// convert builds the schedule model from a schema-valid document.
func convert(doc *Program, o options) (*schedule.Program, ValidationErrors) {
	var errs ValidationErrors

	p := &schedule.Program{
		ID:              doc.ProgramID,
		Name:            doc.Name,
		Description:     doc.Description,
		EnvironmentType: doc.EnvironmentType,
		Environment:     doc.Environment,
		Version:         doc.Version,
		StartTrigger:    schedule.ProgramTrigger{Mode: schedule.StartAutomatic},
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Version == "" {
		p.Version = schedule.SchemaVersion
	}
	if st := doc.StartTrigger; st != nil {
		p.StartTrigger = schedule.ProgramTrigger{
			Mode:   schedule.StartMode(st.Type),
			Offset: timeOf(st.OffsetSeconds),
		}
	}

	var used []string
	for ti, tr := range doc.Tracks {
		track := schedule.Track{ID: tr.TrackID, Name: tr.Name}
		if track.Name == "" {
			track.Name = track.ID
		}
		for si, st := range tr.Steps {
			field := fmt.Sprintf("tracks.%d.steps.%d", ti, si)
			step := schedule.Step{
				ID:          st.StepID,
				Name:        st.Name,
				Description: st.Description,
			}
			if step.Name == "" {
				step.Name = step.ID
			}

			trig, err := convertTrigger(st.StartTrigger)
			if err != nil {
				err.Field = field + ".startTrigger" + err.Field
				errs = append(errs, *err)
			}
			step.Trigger = trig

			dur, err := convertDuration(st.Duration)
			if err != nil {
				err.Field = field + ".duration" + err.Field
				errs = append(errs, *err)
			}
			step.Duration = dur

			step.Resources = stepResources(st)
			for _, r := range step.Resources {
				if !slices.Contains(used, r) {
					used = append(used, r)
				}
			}
			track.Steps = append(track.Steps, step)
		}
		p.Tracks = append(p.Tracks, track)
	}

	for _, c := range doc.ResourceConstraints {
		p.Constraints = append(p.Constraints, schedule.ResourceConstraint{
			Resource:      c.Task,
			MaxConcurrent: c.MaxConcurrent,
			Description:   c.Description,
		})
	}

	caps := p.Capacities()
	for _, r := range used {
		if _, ok := caps[r]; ok {
			continue
		}
		switch {
		case o.strict:
			errs = append(errs, ValidationError{
				Field:   "resourceConstraints",
				Message: fmt.Sprintf("task %q is used in steps but not defined in resourceConstraints", r),
				Code:    ErrCodeUndefinedTask,
			})
		case doc.Actors > 0:
			p.Constraints = append(p.Constraints, schedule.ResourceConstraint{
				Resource:      r,
				MaxConcurrent: doc.Actors,
				Description:   "default from actors",
			})
		}
	}

	return p, errs
}

func convertTrigger(t *Trigger) (schedule.Trigger, *ValidationError) {
	if t == nil {
		return schedule.ProgramStart{}, nil
	}
	offset := timeOf(t.OffsetSeconds)

	switch t.Type {
	case TriggerManual:
		return schedule.Manual{}, nil
	case TriggerProgramStart:
		if offset > 0 {
			return schedule.AtOffset{Offset: offset}, nil
		}
		return schedule.ProgramStart{}, nil
	case TriggerProgramStartOffset:
		return schedule.AtOffset{Offset: offset}, nil
	case TriggerAfterStep, TriggerAfterStepWithBuffer:
		if t.StepID == "" {
			return schedule.Manual{}, &ValidationError{
				Field:   ".stepId",
				Message: fmt.Sprintf("%s trigger requires stepId", t.Type),
				Code:    ErrCodeMissingReference,
			}
		}
		if t.Type == TriggerAfterStepWithBuffer {
			offset += timeOf(t.BufferSeconds)
		}
		return schedule.AfterStep{StepID: t.StepID, Offset: offset}, nil
	default:
		return schedule.Manual{}, &ValidationError{
			Field:   ".type",
			Message: fmt.Sprintf("unknown trigger type %q", t.Type),
			Code:    ErrCodeInvalidTrigger,
		}
	}
}

func convertDuration(d Duration) (schedule.Duration, *ValidationError) {
	switch d.Type {
	case DurationFixed:
		return schedule.Fixed{D: timeOf(d.Seconds)}, nil
	case DurationVariable:
		lo, hi := timeOf(d.MinSeconds), timeOf(d.MaxSeconds)
		if lo > hi {
			return schedule.Fixed{D: hi}, &ValidationError{
				Field:   ".minSeconds",
				Message: fmt.Sprintf("minSeconds (%s) exceeds maxSeconds (%s)", FormatTime(lo), FormatTime(hi)),
				Code:    ErrCodeInvalidTime,
			}
		}
		return schedule.Variable{Min: lo, Max: hi}, nil
	default:
		return schedule.Fixed{}, &ValidationError{
			Field:   ".type",
			Message: fmt.Sprintf("unknown duration type %q", d.Type),
			Code:    ErrCodeInvalidTime,
		}
	}
}

// stepResources merges task and tasks, keeping first occurrences.
func stepResources(st Step) []string {
	var out []string
	if st.Task != "" {
		out = append(out, st.Task)
	}
	for _, t := range st.Tasks {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func timeOf(t *TimeValue) time.Duration {
	if t == nil {
		return 0
	}
	return t.Duration()
}
