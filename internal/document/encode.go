package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cadence/internal/schedule"
)

// FromProgram builds the document form of p. AtOffset triggers are written
// as programStartOffset and AfterStep as afterStep; each step's resources
// become its tasks.
func FromProgram(p *schedule.Program) *Program {
	doc := &Program{
		ProgramID:       p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Version:         p.Version,
		EnvironmentType: p.EnvironmentType,
		Environment:     p.Environment,
		Tracks:          []Track{},
	}
	switch p.StartTrigger.Mode {
	case "", schedule.StartAutomatic:
	default:
		doc.StartTrigger = &ProgramStart{Type: string(p.StartTrigger.Mode)}
		if p.StartTrigger.Mode == schedule.StartOffset {
			doc.StartTrigger.OffsetSeconds = timePtr(p.StartTrigger.Offset)
		}
	}

	for _, tr := range p.Tracks {
		track := Track{TrackID: tr.ID, Name: tr.Name, Steps: []Step{}}
		for _, st := range tr.Steps {
			step := Step{
				StepID:       st.ID,
				Name:         st.Name,
				Description:  st.Description,
				StartTrigger: triggerDoc(st.Trigger),
				Duration:     durationDoc(st.Duration),
			}
			switch len(st.Resources) {
			case 0:
			case 1:
				step.Task = st.Resources[0]
			default:
				step.Tasks = append([]string(nil), st.Resources...)
			}
			track.Steps = append(track.Steps, step)
		}
		doc.Tracks = append(doc.Tracks, track)
	}

	for _, c := range p.Constraints {
		doc.ResourceConstraints = append(doc.ResourceConstraints, Constraint{
			Task:          c.Resource,
			MaxConcurrent: c.MaxConcurrent,
			Description:   c.Description,
		})
	}
	return doc
}

// Encode writes p in the given format. Parse(Encode(p)) reproduces p.
func Encode(p *schedule.Program, format Format) ([]byte, error) {
	doc := FromProgram(p)
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML, "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, ValidationError{
			Field:   "format",
			Message: fmt.Sprintf("unsupported format %q", format),
			Code:    ErrCodeFormat,
		}
	}
}

func triggerDoc(t schedule.Trigger) *Trigger {
	switch tr := t.(type) {
	case nil, schedule.ProgramStart:
		return &Trigger{Type: TriggerProgramStart}
	case schedule.Manual:
		return &Trigger{Type: TriggerManual}
	case schedule.AtOffset:
		return &Trigger{Type: TriggerProgramStartOffset, OffsetSeconds: timePtr(tr.Offset)}
	case schedule.AfterStep:
		out := &Trigger{Type: TriggerAfterStep, StepID: tr.StepID}
		if tr.Offset != 0 {
			out.OffsetSeconds = timePtr(tr.Offset)
		}
		return out
	default:
		panic(fmt.Sprintf("document: unknown trigger %T", t))
	}
}

func durationDoc(d schedule.Duration) Duration {
	switch dd := d.(type) {
	case schedule.Fixed:
		return Duration{Type: DurationFixed, Seconds: timePtr(dd.D)}
	case schedule.Variable:
		return Duration{Type: DurationVariable, MinSeconds: timePtr(dd.Min), MaxSeconds: timePtr(dd.Max)}
	default:
		panic(fmt.Sprintf("document: unknown duration %T", d))
	}
}

func timePtr(d time.Duration) *TimeValue {
	t := TimeValue(d)
	return &t
}
