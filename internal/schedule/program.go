package schedule

import (
	"slices"
	"time"
)

// StartMode describes how the program itself starts.
type StartMode string

const (
	StartManual    StartMode = "manual"
	StartAutomatic StartMode = "automatic"
	StartOffset    StartMode = "offset"
)

// ProgramTrigger is the program-level start trigger. Offset applies to StartOffset only.
type ProgramTrigger struct {
	Mode   StartMode
	Offset time.Duration
}

// Program is a complete schedule: concurrent tracks of steps plus the
// resource constraints they share.
type Program struct {
	ID              string
	Name            string
	Description     string
	EnvironmentType string
	StartTrigger    ProgramTrigger
	Tracks          []Track
	Constraints     []ResourceConstraint
	Version         string

	// Environment optionally names a catalog entry supplying capacities.
	Environment string
}

// Track is a concurrent lane of steps. Order within a track is presentation
// only; sequencing comes from each step's trigger.
type Track struct {
	ID    string
	Name  string
	Steps []Step
}

// Step is the unit of scheduling and of resource consumption.
type Step struct {
	ID          string
	Name        string
	Description string
	Trigger     Trigger
	Duration    Duration

	// Resources lists the resource identifiers the step consumes while
	// running. Resolved by the document layer.
	Resources []string
}

// ResourceConstraint caps concurrent use of one resource.
type ResourceConstraint struct {
	Resource      string
	MaxConcurrent int
	Description   string
}

// Capacities maps a resource identifier to its maximum concurrent use.
// Resources absent from the table are unconstrained.
type Capacities map[string]int

// Capacities builds the capacity table from the program's own constraints.
func (p *Program) Capacities() Capacities {
	caps := make(Capacities, len(p.Constraints))
	for _, c := range p.Constraints {
		caps[c.Resource] = c.MaxConcurrent
	}
	return caps
}

// Steps returns every step in definition order (track by track).
// The pointers alias the program; callers must not mutate through them.
func (p *Program) Steps() []*Step {
	var out []*Step
	for ti := range p.Tracks {
		for si := range p.Tracks[ti].Steps {
			out = append(out, &p.Tracks[ti].Steps[si])
		}
	}
	return out
}

// Step looks up a step by ID.
func (p *Program) Step(id string) (*Step, bool) {
	for ti := range p.Tracks {
		for si := range p.Tracks[ti].Steps {
			if p.Tracks[ti].Steps[si].ID == id {
				return &p.Tracks[ti].Steps[si], true
			}
		}
	}
	return nil, false
}

// TrackOf returns the ID of the track containing the step.
func (p *Program) TrackOf(stepID string) (string, bool) {
	for _, tr := range p.Tracks {
		for _, st := range tr.Steps {
			if st.ID == stepID {
				return tr.ID, true
			}
		}
	}
	return "", false
}

// Clone returns a deep copy. Trigger and Duration values are immutable and shared.
func (p *Program) Clone() *Program {
	out := *p
	out.Constraints = slices.Clone(p.Constraints)
	out.Tracks = make([]Track, len(p.Tracks))
	for i, tr := range p.Tracks {
		out.Tracks[i] = Track{ID: tr.ID, Name: tr.Name, Steps: make([]Step, len(tr.Steps))}
		for j, st := range tr.Steps {
			st.Resources = slices.Clone(st.Resources)
			out.Tracks[i].Steps[j] = st
		}
	}
	return &out
}

// ConstrainedResources returns the step's resources that appear in caps, in
// declaration order without duplicates.
func (s *Step) ConstrainedResources(caps Capacities) []string {
	var out []string
	for _, r := range s.Resources {
		if _, ok := caps[r]; !ok || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}
