package testutil

import (
	"time"

	"github.com/roach88/cadence/internal/schedule"
)

// Trigger shorthands.
func AtStart() schedule.Trigger  { return schedule.ProgramStart{} }
func OnSignal() schedule.Trigger { return schedule.Manual{} }

func After(stepID string, offset time.Duration) schedule.Trigger {
	return schedule.AfterStep{StepID: stepID, Offset: offset}
}

func At(offset time.Duration) schedule.Trigger {
	return schedule.AtOffset{Offset: offset}
}

// Duration shorthands.
func Fixed(d time.Duration) schedule.Duration { return schedule.Fixed{D: d} }

func Between(minD, maxD time.Duration) schedule.Duration {
	return schedule.Variable{Min: minD, Max: maxD}
}

// Step builds a step named after its ID.
func Step(id string, tr schedule.Trigger, d schedule.Duration, resources ...string) schedule.Step {
	return schedule.Step{
		ID:        id,
		Name:      id,
		Trigger:   tr,
		Duration:  d,
		Resources: resources,
	}
}

// ProgramBuilder assembles programs for tests.
//
// Example:
//
//	p := testutil.NewProgram("dinner").
//		Constraint("burner", 2).
//		Track("mains",
//			testutil.Step("sear", testutil.AtStart(), testutil.Fixed(time.Minute), "burner"),
//		).
//		Build()
type ProgramBuilder struct {
	p *schedule.Program
}

// NewProgram starts a program with an automatic start trigger.
func NewProgram(id string) *ProgramBuilder {
	return &ProgramBuilder{p: &schedule.Program{
		ID:           id,
		Name:         id,
		StartTrigger: schedule.ProgramTrigger{Mode: schedule.StartAutomatic},
		Version:      schedule.SchemaVersion,
	}}
}

// Constraint adds a resource constraint.
func (b *ProgramBuilder) Constraint(resource string, maxConcurrent int) *ProgramBuilder {
	b.p.Constraints = append(b.p.Constraints, schedule.ResourceConstraint{
		Resource:      resource,
		MaxConcurrent: maxConcurrent,
	})
	return b
}

// Track appends a track holding steps.
func (b *ProgramBuilder) Track(id string, steps ...schedule.Step) *ProgramBuilder {
	b.p.Tracks = append(b.p.Tracks, schedule.Track{ID: id, Name: id, Steps: steps})
	return b
}

// EnvironmentType sets the program's environment type.
func (b *ProgramBuilder) EnvironmentType(t string) *ProgramBuilder {
	b.p.EnvironmentType = t
	return b
}

// Start sets the program start trigger.
func (b *ProgramBuilder) Start(tr schedule.ProgramTrigger) *ProgramBuilder {
	b.p.StartTrigger = tr
	return b
}

// Build returns the program. The builder must not be reused.
func (b *ProgramBuilder) Build() *schedule.Program {
	return b.p
}

// BurnerProgram is the three-steps-on-two-burners program: a, b and c all
// start at program start, run 60s and need one "stove-burner" each.
func BurnerProgram() *schedule.Program {
	return NewProgram("burners").
		Constraint("stove-burner", 2).
		Track("left",
			Step("a", AtStart(), Fixed(60*time.Second), "stove-burner"),
		).
		Track("middle",
			Step("b", AtStart(), Fixed(60*time.Second), "stove-burner"),
		).
		Track("right",
			Step("c", AtStart(), Fixed(60*time.Second), "stove-burner"),
		).
		Build()
}
