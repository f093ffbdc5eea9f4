package schedule

import (
	"fmt"
	"time"
)

// Duration is a step's duration specification.
//
// Implementations: Fixed, Variable.
type Duration interface {
	// PlanningHorizon is the span admission and planning reserve for the step.
	PlanningHorizon() time.Duration
	String() string
	duration()
}

// Fixed completes exactly D after the step starts.
type Fixed struct {
	D time.Duration
}

// Variable completes when signaled externally, no later than Max.
// Min is advisory: completion before it is reported, not rejected.
type Variable struct {
	Min time.Duration
	Max time.Duration
}

func (f Fixed) PlanningHorizon() time.Duration    { return f.D }
func (v Variable) PlanningHorizon() time.Duration { return v.Max }

func (f Fixed) String() string    { return fmt.Sprintf("fixed(%s)", f.D) }
func (v Variable) String() string { return fmt.Sprintf("variable(%s..%s)", v.Min, v.Max) }

func (Fixed) duration()    {}
func (Variable) duration() {}
