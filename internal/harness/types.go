package harness

import (
	"time"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/schedule"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every action and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace is every event the engine emitted, in order.
	Trace []event.Event `json:"trace"`

	// Errors holds failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// States is each step's final state.
	States map[string]schedule.StepState `json:"states"`

	// Status is the final run status.
	Status string `json:"status"`

	// Now is the final virtual time.
	Now time.Duration `json:"now"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []event.Event{},
		Errors: []string{},
		States: make(map[string]schedule.StepState),
		Status: StatusPending,
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
