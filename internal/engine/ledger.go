package engine

import (
	"errors"
	"fmt"
)

// releaseLedger counts admissions and releases per step.
//
// Every step that reaches Running must be released exactly once, at its
// transition to Completed or Cancelled. The ledger records both sides so a
// leak or a double release is visible after the run and in logs.
type releaseLedger struct {
	admitted map[string]int
	released map[string]int
}

func newReleaseLedger() *releaseLedger {
	return &releaseLedger{
		admitted: make(map[string]int),
		released: make(map[string]int),
	}
}

// admit records an admission.
func (l *releaseLedger) admit(stepID string) {
	l.admitted[stepID]++
}

// release records a release and reports an imbalance.
func (l *releaseLedger) release(stepID string) error {
	l.released[stepID]++
	if l.released[stepID] > l.admitted[stepID] {
		return &ReleaseImbalanceError{
			StepID:   stepID,
			Admitted: l.admitted[stepID],
			Released: l.released[stepID],
		}
	}
	return nil
}

// outstanding returns the steps admitted more often than released.
func (l *releaseLedger) outstanding() []string {
	var out []string
	for id, n := range l.admitted {
		if l.released[id] < n {
			out = append(out, id)
		}
	}
	return out
}

// Balance is the admission/release count of one step.
type Balance struct {
	Admitted int
	Released int
}

func (l *releaseLedger) snapshot() map[string]Balance {
	out := make(map[string]Balance, len(l.admitted))
	for id, n := range l.admitted {
		out[id] = Balance{Admitted: n, Released: l.released[id]}
	}
	return out
}

// ReleaseImbalanceError reports a step released more often than admitted.
type ReleaseImbalanceError struct {
	StepID   string
	Admitted int
	Released int
}

// Error implements the error interface.
func (e *ReleaseImbalanceError) Error() string {
	return fmt.Sprintf("step %s released %d times after %d admissions",
		e.StepID, e.Released, e.Admitted)
}

// IsReleaseImbalance returns true if the error is a ReleaseImbalanceError.
// Uses errors.As to handle wrapped errors.
func IsReleaseImbalance(err error) bool {
	var ie *ReleaseImbalanceError
	return errors.As(err, &ie)
}
