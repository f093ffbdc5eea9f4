package planner

import (
	"errors"
	"fmt"
	"time"
)

// ErrCodeResourceOverCapacity marks a placement that could not respect a
// resource capacity. Reported in the plan, never fatal.
const ErrCodeResourceOverCapacity = "RESOURCE_OVER_CAPACITY"

// Violation is one best-effort placement that exceeds a capacity.
type Violation struct {
	Code     string
	StepID   string
	Resource string
	Start    time.Duration
	End      time.Duration
	Usage    int // peak concurrent holders during the interval, this step included
	Capacity int
}

// Error implements the error interface so violations can be surfaced as errors.
func (v *Violation) Error() string {
	return fmt.Sprintf("%s: step %s needs %s at [%s, %s): %d holders, capacity %d",
		v.Code, v.StepID, v.Resource, v.Start, v.End, v.Usage, v.Capacity)
}

// IsResourceOverCapacity returns true if the error is a capacity violation.
// Uses errors.As to handle wrapped errors.
func IsResourceOverCapacity(err error) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code == ErrCodeResourceOverCapacity
	}
	return false
}
