package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes structural errors found while building the graph.
type ErrorCode string

const (
	// ErrCodeCyclicDependency indicates AfterStep triggers form a cycle.
	ErrCodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"

	// ErrCodeUnresolvedReference indicates an AfterStep names a step that does not exist.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_TRIGGER_REFERENCE"

	// ErrCodeDuplicateStep indicates two steps share an identity.
	ErrCodeDuplicateStep ErrorCode = "DUPLICATE_STEP"
)

// BuildError is a fatal structural error. A program that fails to build
// cannot be executed or planned.
type BuildError struct {
	Code    ErrorCode
	Message string

	// StepID is the step whose trigger (or identity) is at fault.
	StepID string

	// Cycle lists the steps of a dependency cycle in trigger order: each
	// step's AfterStep references the previous one, and the first references
	// the last.
	Cycle []string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if len(e.Cycle) > 0 {
		path := append(append([]string{}, e.Cycle...), e.Cycle[0])
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(path, " -> "))
	}
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step=%s)", e.Code, e.Message, e.StepID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsCyclicDependency reports whether err is a cycle error. Uses errors.As to handle wrapped errors.
func IsCyclicDependency(err error) bool { return hasCode(err, ErrCodeCyclicDependency) }

// IsUnresolvedReference reports whether err is an unresolved trigger reference.
func IsUnresolvedReference(err error) bool { return hasCode(err, ErrCodeUnresolvedReference) }

// IsDuplicateStep reports whether err is a duplicate step identity.
func IsDuplicateStep(err error) bool { return hasCode(err, ErrCodeDuplicateStep) }
