package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an anomaly detected while driving a run.
//
// Invalid signals are never returned to the caller as a failure; they are
// logged with their code and the call reports SignalIgnored.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// StepID identifies the affected step, if any.
	StepID string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidSignal indicates a signal or stop outside a valid state.
	ErrCodeInvalidSignal RuntimeErrorCode = "INVALID_SIGNAL"

	// ErrCodeNotStarted indicates Advance before Start.
	ErrCodeNotStarted RuntimeErrorCode = "NOT_STARTED"

	// ErrCodeAlreadyStarted indicates a second Start.
	ErrCodeAlreadyStarted RuntimeErrorCode = "ALREADY_STARTED"

	// ErrCodeNegativeAdvance indicates an attempt to move time backwards.
	ErrCodeNegativeAdvance RuntimeErrorCode = "NEGATIVE_ADVANCE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step=%s)", e.Code, e.Message, e.StepID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidSignal returns true if the error is an invalid signal error.
// Uses errors.As to handle wrapped errors.
func IsInvalidSignal(err error) bool {
	return hasCode(err, ErrCodeInvalidSignal)
}

// IsNotStarted returns true if the error reports an engine that was not started.
func IsNotStarted(err error) bool {
	return hasCode(err, ErrCodeNotStarted)
}

// IsAlreadyStarted returns true if the error reports a repeated Start.
func IsAlreadyStarted(err error) bool {
	return hasCode(err, ErrCodeAlreadyStarted)
}

// IsNegativeAdvance returns true if the error reports a backwards time move.
func IsNegativeAdvance(err error) bool {
	return hasCode(err, ErrCodeNegativeAdvance)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newInvalidSignal(stepID, reason string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidSignal,
		Message: reason,
		StepID:  stepID,
	}
}
