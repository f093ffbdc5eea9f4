package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/cadence/internal/schedule"
)

// Kind distinguishes event kinds.
type Kind string

const (
	KindRunStarted     Kind = "run_started"
	KindRunStopped     Kind = "run_stopped"
	KindRunCompleted   Kind = "run_completed"
	KindStepTransition Kind = "step_transition"
)

// Detail keys attached to step transitions.
const (
	// DetailSaturated lists the comma-separated resources that blocked admission.
	DetailSaturated = "saturated"
	// DetailCause records why a transition happened: "trigger", "signal",
	// "duration", "forced", "released", "abort" or "stop".
	DetailCause = "cause"
	// DetailEarly is "true" when a step was completed by a signal or a forced
	// completion before its minimum.
	DetailEarly = "early"
)

// Event is one entry of the execution stream.
type Event struct {
	Seq    int64
	RunID  string
	Kind   Kind
	StepID string
	From   schedule.StepState
	To     schedule.StepState

	// At is the virtual time of the event, measured from program start.
	At time.Duration

	Detail map[string]string
}

// String renders a compact single-line form for logs and text output.
func (e Event) String() string {
	if e.Kind == KindStepTransition {
		return fmt.Sprintf("[%s] #%d %s %s -> %s", e.At, e.Seq, e.StepID, e.From, e.To)
	}
	return fmt.Sprintf("[%s] #%d %s", e.At, e.Seq, e.Kind)
}

// canonicalMap flattens an event for canonical serialization.
// Empty fields are omitted so run-level events stay small.
func (e Event) canonicalMap() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"kind": string(e.Kind),
		"at":   e.At.String(),
	}
	if e.RunID != "" {
		m["run_id"] = e.RunID
	}
	if e.StepID != "" {
		m["step_id"] = e.StepID
	}
	if e.From != "" {
		m["from"] = string(e.From)
	}
	if e.To != "" {
		m["to"] = string(e.To)
	}
	if len(e.Detail) > 0 {
		detail := make(map[string]any, len(e.Detail))
		for k, v := range e.Detail {
			detail[k] = v
		}
		m["detail"] = detail
	}
	return m
}

// MarshalJSON encodes the event as canonical JSON.
func (e Event) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(e.canonicalMap())
}

// wireEvent mirrors the canonical map's keys.
type wireEvent struct {
	Seq    int64             `json:"seq"`
	RunID  string            `json:"run_id"`
	Kind   string            `json:"kind"`
	StepID string            `json:"step_id"`
	From   string            `json:"from"`
	To     string            `json:"to"`
	At     string            `json:"at"`
	Detail map[string]string `json:"detail"`
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var at time.Duration
	if w.At != "" {
		d, err := time.ParseDuration(w.At)
		if err != nil {
			return fmt.Errorf("event at: %w", err)
		}
		at = d
	}
	*e = Event{
		Seq:    w.Seq,
		RunID:  w.RunID,
		Kind:   Kind(w.Kind),
		StepID: w.StepID,
		From:   schedule.StepState(w.From),
		To:     schedule.StepState(w.To),
		At:     at,
		Detail: w.Detail,
	}
	return nil
}
