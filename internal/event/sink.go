package event

import (
	"io"
	"slices"
	"sync"

	"github.com/roach88/cadence/internal/schedule"
)

// Sink receives events in processing order.
//
// Publish is called synchronously from the engine's event loop and must not
// call back into the engine.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks in the given order.
func Multi(sinks ...Sink) Sink {
	return multi(slices.Clone(sinks))
}

type multi []Sink

func (m multi) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// Recorder keeps every published event in memory.
// Thread-safe: a UI goroutine may read while the engine publishes.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Sink.
func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Transitions returns the step's transitions in order.
func (r *Recorder) Transitions(stepID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == KindStepTransition && e.StepID == stepID {
			out = append(out, e)
		}
	}
	return out
}

// FirstEntry returns the first transition of stepID into state and whether it exists.
func (r *Recorder) FirstEntry(stepID string, state schedule.StepState) (Event, bool) {
	for _, e := range r.Transitions(stepID) {
		if e.To == state {
			return e, true
		}
	}
	return Event{}, false
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// JSONLWriter writes each event as one canonical JSON line.
// The first write or encoding error is kept and later events are dropped.
type JSONLWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewJSONLWriter creates a sink writing to w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w}
}

// Publish implements Sink.
func (j *JSONLWriter) Publish(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	line, err := e.MarshalJSON()
	if err != nil {
		j.err = err
		return
	}
	line = append(line, '\n')
	if _, err := j.w.Write(line); err != nil {
		j.err = err
	}
}

// Err returns the first error encountered, if any.
func (j *JSONLWriter) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
