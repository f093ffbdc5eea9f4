package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/schedule"
)

// AssertionError is a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []event.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var out []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			out = append(out, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return out
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(r.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(r.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(r.Trace, a)
	case AssertFinalState:
		return assertFinalState(r, a)
	case AssertRunStatus:
		if r.Status != a.Status {
			return &AssertionError{Type: a.Type, Expected: a.Status, Actual: r.Status}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// parseAt parses an event time in time.Duration notation ("1m0s", "90s").
func parseAt(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid at %q: %w", s, err)
	}
	return d, nil
}

func splitTransition(entry string) (string, schedule.StepState, error) {
	step, state, ok := strings.Cut(entry, ":")
	if !ok || step == "" || state == "" {
		return "", "", fmt.Errorf("transition %q must be step:state", entry)
	}
	return step, schedule.StepState(state), nil
}

func isEntry(ev event.Event, step string, to schedule.StepState) bool {
	return ev.Kind == event.KindStepTransition && ev.StepID == step && ev.To == to
}

// assertTraceContains checks for a transition of step into a state,
// optionally at an exact time.
func assertTraceContains(trace []event.Event, a Assertion) error {
	to := schedule.StepState(a.To)
	var want time.Duration
	if a.At != "" {
		d, err := parseAt(a.At)
		if err != nil {
			return err
		}
		want = d
	}

	var seenAt []string
	for _, ev := range trace {
		if !isEntry(ev, a.Step, to) {
			continue
		}
		if a.At == "" || ev.At == want {
			return nil
		}
		seenAt = append(seenAt, ev.At.String())
	}

	expected := fmt.Sprintf("%s -> %s", a.Step, a.To)
	if a.At != "" {
		expected += " at " + a.At
	}
	actual := "not found in trace"
	if len(seenAt) > 0 {
		actual = "found at " + strings.Join(seenAt, ", ")
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
}

// assertTraceOrder checks that the first entry of each listed transition
// appears in the given order. Other events may intervene.
func assertTraceOrder(trace []event.Event, a Assertion) error {
	positions := make([]int, len(a.Transitions))
	for i, entry := range a.Transitions {
		step, state, err := splitTransition(entry)
		if err != nil {
			return err
		}
		positions[i] = slices.IndexFunc(trace, func(ev event.Event) bool {
			return isEntry(ev, step, state)
		})
		if positions[i] < 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("all transitions present: %v", a.Transitions),
				Actual:   fmt.Sprintf("missing transition: %s", entry),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("transitions in order: %v", a.Transitions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					a.Transitions[i-1], positions[i-1]+1, a.Transitions[i], positions[i]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount counts events matching every set selector.
func assertTraceCount(trace []event.Event, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.Kind != "" && string(ev.Kind) != a.Kind {
			continue
		}
		if a.Step != "" && ev.StepID != a.Step {
			continue
		}
		if a.To != "" && string(ev.To) != a.To {
			continue
		}
		count++
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d events matching %s", a.Count, selector(a)),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

func selector(a Assertion) string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Step != "" {
		parts = append(parts, "step="+a.Step)
	}
	if a.To != "" {
		parts = append(parts, "to="+a.To)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// assertFinalState compares final step states; steps not listed are not checked.
func assertFinalState(r *Result, a Assertion) error {
	steps := make([]string, 0, len(a.States))
	for id := range a.States {
		steps = append(steps, id)
	}
	sort.Strings(steps)

	var mismatches []string
	for _, id := range steps {
		got, ok := r.States[id]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: no such step", id))
		case string(got) != a.States[id]:
			mismatches = append(mismatches, fmt.Sprintf("%s: %s", id, got))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v", a.States),
		Actual:   strings.Join(mismatches, "; "),
	}
}
