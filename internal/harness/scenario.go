package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cadence/internal/document"
)

// Scenario is one engine conformance scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Program is the path of a program document, relative to the scenario
	// file. Exactly one of Program and Inline is set.
	Program string `yaml:"program,omitempty"`

	// Inline is a program document embedded in the scenario.
	Inline yaml.Node `yaml:"inline,omitempty"`

	// Capacities overrides the program's capacity table.
	Capacities map[string]int `yaml:"capacities,omitempty"`

	// RunID fixes the run ID. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	Script     []Action    `yaml:"script"`
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultRunID is the run ID of scenarios that do not set one.
const DefaultRunID = "run-scenario"

// Action is one control input.
type Action struct {
	// Do is one of start, advance, signal, stop.
	Do string `yaml:"do"`

	// By is the advance amount, as a document time value ("90", "1m30s").
	By string `yaml:"by,omitempty"`

	// Step is the signal target.
	Step string `yaml:"step,omitempty"`

	// Expect is the expected signal outcome: triggered, completed or
	// ignored. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// Action kinds.
const (
	DoStart   = "start"
	DoAdvance = "advance"
	DoSignal  = "signal"
	DoStop    = "stop"
)

// Assertion checks the trace or final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Step and To select transitions (trace_contains, trace_count).
	Step string `yaml:"step,omitempty"`
	To   string `yaml:"to,omitempty"`

	// At is the expected virtual time of the transition (trace_contains).
	At string `yaml:"at,omitempty"`

	// Kind selects events by kind (trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Transitions lists "step:state" entries expected in this order
	// (trace_order). Entries need not be consecutive.
	Transitions []string `yaml:"transitions,omitempty"`

	// States maps step IDs to expected final states (final_state).
	States map[string]string `yaml:"states,omitempty"`

	// Status is the expected run status: active, completed or stopped
	// (run_status).
	Status string `yaml:"status,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRunStatus     = "run_status"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected. A relative Program path is resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Program != "" && !filepath.IsAbs(s.Program) {
		s.Program = filepath.Join(filepath.Dir(path), s.Program)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	hasInline := !s.Inline.IsZero()
	switch {
	case s.Program == "" && !hasInline:
		return fmt.Errorf("one of program or inline is required")
	case s.Program != "" && hasInline:
		return fmt.Errorf("program and inline are mutually exclusive")
	}
	if len(s.Script) == 0 {
		return fmt.Errorf("script is required and must be non-empty")
	}
	for i, a := range s.Script {
		if err := validateAction(i, a); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(i int, a Action) error {
	switch a.Do {
	case DoStart, DoStop:
	case DoAdvance:
		if a.By == "" {
			return fmt.Errorf("script[%d]: advance requires by", i)
		}
		if _, err := document.ParseTime(a.By); err != nil {
			return fmt.Errorf("script[%d]: %w", i, err)
		}
	case DoSignal:
		if a.Step == "" {
			return fmt.Errorf("script[%d]: signal requires step", i)
		}
		switch a.Expect {
		case "", "triggered", "completed", "ignored":
		default:
			return fmt.Errorf("script[%d]: unknown signal outcome %q", i, a.Expect)
		}
	case "":
		return fmt.Errorf("script[%d]: do is required", i)
	default:
		return fmt.Errorf("script[%d]: unknown action %q", i, a.Do)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Step == "" || a.To == "" {
			return fmt.Errorf("assertions[%d]: step and to are required for trace_contains", i)
		}
		if a.At != "" {
			if _, err := parseAt(a.At); err != nil {
				return fmt.Errorf("assertions[%d]: %w", i, err)
			}
		}
	case AssertTraceOrder:
		if len(a.Transitions) == 0 {
			return fmt.Errorf("assertions[%d]: transitions list is required for trace_order", i)
		}
		for _, entry := range a.Transitions {
			if _, _, err := splitTransition(entry); err != nil {
				return fmt.Errorf("assertions[%d]: %w", i, err)
			}
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", i)
		}
	case AssertFinalState:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states is required for final_state", i)
		}
	case AssertRunStatus:
		switch a.Status {
		case StatusActive, StatusCompleted, StatusStopped, StatusPending:
		default:
			return fmt.Errorf("assertions[%d]: unknown run status %q", i, a.Status)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

// programSource returns the document bytes of the scenario's program.
func (s *Scenario) programSource() ([]byte, error) {
	if s.Program != "" {
		data, err := os.ReadFile(s.Program)
		if err != nil {
			return nil, fmt.Errorf("read program: %w", err)
		}
		return data, nil
	}
	data, err := yaml.Marshal(&s.Inline)
	if err != nil {
		return nil, fmt.Errorf("encode inline program: %w", err)
	}
	return data, nil
}
