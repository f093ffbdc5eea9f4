package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cadence/internal/event"
)

// TraceJSONL renders a trace as canonical JSON lines, one event per line.
func TraceJSONL(trace []event.Event) ([]byte, error) {
	var buf bytes.Buffer
	w := event.NewJSONLWriter(&buf)
	for _, ev := range trace {
		w.Publish(ev)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario and compares its trace against
// testdata/golden/<name>.golden. Failed assertions fail the test.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	if err := AssertGolden(t, s.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := TraceJSONL(result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
