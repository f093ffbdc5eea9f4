package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/schedule"
)

func TestProgramBuilder(t *testing.T) {
	p := NewProgram("p").
		Constraint("oven", 1).
		EnvironmentType("kitchen").
		Track("t1",
			Step("a", AtStart(), Fixed(time.Minute), "oven"),
			Step("b", After("a", 5*time.Second), Between(time.Second, 2*time.Second)),
		).
		Track("t2", Step("m", OnSignal(), Fixed(0))).
		Build()

	assert.Equal(t, "kitchen", p.EnvironmentType)
	assert.Equal(t, schedule.Capacities{"oven": 1}, p.Capacities())
	require.Len(t, p.Steps(), 3)

	b, ok := p.Step("b")
	require.True(t, ok)
	assert.Equal(t, schedule.AfterStep{StepID: "a", Offset: 5 * time.Second}, b.Trigger)
	assert.Equal(t, schedule.Variable{Min: time.Second, Max: 2 * time.Second}, b.Duration)
	assert.Empty(t, b.Resources)
}

func TestBurnerProgram(t *testing.T) {
	p := BurnerProgram()
	assert.Equal(t, schedule.Capacities{"stove-burner": 2}, p.Capacities())
	for _, s := range p.Steps() {
		assert.Equal(t, []string{"stove-burner"}, s.Resources)
		assert.Equal(t, schedule.KindProgramStart, s.Trigger.Kind())
	}
}

func TestFixedRunID(t *testing.T) {
	g := NewFixedRunID("run-1")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-1", g.Generate())
}

func TestManualClock(t *testing.T) {
	c := NewManualClock()
	assert.Equal(t, Epoch, c.Now())
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, Epoch.Add(1500*time.Millisecond), c.Now())
	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}
