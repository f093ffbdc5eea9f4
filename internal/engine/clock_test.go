package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Advance(t *testing.T) {
	c := NewClock()
	assert.Equal(t, time.Duration(0), c.Now())

	require.NoError(t, c.Advance(1500*time.Millisecond))
	require.NoError(t, c.Advance(0))
	assert.Equal(t, 1500*time.Millisecond, c.Now())

	err := c.Advance(-time.Nanosecond)
	require.Error(t, err)
	assert.True(t, IsNegativeAdvance(err))
	assert.Equal(t, 1500*time.Millisecond, c.Now(), "rejected advance leaves the clock unchanged")
}

func TestClock_AdvanceTo(t *testing.T) {
	c := NewClock()
	require.NoError(t, c.AdvanceTo(time.Minute))
	assert.Equal(t, time.Minute, c.Now())
	assert.Error(t, c.AdvanceTo(time.Second))
}

func TestSequence_Unique(t *testing.T) {
	var s sequence
	const goroutines, calls = 20, 50

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				n := s.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), s.Current())
}

func TestRuntimeError(t *testing.T) {
	err := newInvalidSignal("m", "running step")
	assert.Equal(t, "INVALID_SIGNAL: running step (step=m)", err.Error())

	wrapped := fmt.Errorf("control: %w", err)
	assert.True(t, IsInvalidSignal(wrapped))
	assert.False(t, IsNotStarted(wrapped))
	assert.False(t, IsInvalidSignal(errors.New("other")))

	plain := &RuntimeError{Code: ErrCodeNotStarted, Message: "advance before start"}
	assert.Equal(t, "NOT_STARTED: advance before start", plain.Error())
}

func TestReleaseLedger(t *testing.T) {
	l := newReleaseLedger()
	l.admit("a")
	l.admit("b")
	require.NoError(t, l.release("a"))
	assert.Equal(t, []string{"b"}, l.outstanding())

	err := l.release("a")
	require.Error(t, err)
	assert.True(t, IsReleaseImbalance(err))
	assert.Equal(t, "step a released 2 times after 1 admissions", err.Error())

	assert.Equal(t, map[string]Balance{
		"a": {Admitted: 1, Released: 2},
		"b": {Admitted: 1, Released: 0},
	}, l.snapshot())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("r1", "r2")
	assert.Equal(t, "r1", g.Generate())
	assert.Equal(t, "r2", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
