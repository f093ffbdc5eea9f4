// Package admission decides whether a ready step may start under the
// program's resource constraints.
//
// Admission is all-or-nothing across a step's resource set: either every
// constrained resource has a free slot and all of them are taken at once, or
// nothing changes. A step never holds part of its resources, so two steps can
// never deadlock on each other's partial holdings.
package admission

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/cadence/internal/schedule"
)

// ErrNotHeld is returned when releasing a step that holds no admission.
var ErrNotHeld = errors.New("step holds no admission")

// Decision is the outcome of TryAdmit.
type Decision struct {
	Granted bool

	// Saturated lists the resources at capacity when the admission was
	// denied, sorted. Empty when granted.
	Saturated []string
}

// Controller tracks live usage per constrained resource.
//
// INVARIANTS:
//   - 0 <= usage[r] <= capacity[r] for every resource r
//   - usage[r] equals the number of holders whose set contains r
//
// Thread-safety: all methods are safe for concurrent use. The engine still
// calls them from one goroutine; the lock serializes outside readers.
type Controller struct {
	mu       sync.Mutex
	capacity map[string]int
	usage    map[string]int
	holders  map[string][]string // step ID -> resources taken at admission
}

// New creates a controller seeded from a capacity table.
// Negative capacities are clamped to 0.
func New(caps schedule.Capacities) *Controller {
	c := &Controller{
		capacity: make(map[string]int, len(caps)),
		usage:    make(map[string]int, len(caps)),
		holders:  make(map[string][]string),
	}
	for r, n := range caps {
		c.capacity[r] = max(n, 0)
		c.usage[r] = 0
	}
	return c
}

// TryAdmit checks every constrained resource the step consumes and, if all
// have a free slot, takes one slot of each. Resources missing from the
// capacity table are unconstrained and ignored.
//
// Admitting a step that already holds an admission is denied without change.
func (c *Controller) TryAdmit(stepID string, resources []string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, holding := c.holders[stepID]; holding {
		return Decision{}
	}

	var take, saturated []string
	for _, r := range resources {
		limit, constrained := c.capacity[r]
		if !constrained || slices.Contains(take, r) || slices.Contains(saturated, r) {
			continue
		}
		if c.usage[r] >= limit {
			saturated = append(saturated, r)
			continue
		}
		take = append(take, r)
	}

	if len(saturated) > 0 {
		slices.Sort(saturated)
		return Decision{Saturated: saturated}
	}

	for _, r := range take {
		c.usage[r]++
	}
	c.holders[stepID] = take
	return Decision{Granted: true}
}

// Release returns every slot the step took at admission and reports which
// resources were freed, in admission order.
//
// Returns ErrNotHeld if the step was never admitted or was already released.
// Counts are left untouched in that case.
func (c *Controller) Release(stepID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.holders[stepID]
	if !ok {
		return nil, fmt.Errorf("release %s: %w", stepID, ErrNotHeld)
	}
	for _, r := range held {
		if c.usage[r] <= 0 {
			// Unreachable while the invariants hold.
			panic(fmt.Sprintf("admission: usage of %s would go negative", r))
		}
		c.usage[r]--
	}
	delete(c.holders, stepID)
	return held, nil
}

// Holding reports whether the step currently holds an admission.
func (c *Controller) Holding(stepID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.holders[stepID]
	return ok
}

// Usage returns the current number of holders of a resource.
func (c *Controller) Usage(resource string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage[resource]
}

// Capacity returns the capacity of a resource and whether it is constrained.
func (c *Controller) Capacity(resource string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.capacity[resource]
	return n, ok
}

// Constrained reports whether any of the resources has a capacity entry.
func (c *Controller) Constrained(resources []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		if _, ok := c.capacity[r]; ok {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the usage table.
func (c *Controller) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.usage)
}

// Resources returns the constrained resource identifiers, sorted.
func (c *Controller) Resources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.capacity))
}
