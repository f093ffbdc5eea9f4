package graph

import (
	"container/heap"
	"fmt"

	"github.com/roach88/cadence/internal/schedule"
)

// StartNode is the index of the synthetic program-start node.
const StartNode = 0

// noPredecessor marks a node without an incoming edge (Manual steps and the start node).
const noPredecessor = -1

// Graph is the dependency graph of one program.
type Graph struct {
	ids   []string // index -> step ID; ids[StartNode] is ""
	index map[string]int
	succ  [][]int // sorted ascending
	pred  []int
	kinds []schedule.TriggerKind
}

// Build derives the dependency graph for p.
//
// Returns a *BuildError with ErrCodeDuplicateStep, ErrCodeUnresolvedReference
// or ErrCodeCyclicDependency. Checks run in that order and the first failure
// is returned.
func Build(p *schedule.Program) (*Graph, error) {
	steps := p.Steps()

	g := &Graph{
		ids:   make([]string, 1, len(steps)+1),
		index: make(map[string]int, len(steps)),
		pred:  make([]int, 1, len(steps)+1),
		kinds: make([]schedule.TriggerKind, 1, len(steps)+1),
	}
	g.pred[StartNode] = noPredecessor

	for _, s := range steps {
		if _, dup := g.index[s.ID]; dup {
			return nil, &BuildError{
				Code:    ErrCodeDuplicateStep,
				Message: "step identity is not unique",
				StepID:  s.ID,
			}
		}
		g.index[s.ID] = len(g.ids)
		g.ids = append(g.ids, s.ID)
		g.pred = append(g.pred, noPredecessor)
		g.kinds = append(g.kinds, s.Trigger.Kind())
	}
	g.succ = make([][]int, len(g.ids))

	// Steps are visited in index order, so every successor list comes out sorted.
	for i, s := range steps {
		node := i + 1
		switch tr := s.Trigger.(type) {
		case schedule.AfterStep:
			from, ok := g.index[tr.StepID]
			if !ok {
				return nil, &BuildError{
					Code:    ErrCodeUnresolvedReference,
					Message: fmt.Sprintf("afterStep references unknown step %q", tr.StepID),
					StepID:  s.ID,
				}
			}
			g.link(from, node)
		case schedule.ProgramStart, schedule.AtOffset:
			g.link(StartNode, node)
		case schedule.Manual:
			// isolated root
		default:
			panic(fmt.Sprintf("graph: unknown trigger %T", s.Trigger))
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &BuildError{
			Code:    ErrCodeCyclicDependency,
			Message: "afterStep triggers form a cycle",
			StepID:  cycle[0],
			Cycle:   cycle,
		}
	}

	return g, nil
}

func (g *Graph) link(from, to int) {
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = from
}

// findCycle runs a depth-first traversal with a recursion-stack marker and
// returns the first cycle found, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.ids))
	var stack []int
	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range g.succ[u] {
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				for i, n := range stack {
					if n == v {
						cycle = append([]int{}, stack[i:]...)
						break
					}
				}
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for n := range g.ids {
		if color[n] == white && dfs(n) {
			break
		}
	}
	if cycle == nil {
		return nil
	}

	out := make([]string, len(cycle))
	for i, n := range cycle {
		out[i] = g.ids[n]
	}
	return out
}

// Len returns the number of nodes including the start node.
func (g *Graph) Len() int { return len(g.ids) }

// Steps returns the number of step nodes.
func (g *Graph) Steps() int { return len(g.ids) - 1 }

// Index returns the node index of a step.
func (g *Graph) Index(stepID string) (int, bool) {
	i, ok := g.index[stepID]
	return i, ok
}

// StepID returns the step at node index i. The start node has an empty ID.
func (g *Graph) StepID(i int) string { return g.ids[i] }

// Kind returns the trigger kind of node i.
func (g *Graph) Kind(i int) schedule.TriggerKind { return g.kinds[i] }

// Predecessor returns the node i depends on. ok is false for Manual steps
// and the start node.
func (g *Graph) Predecessor(i int) (int, bool) {
	p := g.pred[i]
	return p, p != noPredecessor
}

// Successors returns the nodes triggered by node i, ascending.
// The returned slice must not be modified.
func (g *Graph) Successors(i int) []int { return g.succ[i] }

// Dependents returns the step IDs whose AfterStep trigger references stepID,
// in definition order.
func (g *Graph) Dependents(stepID string) []string {
	i, ok := g.index[stepID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.succ[i]))
	for _, n := range g.succ[i] {
		out = append(out, g.ids[n])
	}
	return out
}

// Roots returns the Manual steps, which have no incoming edge.
func (g *Graph) Roots() []string {
	var out []string
	for n := 1; n < len(g.ids); n++ {
		if g.pred[n] == noPredecessor {
			out = append(out, g.ids[n])
		}
	}
	return out
}

// Descendants returns every node reachable from the given nodes, including
// the nodes themselves, as a membership slice indexed by node.
func (g *Graph) Descendants(from ...int) []bool {
	seen := make([]bool, len(g.ids))
	queue := append([]int{}, from...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		queue = append(queue, g.succ[n]...)
	}
	return seen
}

// TopologicalOrder returns step node indices such that every step follows its
// predecessor. Ties break on the lower index, so the order is deterministic.
func (g *Graph) TopologicalOrder() []int {
	indeg := make([]int, len(g.ids))
	for n := 1; n < len(g.ids); n++ {
		if g.pred[n] != noPredecessor && g.pred[n] != StartNode {
			indeg[n] = 1
		}
	}

	ready := &intMinHeap{}
	for n := 1; n < len(g.ids); n++ {
		if indeg[n] == 0 {
			heap.Push(ready, n)
		}
	}

	out := make([]int, 0, len(g.ids)-1)
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.succ[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
