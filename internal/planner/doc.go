// Package planner statically re-plans a program to reduce resource contention.
//
// Plan runs a deterministic list-scheduling pass: steps become ready once
// their predecessor is placed, the ready step with the earliest feasible
// start goes first (fewer constrained resources, then step ID, break ties),
// and each is placed at the earliest candidate time where every resource it
// consumes stays within capacity for the whole interval. Starts only move
// later, never earlier, and dependency offsets are always honoured.
//
// Program-start steps stay pinned at zero. Manual steps and everything that
// transitively depends on them cannot be timed statically; they are copied
// verbatim and listed as unplanned.
//
// Variable durations are planned at their maximum. The input program is
// never modified.
package planner
