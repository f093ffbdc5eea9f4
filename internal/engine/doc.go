// Package engine executes one program against a virtual clock.
//
// ARCHITECTURE:
//
// Discrete-Event Loop:
// The engine keeps a min-ordered queue of pending events (trigger fires,
// step completions, manual signals, resource releases, program stop) and
// processes them one at a time. It never sleeps and never reads wall-clock
// time. The outside world drives it through four control inputs:
//
//   - Start() enqueues the steps that are satisfiable at program start
//   - Advance(d) moves virtual time forward, processing every event due
//   - Signal(id) fires a manual step or completes a variable-duration step
//   - Stop() cancels every non-terminal step and releases held resources
//
// After each control call returns, every event due at or before Now() has
// been processed.
//
// Same-Instant Ordering:
// Events sharing a timestamp are processed by kind rank, then by subject
// identity, then by insertion order:
//
//	ResourceReleased < TriggerFire < ManualSignal < StepComplete < ProgramStop
//
// A resource freed at t is therefore available to a step whose trigger also
// fires at t.
//
// Admission:
// A triggered step becomes Ready and asks the admission controller for its
// whole resource set. Denied steps wait in Blocked and are re-evaluated on
// every release of a resource they reference, earliest-triggered first with
// ties broken by step ID.
//
// Determinism:
// Identical control sequences against the same program produce identical
// event streams. Event Seq numbers come from a per-engine counter.
//
// Thread-safety: an Engine is not safe for concurrent use. The real-time
// driver serializes every call through one mutex.
package engine
