// Package schedule provides the in-memory model of a program: tracks of
// timed steps, their start triggers and durations, and the resource
// constraints they compete for.
//
// This package contains type definitions and pure helpers only. Every other
// internal package imports schedule; schedule imports nothing internal.
//
// Key design constraints:
//   - Trigger and Duration are closed variants. The unexported marker methods
//     keep implementations inside this package, so every type switch over them
//     is exhaustive by construction.
//   - All times are time.Duration offsets from program start (virtual time).
//     Integer nanoseconds keep replays exact.
//   - A Program is treated as immutable once execution starts. Consumers that
//     need to change one work on Clone().
package schedule
