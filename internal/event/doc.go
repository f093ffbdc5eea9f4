// Package event defines the outward-facing stream of execution events and
// the sinks that consume it.
//
// The engine publishes one Event per lifecycle transition plus run-level
// events (started, stopped, completed). Delivery order is processing order:
// Seq is strictly increasing within a run and sinks receive events
// synchronously from the engine's single event loop.
//
// Events serialize to canonical JSON (sorted keys, NFC-normalized strings,
// no HTML escaping, no floats). Replaying the same control inputs against
// the same program therefore yields a byte-identical JSON Lines stream.
package event
