// Package driver runs an engine against the wall clock.
//
// The engine itself never sleeps; a Driver measures real elapsed time,
// scales it, and feeds it to the engine as Advance calls. Every engine call
// made through a Driver is serialized by one mutex, so signals arriving from
// other goroutines interleave with ticks one event batch at a time.
package driver
