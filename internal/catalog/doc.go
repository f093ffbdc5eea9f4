// Package catalog stores environment definitions in SQLite.
//
// An environment is a named set of resource constraints for one
// environment type ("kitchen", "laboratory"). Programs that name an
// environment, or only an environment type, take their capacities from the
// catalog; constraints the program declares itself override the
// environment's. The catalog holds definitions only, never run history.
package catalog
