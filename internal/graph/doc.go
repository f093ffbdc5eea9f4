// Package graph derives the trigger dependency graph of a program.
//
// The graph has one node per step plus a synthetic program-start node at
// index 0. Edges run from a step to every step whose AfterStep trigger
// references it, and from the start node to every ProgramStart or AtOffset
// step. Manual steps are isolated roots.
//
// Nodes live in an arena indexed by definition order, so the graph is
// independent of track grouping. A built Graph is read-only and safe for
// concurrent readers; it is computed once per program and shared by the
// engine and the planner.
package graph
