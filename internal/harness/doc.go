// Package harness runs YAML scenarios against the execution engine.
//
// A scenario names a program (a document path, or the document inline),
// drives the engine with a script of control actions, and checks the
// resulting event trace and final step states:
//
//	name: burners
//	description: three steps contend for two burners
//	program: programs/burners.yaml
//	script:
//	  - do: start
//	  - do: advance
//	    by: 2m
//	assertions:
//	  - type: trace_contains
//	    step: c
//	    to: running
//	    at: 1m0s
//	  - type: final_state
//	    states: {a: completed, b: completed, c: completed}
//
// Every scenario runs on a fresh engine with a fixed run ID, so traces are
// reproducible and can be compared against golden files with RunWithGolden.
package harness
