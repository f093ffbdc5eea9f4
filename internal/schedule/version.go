package schedule

// Version constants for the schedule model and engine.
const (
	// SchemaVersion is the program document schema version understood by this module.
	SchemaVersion = "1"

	// EngineVersion is the cadence engine version.
	EngineVersion = "0.1.0"
)
