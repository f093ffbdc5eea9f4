package schedule

// StepState is the runtime state of a step during one run.
// It is owned by the engine and never stored on the Program.
type StepState string

const (
	StateWaiting   StepState = "waiting"
	StateReady     StepState = "ready"
	StateRunning   StepState = "running"
	StateCompleted StepState = "completed"
	StateBlocked   StepState = "blocked"
	StateCancelled StepState = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s StepState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}
