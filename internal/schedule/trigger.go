package schedule

import (
	"fmt"
	"time"
)

// TriggerKind names a Trigger variant.
type TriggerKind string

const (
	KindManual       TriggerKind = "manual"
	KindProgramStart TriggerKind = "programStart"
	KindAfterStep    TriggerKind = "afterStep"
	KindAtOffset     TriggerKind = "atOffset"
)

// Trigger is the condition that moves a step from Waiting to Ready.
//
// Implementations: Manual, ProgramStart, AfterStep, AtOffset.
type Trigger interface {
	Kind() TriggerKind
	String() string
	trigger()
}

// Manual waits for an external signal.
type Manual struct{}

// ProgramStart fires when the program starts (virtual time 0).
type ProgramStart struct{}

// AfterStep fires Offset after the referenced step reaches Completed.
// The referenced step may live in any track.
type AfterStep struct {
	StepID string
	Offset time.Duration
}

// AtOffset fires Offset after program start.
type AtOffset struct {
	Offset time.Duration
}

func (Manual) Kind() TriggerKind       { return KindManual }
func (ProgramStart) Kind() TriggerKind { return KindProgramStart }
func (AfterStep) Kind() TriggerKind    { return KindAfterStep }
func (AtOffset) Kind() TriggerKind     { return KindAtOffset }

func (Manual) String() string       { return "manual" }
func (ProgramStart) String() string { return "programStart" }
func (t AfterStep) String() string {
	if t.Offset == 0 {
		return fmt.Sprintf("afterStep(%s)", t.StepID)
	}
	return fmt.Sprintf("afterStep(%s, +%s)", t.StepID, t.Offset)
}
func (t AtOffset) String() string { return fmt.Sprintf("atOffset(%s)", t.Offset) }

func (Manual) trigger()       {}
func (ProgramStart) trigger() {}
func (AfterStep) trigger()    {}
func (AtOffset) trigger()     {}

// Predecessor returns the step a trigger depends on, if any.
func Predecessor(t Trigger) (string, bool) {
	switch tr := t.(type) {
	case AfterStep:
		return tr.StepID, true
	case Manual, ProgramStart, AtOffset:
		return "", false
	default:
		panic(fmt.Sprintf("schedule: unknown trigger %T", t))
	}
}
