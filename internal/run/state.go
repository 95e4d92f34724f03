// Package run defines the stage state machine for one collection run.
//
// Valid stage graph:
//
//	COLLECTING ──► DEDUPING ──► SCORING ──► CLASSIFYING ──► NOTIFYING ──► PERSISTING ──► DONE
//	    │              │            │             │              │              │
//	    └──────────────┴────────────┴─────────────┴──────────────┴──────────────┴──► FAILED
//
// DONE and FAILED are terminal. There is no mid-pipeline resume: a failed
// run keeps whatever it already persisted, and the next scheduled run starts
// from COLLECTING again.
package run

import "fmt"

// Stage values mirror the run_summaries.stage column.
type Stage string

const (
	StageCollecting  Stage = "COLLECTING"
	StageDeduping    Stage = "DEDUPING"
	StageScoring     Stage = "SCORING"
	StageClassifying Stage = "CLASSIFYING"
	StageNotifying   Stage = "NOTIFYING"
	StagePersisting  Stage = "PERSISTING"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Stage][]Stage{
	StageCollecting:  {StageDeduping, StageFailed},
	StageDeduping:    {StageScoring, StageFailed},
	StageScoring:     {StageClassifying, StageFailed},
	StageClassifying: {StageNotifying, StageFailed},
	StageNotifying:   {StagePersisting, StageFailed},
	StagePersisting:  {StageDone, StageFailed},
	// DONE and FAILED are terminal — no outgoing transitions
}

// ParseStage converts a raw string to a Stage, returning an error for
// unknown values.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	switch st {
	case StageCollecting, StageDeduping, StageScoring, StageClassifying,
		StageNotifying, StagePersisting, StageDone, StageFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown run stage %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Stage) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal stage — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for DONE and FAILED.
func IsTerminal(s Stage) bool { return s == StageDone || s == StageFailed }

// Tracker advances a run through its stages and rejects illegal jumps.
// A rejected advance is a programming error in the pipeline, so Advance
// returns it rather than panicking.
type Tracker struct {
	current    Stage
	failReason string
}

// NewTracker starts a run in COLLECTING.
func NewTracker() *Tracker {
	return &Tracker{current: StageCollecting}
}

// Current returns the stage the run is in.
func (t *Tracker) Current() Stage { return t.current }

// FailReason returns the reason recorded by Fail, if any.
func (t *Tracker) FailReason() string { return t.failReason }

// Advance moves the run to the next stage.
func (t *Tracker) Advance(to Stage) error {
	if !IsTransitionAllowed(t.current, to) {
		return fmt.Errorf("illegal stage transition %s → %s", t.current, to)
	}
	t.current = to
	return nil
}

// Fail moves the run to FAILED from any non-terminal stage, recording the
// stage it failed in and why.
func (t *Tracker) Fail(reason error) error {
	if IsTerminal(t.current) {
		return fmt.Errorf("run already terminal in %s", t.current)
	}
	t.failReason = fmt.Sprintf("%s: %v", t.current, reason)
	t.current = StageFailed
	return nil
}
