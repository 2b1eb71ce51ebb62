package service

import "strings"

// ExecutionMode selects how submitted jobs are dispatched.
type ExecutionMode string

const (
	// ModeQueue requires every job to be published to the distributed queue;
	// a publish failure is a submission error.
	ModeQueue ExecutionMode = "queue"
	// ModeInline runs every job in-process; the queue is never probed.
	ModeInline ExecutionMode = "inline"
	// ModeAuto prefers the queue and falls back to inline per submission.
	ModeAuto ExecutionMode = "auto"
)

// ParseExecutionMode is lenient: anything unrecognized resolves to auto, so a
// misconfigured deployment degrades to the safest behavior instead of refusing
// to start.
func ParseExecutionMode(s string) ExecutionMode {
	switch ExecutionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeQueue:
		return ModeQueue
	case ModeInline:
		return ModeInline
	default:
		return ModeAuto
	}
}
