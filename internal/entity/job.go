package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// Valid returns true if the status is one of the four known states.
func (s JobStatus) Valid() bool {
	return s == StatusPending || s == StatusRunning || s == StatusCompleted || s == StatusFailed
}

// Terminal returns true for states that permit no further transition.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes the job state machine:
//
//	PENDING -> RUNNING
//	RUNNING -> COMPLETED | FAILED
//
// No transition skips RUNNING and terminal states are immutable.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Job is the persisted unit of schedulable work. It is created PENDING by the
// dispatcher and only the worker moves it to a terminal state. Re-runs create
// a new Job; Module and CaseID never change after creation.
type Job struct {
	ID            uuid.UUID       `json:"id"`
	CaseID        uuid.UUID       `json:"case_id"`
	EvidenceID    *uuid.UUID      `json:"evidence_id,omitempty"`
	Module        string          `json:"module"`
	Params        json.RawMessage `json:"params"`
	Status        JobStatus       `json:"status"`
	QueuedAt      time.Time       `json:"queued_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ResultPreview json.RawMessage `json:"result_preview,omitempty"`
	OutputFiles   []string        `json:"output_files"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	// DispatchToken records how the job was scheduled ("queue:<id>" or
	// "inline:<id>"). Diagnostics only, never consulted for correctness.
	DispatchToken string    `json:"dispatch_token,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewJob builds a PENDING job with queued_at set. Params must already carry
// the injected actor and evidence reference.
func NewJob(caseID uuid.UUID, evidenceID *uuid.UUID, module string, params json.RawMessage, now time.Time) *Job {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	return &Job{
		ID:         uuid.New(),
		CaseID:     caseID,
		EvidenceID: evidenceID,
		Module:     module,
		Params:     params,
		Status:     StatusPending,
		QueuedAt:   now,
		CreatedAt:  now,
	}
}
