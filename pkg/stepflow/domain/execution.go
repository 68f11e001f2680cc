package domain

import (
	"database/sql"
	"time"
)

// ExecutionStatus is the lifecycle state of one execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
)

// IsTerminal reports whether no further transition may leave this status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s ExecutionStatus) Valid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// ExecutionKey identifies exactly one execution record.
type ExecutionKey struct {
	WorkflowID  string
	ExecutionID string
}

// ExecutionRecord is the durable truth of an execution's progress.
// CurrentStep is only meaningful together with Status.
type ExecutionRecord struct {
	WorkflowID  string
	ExecutionID string
	Status      ExecutionStatus
	CurrentStep int
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt sql.NullTime
	Error       sql.NullString
}

func (r *ExecutionRecord) Key() ExecutionKey {
	return ExecutionKey{WorkflowID: r.WorkflowID, ExecutionID: r.ExecutionID}
}

// ExecutionUpdate is the set of fields written by one conditional advance.
type ExecutionUpdate struct {
	Status      ExecutionStatus
	CurrentStep int
	UpdatedAt   time.Time
	CompletedAt sql.NullTime
	Error       sql.NullString
}
