package domain

import "time"

const (
	EventStarted          = "STARTED"
	EventStepSucceeded    = "STEP_SUCCEEDED"
	EventCompleted        = "COMPLETED"
	EventFailed           = "FAILED"
	EventDuplicateDropped = "DUPLICATE_DROPPED"
	EventRaceLost         = "RACE_LOST"
	EventRepaired         = "REPAIRED"
	EventDeadLettered     = "DEAD_LETTERED"
	EventDispatchFailed   = "DISPATCH_FAILED"
)

// ExecutionEvent is one row of an execution's audit trail.
type ExecutionEvent struct {
	ID          int64     `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	ExecutorID  int64     `json:"executor_id"`
	StepIndex   int       `json:"step_index"`
	Type        string    `json:"type"`
	Text        string    `json:"text"`
	DateTime    time.Time `json:"date_time"`
}
