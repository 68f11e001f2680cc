package models

import (
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// StartExecutionResponse is returned as soon as the execution record exists and step 0 is queued.
type StartExecutionResponse struct {
	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ExecutionApiResponse represents an execution record.
type ExecutionApiResponse struct {
	WorkflowID  string     `json:"workflow_id"`
	ExecutionID string     `json:"execution_id"`
	Status      string     `json:"status"`
	CurrentStep int        `json:"current_step"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func MapExecution(rec *domain.ExecutionRecord) ExecutionApiResponse {
	res := ExecutionApiResponse{
		WorkflowID:  rec.WorkflowID,
		ExecutionID: rec.ExecutionID,
		Status:      string(rec.Status),
		CurrentStep: rec.CurrentStep,
		StartedAt:   rec.StartedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.CompletedAt.Valid {
		t := rec.CompletedAt.Time
		res.CompletedAt = &t
	}
	if rec.Error.Valid {
		res.Error = rec.Error.String
	}
	return res
}
