package models

import (
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// CreateWorkflowRequest is the payload for registering a workflow definition.
type CreateWorkflowRequest struct {
	WorkflowID string                `json:"workflow_id"`
	Definition domain.DefinitionBody `json:"definition"`
}

type CreateWorkflowResponse struct {
	Message    string `json:"message"`
	WorkflowID string `json:"workflow_id"`
}

// WorkflowApiResponse represents a stored workflow definition.
type WorkflowApiResponse struct {
	WorkflowID string                  `json:"workflow_id"`
	Steps      []domain.StepDefinition `json:"steps"`
	Created    time.Time               `json:"created"`
	Version    int                     `json:"version"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func MapWorkflow(def *domain.WorkflowDefinition) WorkflowApiResponse {
	return WorkflowApiResponse{
		WorkflowID: def.WorkflowID,
		Steps:      def.Steps,
		Created:    def.Created,
		Version:    def.Version,
	}
}
