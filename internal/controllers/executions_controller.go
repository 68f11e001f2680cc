package controllers

import (
	"context"
	"net/http"

	"github.com/RealZimboGuy/stepflow/internal/engine"
	"github.com/RealZimboGuy/stepflow/internal/util"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/models"
)

// ExecutionService is the part of the orchestrator exposed over HTTP.
type ExecutionService interface {
	StartExecution(ctx context.Context, workflowID string) (*domain.ExecutionRecord, error)
	GetExecutionStatus(ctx context.Context, workflowID, executionID string) (*domain.ExecutionRecord, error)
}

// Waker is notified after a start so the consumer polls straight away.
type Waker interface {
	Wakeup()
}

type ExecutionsController struct {
	Service    ExecutionService
	Executions engine.ExecutionStore
	Events     engine.ExecutionEventRepo
	Waker      Waker
}

func NewExecutionsController(service ExecutionService, executions engine.ExecutionStore, events engine.ExecutionEventRepo, waker Waker) *ExecutionsController {
	return &ExecutionsController{Service: service, Executions: executions, Events: events, Waker: waker}
}

func (c *ExecutionsController) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := c.Service.StartExecution(r.Context(), r.PathValue("workflow_id"))
	if err != nil {
		writeDomainError(w, r, err, "start execution")
		return
	}
	if c.Waker != nil {
		c.Waker.Wakeup()
	}
	util.WriteJSONResponse(w, http.StatusCreated, models.StartExecutionResponse{
		WorkflowID:  rec.WorkflowID,
		ExecutionID: rec.ExecutionID,
		Status:      string(rec.Status),
	})
}

func (c *ExecutionsController) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := c.Executions.ListByWorkflow(r.Context(), r.PathValue("workflow_id"), limit)
	if err != nil {
		writeDomainError(w, r, err, "list executions")
		return
	}
	res := make([]models.ExecutionApiResponse, 0, len(recs))
	for i := range recs {
		res = append(res, models.MapExecution(&recs[i]))
	}
	util.WriteJSONResponse(w, http.StatusOK, res)
}

func (c *ExecutionsController) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := c.Service.GetExecutionStatus(r.Context(), r.PathValue("workflow_id"), r.PathValue("execution_id"))
	if err != nil {
		writeDomainError(w, r, err, "load execution")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.MapExecution(rec))
}

func (c *ExecutionsController) handleGetExecutionEvents(w http.ResponseWriter, r *http.Request) {
	key := domain.ExecutionKey{WorkflowID: r.PathValue("workflow_id"), ExecutionID: r.PathValue("execution_id")}
	if _, err := c.Service.GetExecutionStatus(r.Context(), key.WorkflowID, key.ExecutionID); err != nil {
		writeDomainError(w, r, err, "load execution")
		return
	}
	events, err := c.Events.FindAllByExecution(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, err, "load execution events")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, events)
}
