package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/engine"
	"github.com/RealZimboGuy/stepflow/internal/util"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/models"
)

// WorkflowsController holds dependencies for workflow definition endpoints.
type WorkflowsController struct {
	Workflows engine.WorkflowStore
}

func NewWorkflowsController(workflows engine.WorkflowStore) *WorkflowsController {
	return &WorkflowsController{Workflows: workflows}
}

func (c *WorkflowsController) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.CreateWorkflowRequest](r)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validateCreateWorkflow(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	def := &domain.WorkflowDefinition{
		WorkflowID: req.WorkflowID,
		Steps:      req.Definition.Steps,
		Created:    time.Now().UTC(),
		Version:    1,
	}
	if err := c.Workflows.Create(r.Context(), def); err != nil {
		writeDomainError(w, r, err, "create workflow")
		return
	}
	slog.InfoContext(r.Context(), "Workflow created", "workflow_id", def.WorkflowID, "steps", def.TotalSteps())
	util.WriteJSONResponse(w, http.StatusCreated, models.CreateWorkflowResponse{
		Message:    "workflow created",
		WorkflowID: def.WorkflowID,
	})
}

func validateCreateWorkflow(req models.CreateWorkflowRequest) error {
	if strings.TrimSpace(req.WorkflowID) == "" {
		return errors.New("workflow_id is required")
	}
	if len(req.Definition.Steps) == 0 {
		return errors.New("definition.steps must contain at least one step")
	}
	for i, step := range req.Definition.Steps {
		if step.Type == "" {
			return fmt.Errorf("definition.steps[%d] is missing type", i)
		}
	}
	return nil
}

func (c *WorkflowsController) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs, err := c.Workflows.FindAll(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "list workflows")
		return
	}
	res := make([]models.WorkflowApiResponse, 0, len(defs))
	for i := range defs {
		res = append(res, models.MapWorkflow(&defs[i]))
	}
	util.WriteJSONResponse(w, http.StatusOK, res)
}

func (c *WorkflowsController) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := c.Workflows.FindByID(r.Context(), r.PathValue("workflow_id"))
	if err != nil {
		writeDomainError(w, r, err, "load workflow")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.MapWorkflow(def))
}
