package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/stepflow/internal/engine"
	"github.com/RealZimboGuy/stepflow/internal/util"
)

type ExecutorsController struct {
	ExecutorsRepo engine.ExecutorRepo
}

func NewExecutorsController(executorsRepo engine.ExecutorRepo) *ExecutorsController {
	return &ExecutorsController{ExecutorsRepo: executorsRepo}
}

func (c *ExecutorsController) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	slog.Debug("GetExecutors called")

	results, err := c.ExecutorsRepo.GetExecutorsByLastActive(r.Context(), 20)
	if err != nil {
		writeDomainError(w, r, err, "list executors")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
