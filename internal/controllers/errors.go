package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/stepflow/internal/util"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

func writeError(w http.ResponseWriter, status int, msg string) {
	util.WriteJSONResponse(w, status, models.ErrorResponse{Error: msg})
}

// writeDomainError maps sentinel errors to client statuses, anything else is a 500
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrExecutionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrWorkflowExists), errors.Is(err, domain.ErrExecutionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Failed to "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxListLimit {
		return 0, errors.New("limit cannot be greater than 1000")
	}
	return limit, nil
}
