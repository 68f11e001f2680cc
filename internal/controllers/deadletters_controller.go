package controllers

import (
	"context"
	"net/http"

	"github.com/RealZimboGuy/stepflow/internal/util"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// DeadLetterLister is implemented by every step queue backend.
type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

type DeadLettersController struct {
	Queue DeadLetterLister
}

func NewDeadLettersController(q DeadLetterLister) *DeadLettersController {
	return &DeadLettersController{Queue: q}
}

func (c *DeadLettersController) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dls, err := c.Queue.ListDeadLetters(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err, "list dead letters")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, dls)
}
