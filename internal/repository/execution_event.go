package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// ExecutionEventRepository persists the audit trail of execution transitions.
type ExecutionEventRepository struct {
	db *sql.DB
}

func NewExecutionEventRepository(db *sql.DB) *ExecutionEventRepository {
	return &ExecutionEventRepository{db: db}
}

// Save inserts a new execution event and returns its ID.
func (r *ExecutionEventRepository) Save(ctx context.Context, e *domain.ExecutionEvent) (int64, error) {
	base := `
		INSERT INTO execution_events (
			workflow_id, execution_id, executor_id, step_index, type, text, date_time
		) VALUES (
			` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `
		)`
	id, err := insertReturningID(ctx, r.db, base,
		e.WorkflowID,
		e.ExecutionID,
		e.ExecutorID,
		e.StepIndex,
		e.Type,
		e.Text,
		formatDateInDatabase(e.DateTime),
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save execution event", "error", err, "type", e.Type)
		return 0, err
	}
	e.ID = id
	return id, nil
}

// FindAllByExecution returns all events of one execution, newest first.
func (r *ExecutionEventRepository) FindAllByExecution(ctx context.Context, key domain.ExecutionKey) ([]domain.ExecutionEvent, error) {
	query := `
		SELECT id, workflow_id, execution_id, executor_id, step_index, type, text, date_time
		FROM execution_events
		WHERE workflow_id = ` + placeholder(1) + ` AND execution_id = ` + placeholder(2) + `
		ORDER BY id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, key.WorkflowID, key.ExecutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.ExecutionEvent, 0)
	for rows.Next() {
		var e domain.ExecutionEvent
		if err := rows.Scan(
			&e.ID,
			&e.WorkflowID,
			&e.ExecutionID,
			&e.ExecutorID,
			&e.StepIndex,
			&e.Type,
			&e.Text,
			&e.DateTime,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
