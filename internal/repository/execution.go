package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// ExecutionRepository is the Execution Record Store. Progress only moves through
// ConditionalAdvance, which is a compare-and-swap on current_step and status.
type ExecutionRepository struct {
	db *sql.DB
}

const EXECUTION_COLUMNS = ` workflow_id, execution_id, status, current_step, started_at, updated_at, completed_at, error_message `

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create writes the initial record. It never overwrites: an existing key yields domain.ErrExecutionExists.
func (r *ExecutionRepository) Create(ctx context.Context, rec *domain.ExecutionRecord) error {
	query := `
		INSERT INTO workflow_executions (` + EXECUTION_COLUMNS + `)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` +
		placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.WorkflowID,
		rec.ExecutionID,
		string(rec.Status),
		rec.CurrentStep,
		formatDateInDatabase(rec.StartedAt),
		formatDateInDatabase(rec.UpdatedAt),
		formatDateInDatabaseNull(rec.CompletedAt),
		nullString(rec.Error),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", domain.ErrExecutionExists, rec.WorkflowID, rec.ExecutionID)
		}
		return err
	}
	return nil
}

// Get returns the record for key or domain.ErrExecutionNotFound.
func (r *ExecutionRepository) Get(ctx context.Context, key domain.ExecutionKey) (*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE workflow_id = ` + placeholder(1) + ` AND execution_id = ` + placeholder(2) + `
	`
	rec, err := scanExecution(r.db.QueryRowContext(ctx, query, key.WorkflowID, key.ExecutionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrExecutionNotFound, key.WorkflowID, key.ExecutionID)
	}
	return rec, err
}

// ConditionalAdvance applies update only if the stored record is still RUNNING at expectedStep.
// It returns false, without mutating anything, when another writer got there first.
func (r *ExecutionRepository) ConditionalAdvance(ctx context.Context, key domain.ExecutionKey, expectedStep int, update domain.ExecutionUpdate) (bool, error) {
	query := `
		UPDATE workflow_executions
		SET status = ` + placeholder(1) + `, current_step = ` + placeholder(2) + `, updated_at = ` + placeholder(3) + `,
		    completed_at = ` + placeholder(4) + `, error_message = ` + placeholder(5) + `
		WHERE workflow_id = ` + placeholder(6) + ` AND execution_id = ` + placeholder(7) + `
		  AND current_step = ` + placeholder(8) + ` AND status = 'RUNNING'
	`
	result, err := r.db.ExecContext(ctx, query,
		string(update.Status),
		update.CurrentStep,
		formatDateInDatabase(update.UpdatedAt),
		formatDateInDatabaseNull(update.CompletedAt),
		nullString(update.Error),
		key.WorkflowID,
		key.ExecutionID,
		expectedStep,
	)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// FindStale returns RUNNING executions whose updated_at is before the given time, oldest first.
func (r *ExecutionRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE status = 'RUNNING' AND ` + dateBefore("updated_at", 1) + `
		ORDER BY updated_at ASC
		LIMIT ` + placeholder(2) + `
	`
	return r.queryExecutions(ctx, query, formatDateInDatabase(before), limit)
}

// Touch bumps updated_at of a stale RUNNING record still at expectedStep. Only one caller
// can win for a given staleness window, which makes it usable as a repair lock.
func (r *ExecutionRepository) Touch(ctx context.Context, key domain.ExecutionKey, expectedStep int, before time.Time, now time.Time) (bool, error) {
	query := `
		UPDATE workflow_executions
		SET updated_at = ` + placeholder(1) + `
		WHERE workflow_id = ` + placeholder(2) + ` AND execution_id = ` + placeholder(3) + `
		  AND current_step = ` + placeholder(4) + ` AND status = 'RUNNING'
		  AND ` + dateBefore("updated_at", 5) + `
	`
	result, err := r.db.ExecContext(ctx, query, formatDateInDatabase(now), key.WorkflowID, key.ExecutionID, expectedStep, formatDateInDatabase(before))
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// ListByWorkflow returns the most recently started executions of a workflow.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT ` + EXECUTION_COLUMNS + `
		FROM workflow_executions
		WHERE workflow_id = ` + placeholder(1) + `
		ORDER BY started_at DESC
		LIMIT ` + placeholder(2) + `
	`
	return r.queryExecutions(ctx, query, workflowID, limit)
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...interface{}) ([]domain.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ExecutionRecord, 0)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var status string
	err := row.Scan(
		&rec.WorkflowID,
		&rec.ExecutionID,
		&status,
		&rec.CurrentStep,
		&rec.StartedAt,
		&rec.UpdatedAt,
		&rec.CompletedAt,
		&rec.Error,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.ExecutionStatus(status)
	return &rec, nil
}
