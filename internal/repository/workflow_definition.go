package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// WorkflowDefinitionRepository is the Workflow Store: workflow id -> immutable ordered steps.
type WorkflowDefinitionRepository struct {
	db *sql.DB
}

func NewWorkflowDefinitionRepository(db *sql.DB) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db}
}

// Create inserts a new workflow definition. Definitions are never updated, so an existing id
// yields domain.ErrWorkflowExists.
func (r *WorkflowDefinitionRepository) Create(ctx context.Context, def *domain.WorkflowDefinition) error {
	body, err := json.Marshal(domain.DefinitionBody{Steps: def.Steps})
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	if def.Version == 0 {
		def.Version = 1
	}
	query := `
		INSERT INTO workflows (workflow_id, definition, created, version)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `)
	`
	_, err = r.db.ExecContext(ctx, query, def.WorkflowID, string(body), formatDateInDatabase(def.Created), def.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrWorkflowExists, def.WorkflowID)
		}
		return err
	}
	return nil
}

// FindByID fetches a workflow definition by its id.
func (r *WorkflowDefinitionRepository) FindByID(ctx context.Context, workflowID string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT workflow_id, definition, created, version
		FROM workflows WHERE workflow_id = ` + placeholder(1) + `
	`
	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, workflowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// FindAll returns all workflow definitions ordered by id.
func (r *WorkflowDefinitionRepository) FindAll(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	query := `
		SELECT workflow_id, definition, created, version
		FROM workflows
		ORDER BY workflow_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.WorkflowDefinition, 0)
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	var body string
	if err := row.Scan(&def.WorkflowID, &body, &def.Created, &def.Version); err != nil {
		return nil, err
	}
	var parsed domain.DefinitionBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("parse definition of %s: %w", def.WorkflowID, err)
	}
	def.Steps = parsed.Steps
	return &def, nil
}
