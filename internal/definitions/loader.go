// Package definitions loads workflow definitions from a YAML seed file and
// registers the ones the workflow store does not know yet.
package definitions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Workflows []seedWorkflow `yaml:"workflows"`
}

type seedWorkflow struct {
	WorkflowID string           `yaml:"workflow_id"`
	Steps      []map[string]any `yaml:"steps"`
}

// Creator is the part of the workflow store used for seeding.
type Creator interface {
	Create(ctx context.Context, def *domain.WorkflowDefinition) error
}

// Parse decodes a seed document:
//
//	workflows:
//	  - workflow_id: orders
//	    steps:
//	      - type: log
//	        message: received
func Parse(data []byte, now time.Time) ([]domain.WorkflowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("definitions: seed payload is empty")
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("definitions: decode: %w", err)
	}

	seen := make(map[string]bool, len(f.Workflows))
	defs := make([]domain.WorkflowDefinition, 0, len(f.Workflows))
	for i, wf := range f.Workflows {
		if wf.WorkflowID == "" {
			return nil, fmt.Errorf("definitions: workflow #%d: %w: workflow_id is required", i, domain.ErrInvalidInput)
		}
		if seen[wf.WorkflowID] {
			return nil, fmt.Errorf("definitions: workflow %s is declared twice", wf.WorkflowID)
		}
		seen[wf.WorkflowID] = true
		if len(wf.Steps) == 0 {
			return nil, fmt.Errorf("definitions: workflow %s: %w: no steps", wf.WorkflowID, domain.ErrInvalidInput)
		}

		steps := make([]domain.StepDefinition, 0, len(wf.Steps))
		for j, raw := range wf.Steps {
			step, err := domain.StepFromMap(raw)
			if err != nil {
				return nil, fmt.Errorf("definitions: workflow %s step %d: %w", wf.WorkflowID, j, err)
			}
			steps = append(steps, step)
		}
		defs = append(defs, domain.WorkflowDefinition{WorkflowID: wf.WorkflowID, Steps: steps, Created: now, Version: 1})
	}
	return defs, nil
}

// LoadFile reads and parses a seed file.
func LoadFile(path string, now time.Time) ([]domain.WorkflowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("definitions: read %s: %w", path, err)
	}
	defs, err := Parse(content, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Seed creates every definition the store does not have. Existing definitions are immutable
// and left as they are, even when the seed file changed.
func Seed(ctx context.Context, store Creator, defs []domain.WorkflowDefinition) (int, error) {
	created := 0
	for i := range defs {
		def := &defs[i]
		err := store.Create(ctx, def)
		switch {
		case err == nil:
			created++
			slog.InfoContext(ctx, "Registered workflow definition", "workflow_id", def.WorkflowID, "steps", def.TotalSteps())
		case errors.Is(err, domain.ErrWorkflowExists):
			slog.DebugContext(ctx, "Workflow definition already registered", "workflow_id", def.WorkflowID)
		default:
			return created, fmt.Errorf("seed workflow %s: %w", def.WorkflowID, err)
		}
	}
	return created, nil
}
