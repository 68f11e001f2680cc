package engine

import (
	"context"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/queue"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// WorkflowStore resolves immutable workflow definitions, matching repository.WorkflowDefinitionRepository.
type WorkflowStore interface {
	Create(ctx context.Context, def *domain.WorkflowDefinition) error
	FindByID(ctx context.Context, workflowID string) (*domain.WorkflowDefinition, error)
	FindAll(ctx context.Context) ([]domain.WorkflowDefinition, error)
}

// ExecutionStore holds one record per execution, matching repository.ExecutionRepository.
// ConditionalAdvance must be a single compare-and-swap on (current_step, RUNNING).
type ExecutionStore interface {
	Create(ctx context.Context, rec *domain.ExecutionRecord) error
	Get(ctx context.Context, key domain.ExecutionKey) (*domain.ExecutionRecord, error)
	ConditionalAdvance(ctx context.Context, key domain.ExecutionKey, expectedStep int, update domain.ExecutionUpdate) (bool, error)
	FindStale(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error)
	Touch(ctx context.Context, key domain.ExecutionKey, expectedStep int, before time.Time, now time.Time) (bool, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.ExecutionRecord, error)
}

// ExecutionEventRepo defines the interface for the execution audit trail.
type ExecutionEventRepo interface {
	Save(ctx context.Context, e *domain.ExecutionEvent) (int64, error)
	FindAllByExecution(ctx context.Context, key domain.ExecutionKey) ([]domain.ExecutionEvent, error)
}

// ExecutorRepo defines the interface for executor persistence.
type ExecutorRepo interface {
	Save(ctx context.Context, e *domain.Executor) (int64, error)
	UpdateLastActive(ctx context.Context, id int64, ts time.Time) error
	GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error)
}

// StepEnqueuer is the producing half of the step queue.
type StepEnqueuer interface {
	Enqueue(ctx context.Context, msg domain.StepMessage) error
}

// StepQueue is an at-least-once, unordered step message channel.
// Receive may return deliveries together with an error when it fails partway through a
// batch; those deliveries are claimed and must still be settled.
type StepQueue interface {
	StepEnqueuer
	Receive(ctx context.Context, max int, visibility time.Duration) ([]queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
	Retry(ctx context.Context, d queue.Delivery, delay time.Duration) error
	DeadLetter(ctx context.Context, d queue.Delivery, reason string) error
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

// StepRunner executes one step definition, matching steps.Registry.
type StepRunner interface {
	Execute(ctx context.Context, step domain.StepDefinition) error
}
