package controllers

import (
	"context"
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// Mock collaborators for controller tests

type MockWorkflowStore struct {
	CreateFunc   func(def *domain.WorkflowDefinition) error
	FindByIDFunc func(id string) (*domain.WorkflowDefinition, error)
	FindAllFunc  func() ([]domain.WorkflowDefinition, error)
}

func (m *MockWorkflowStore) Create(_ context.Context, def *domain.WorkflowDefinition) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(def)
	}
	return nil
}
func (m *MockWorkflowStore) FindByID(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, domain.ErrWorkflowNotFound
}
func (m *MockWorkflowStore) FindAll(context.Context) ([]domain.WorkflowDefinition, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc()
	}
	return nil, nil
}

type MockExecutionService struct {
	StartExecutionFunc     func(workflowID string) (*domain.ExecutionRecord, error)
	GetExecutionStatusFunc func(workflowID, executionID string) (*domain.ExecutionRecord, error)
}

func (m *MockExecutionService) StartExecution(_ context.Context, workflowID string) (*domain.ExecutionRecord, error) {
	if m.StartExecutionFunc != nil {
		return m.StartExecutionFunc(workflowID)
	}
	return nil, domain.ErrWorkflowNotFound
}
func (m *MockExecutionService) GetExecutionStatus(_ context.Context, workflowID, executionID string) (*domain.ExecutionRecord, error) {
	if m.GetExecutionStatusFunc != nil {
		return m.GetExecutionStatusFunc(workflowID, executionID)
	}
	return nil, domain.ErrExecutionNotFound
}

type MockExecutionStore struct {
	ListByWorkflowFunc func(workflowID string, limit int) ([]domain.ExecutionRecord, error)
}

func (m *MockExecutionStore) Create(context.Context, *domain.ExecutionRecord) error { return nil }
func (m *MockExecutionStore) Get(context.Context, domain.ExecutionKey) (*domain.ExecutionRecord, error) {
	return nil, domain.ErrExecutionNotFound
}
func (m *MockExecutionStore) ConditionalAdvance(context.Context, domain.ExecutionKey, int, domain.ExecutionUpdate) (bool, error) {
	return false, nil
}
func (m *MockExecutionStore) FindStale(context.Context, time.Time, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}
func (m *MockExecutionStore) Touch(context.Context, domain.ExecutionKey, int, time.Time, time.Time) (bool, error) {
	return false, nil
}
func (m *MockExecutionStore) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]domain.ExecutionRecord, error) {
	if m.ListByWorkflowFunc != nil {
		return m.ListByWorkflowFunc(workflowID, limit)
	}
	return nil, nil
}

type MockEventRepo struct {
	FindAllByExecutionFunc func(key domain.ExecutionKey) ([]domain.ExecutionEvent, error)
}

func (m *MockEventRepo) Save(context.Context, *domain.ExecutionEvent) (int64, error) { return 1, nil }
func (m *MockEventRepo) FindAllByExecution(_ context.Context, key domain.ExecutionKey) ([]domain.ExecutionEvent, error) {
	if m.FindAllByExecutionFunc != nil {
		return m.FindAllByExecutionFunc(key)
	}
	return nil, nil
}

type MockExecutorRepo struct {
	GetExecutorsByLastActiveFunc func(limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) Save(context.Context, *domain.Executor) (int64, error) { return 1, nil }
func (m *MockExecutorRepo) UpdateLastActive(context.Context, int64, time.Time) error {
	return nil
}
func (m *MockExecutorRepo) GetExecutorsByLastActive(_ context.Context, limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(limit)
	}
	return nil, nil
}

type MockDeadLetters struct {
	ListDeadLettersFunc func(limit int) ([]domain.DeadLetter, error)
}

func (m *MockDeadLetters) ListDeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	if m.ListDeadLettersFunc != nil {
		return m.ListDeadLettersFunc(limit)
	}
	return nil, nil
}

type mockWaker struct{ calls int }

func (m *mockWaker) Wakeup() { m.calls++ }
