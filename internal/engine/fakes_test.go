package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/testutil"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

func newTestClock() *testutil.FakeClock {
	return testutil.NewFakeClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
}

// memWorkflowStore implements WorkflowStore
type memWorkflowStore struct {
	mu   sync.Mutex
	defs map[string]domain.WorkflowDefinition
	err  error
}

func newMemWorkflowStore(defs ...domain.WorkflowDefinition) *memWorkflowStore {
	s := &memWorkflowStore{defs: make(map[string]domain.WorkflowDefinition)}
	for _, d := range defs {
		s.defs[d.WorkflowID] = d
	}
	return s
}

func (s *memWorkflowStore) Create(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.WorkflowID]; ok {
		return domain.ErrWorkflowExists
	}
	s.defs[def.WorkflowID] = *def
	return nil
}
func (s *memWorkflowStore) FindByID(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	d, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	return &d, nil
}
func (s *memWorkflowStore) FindAll(_ context.Context) ([]domain.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkflowDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out, nil
}

// memExecutionStore implements ExecutionStore with the same compare-and-swap rule as the SQL repository
type memExecutionStore struct {
	mu        sync.Mutex
	records   map[domain.ExecutionKey]domain.ExecutionRecord
	advances  int
	advanceFn func(key domain.ExecutionKey, update domain.ExecutionUpdate) error
}

func newMemExecutionStore() *memExecutionStore {
	return &memExecutionStore{records: make(map[domain.ExecutionKey]domain.ExecutionRecord)}
}

func (s *memExecutionStore) Create(_ context.Context, rec *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key()]; ok {
		return domain.ErrExecutionExists
	}
	s.records[rec.Key()] = *rec
	return nil
}
func (s *memExecutionStore) Get(_ context.Context, key domain.ExecutionKey) (*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrExecutionNotFound, key.WorkflowID, key.ExecutionID)
	}
	return &rec, nil
}
func (s *memExecutionStore) ConditionalAdvance(_ context.Context, key domain.ExecutionKey, expectedStep int, update domain.ExecutionUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceFn != nil {
		if err := s.advanceFn(key, update); err != nil {
			return false, err
		}
	}
	rec, ok := s.records[key]
	if !ok || rec.Status != domain.StatusRunning || rec.CurrentStep != expectedStep {
		return false, nil
	}
	rec.Status = update.Status
	rec.CurrentStep = update.CurrentStep
	rec.UpdatedAt = update.UpdatedAt
	rec.CompletedAt = update.CompletedAt
	rec.Error = update.Error
	s.records[key] = rec
	s.advances++
	return true, nil
}
func (s *memExecutionStore) FindStale(_ context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExecutionRecord, 0)
	for _, rec := range s.records {
		if rec.Status == domain.StatusRunning && rec.UpdatedAt.Before(before) && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}
func (s *memExecutionStore) Touch(_ context.Context, key domain.ExecutionKey, expectedStep int, before time.Time, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Status != domain.StatusRunning || rec.CurrentStep != expectedStep || !rec.UpdatedAt.Before(before) {
		return false, nil
	}
	rec.UpdatedAt = now
	s.records[key] = rec
	return true, nil
}
func (s *memExecutionStore) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExecutionRecord, 0)
	for _, rec := range s.records {
		if rec.WorkflowID == workflowID && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}
func (s *memExecutionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// MockEventRepo implements ExecutionEventRepo
type MockEventRepo struct {
	mu     sync.Mutex
	events []domain.ExecutionEvent
}

func (m *MockEventRepo) Save(_ context.Context, e *domain.ExecutionEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return int64(len(m.events)), nil
}
func (m *MockEventRepo) FindAllByExecution(_ context.Context, key domain.ExecutionKey) ([]domain.ExecutionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ExecutionEvent, 0)
	for _, e := range m.events {
		if e.WorkflowID == key.WorkflowID && e.ExecutionID == key.ExecutionID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (m *MockEventRepo) countType(typ string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// MockExecutorRepo implements ExecutorRepo
type MockExecutorRepo struct {
	SaveFunc                     func(e *domain.Executor) (int64, error)
	UpdateLastActiveFunc         func(id int64, ts time.Time) error
	GetExecutorsByLastActiveFunc func(limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) Save(_ context.Context, e *domain.Executor) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(e)
	}
	return 1, nil
}
func (m *MockExecutorRepo) UpdateLastActive(_ context.Context, id int64, ts time.Time) error {
	if m.UpdateLastActiveFunc != nil {
		return m.UpdateLastActiveFunc(id, ts)
	}
	return nil
}
func (m *MockExecutorRepo) GetExecutorsByLastActive(_ context.Context, limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(limit)
	}
	return nil, nil
}

// failingEnqueuer implements StepEnqueuer and always fails
type failingEnqueuer struct{ err error }

func (f failingEnqueuer) Enqueue(context.Context, domain.StepMessage) error { return f.err }

func step(typ string) domain.StepDefinition {
	return domain.StepDefinition{Type: typ, Params: map[string]any{}}
}

func workflow(id string, types ...string) domain.WorkflowDefinition {
	steps := make([]domain.StepDefinition, 0, len(types))
	for _, t := range types {
		steps = append(steps, step(t))
	}
	return domain.WorkflowDefinition{WorkflowID: id, Steps: steps, Version: 1}
}
