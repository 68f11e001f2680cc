// Package steps holds the step executor registry and the built-in step types.
//
// A step executor performs the effect of one step and reports success (nil) or failure.
// Executors can be invoked more than once for the same step of the same execution
// because the step queue delivers at least once; they should be idempotent or tolerate
// duplicate side effects.
package steps

import (
	"context"
	"fmt"
	"sync"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// Executor runs one step definition.
type Executor interface {
	Execute(ctx context.Context, step domain.StepDefinition) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, step domain.StepDefinition) error

func (f ExecutorFunc) Execute(ctx context.Context, step domain.StepDefinition) error {
	return f(ctx, step)
}

// Registry dispatches a step to the executor registered for its type.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds an executor to a step type, replacing any previous binding.
func (r *Registry) Register(stepType string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[stepType] = e
}

// RegisterDefault binds e only when nothing is registered for stepType yet.
func (r *Registry) RegisterDefault(stepType string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[stepType]; !ok {
		r.executors[stepType] = e
	}
}

// Types lists the registered step types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}

// Execute runs step. An unregistered type is a permanent failure.
func (r *Registry) Execute(ctx context.Context, step domain.StepDefinition) error {
	r.mu.RLock()
	e, ok := r.executors[step.Type]
	r.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type))
	}
	return e.Execute(ctx, step)
}
