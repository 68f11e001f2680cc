package steps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

const (
	TypeLog  = "log"
	TypeFail = "fail"
)

// LogStep logs the step's "message" parameter and then simulates work for Delay.
type LogStep struct {
	Clock core.Clock
	Delay time.Duration
}

func (s LogStep) Execute(ctx context.Context, step domain.StepDefinition) error {
	message, ok := step.StringParam("message")
	if !ok {
		return Permanentf("log step requires a string message")
	}
	slog.InfoContext(ctx, message, "step_type", step.Type)
	if s.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Clock.After(s.Delay):
		return nil
	}
}

// FailStep always fails with its "reason" parameter. With "permanent": true the failure is not retryable.
type FailStep struct{}

func (FailStep) Execute(_ context.Context, step domain.StepDefinition) error {
	reason, ok := step.StringParam("reason")
	if !ok || reason == "" {
		reason = "step failed"
	}
	err := errors.New(reason)
	if step.BoolParam("permanent") {
		return Permanent(err)
	}
	return err
}

// RegisterBuiltins adds the built-in step types to r without replacing custom bindings.
func RegisterBuiltins(r *Registry, clock core.Clock, logDelay time.Duration) {
	r.RegisterDefault(TypeLog, LogStep{Clock: clock, Delay: logDelay})
	r.RegisterDefault(TypeFail, FailStep{})
}
