package engine

import (
	"errors"
	"fmt"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// ErrStepAhead means a message names a step the execution has not reached yet.
// It is transient: the message is retried later rather than executed.
var ErrStepAhead = errors.New("step message is ahead of execution")

// ErrStepOutOfRange means a message names a step the workflow definition does not have.
var ErrStepOutOfRange = errors.New("step index outside workflow definition")

// ErrDispatchFailed means an execution record was written but its first step could not be
// enqueued. The record is closed as FAILED with a reason carrying this prefix.
var ErrDispatchFailed = errors.New("dispatch failed")

// StepFailedError is returned by AdvanceStep after the execution was moved to FAILED.
// The queue layer decides what to do with the message; Permanent failures go straight
// to the dead letter channel.
type StepFailedError struct {
	Key       domain.ExecutionKey
	StepIndex int
	Err       error
	Permanent bool
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %d of execution %s/%s failed: %v", e.StepIndex, e.Key.WorkflowID, e.Key.ExecutionID, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }
