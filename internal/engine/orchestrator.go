package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/steps"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"

	"github.com/google/uuid"
)

const repairBatchSize = 100

// Orchestrator moves executions through their workflow one step at a time.
// All progress is written through ExecutionStore.ConditionalAdvance, so any number of
// duplicate or concurrent deliveries of the same step message advance an execution once.
type Orchestrator struct {
	Workflows   WorkflowStore
	Executions  ExecutionStore
	Events      ExecutionEventRepo
	Queue       StepEnqueuer
	Steps       StepRunner
	clock       core.Clock
	executorID  atomic.Int64
	repairAfter time.Duration
}

func NewOrchestrator(workflows WorkflowStore, executions ExecutionStore, events ExecutionEventRepo,
	queue StepEnqueuer, runner StepRunner, clock core.Clock) *Orchestrator {
	return &Orchestrator{
		Workflows:   workflows,
		Executions:  executions,
		Events:      events,
		Queue:       queue,
		Steps:       runner,
		clock:       clock,
		repairAfter: 5 * time.Minute,
	}
}

// SetExecutorID tags audit events written by this instance.
func (o *Orchestrator) SetExecutorID(id int64) { o.executorID.Store(id) }

// SetRepairAfter sets how long a RUNNING execution may sit untouched before RepairStale re-dispatches it.
func (o *Orchestrator) SetRepairAfter(d time.Duration) {
	if d > 0 {
		o.repairAfter = d
	}
}

// StartExecution creates a RUNNING record at step 0 under a fresh execution id and
// enqueues the first step. The record is written before the message so a consumer
// can never observe a message for an execution that does not exist.
func (o *Orchestrator) StartExecution(ctx context.Context, workflowID string) (*domain.ExecutionRecord, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("%w: workflow_id is required", domain.ErrInvalidInput)
	}
	def, err := o.Workflows.FindByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	first, ok := def.Step(0)
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s has no steps", domain.ErrInvalidInput, workflowID)
	}

	now := o.clock.Now()
	rec := &domain.ExecutionRecord{
		WorkflowID:  workflowID,
		ExecutionID: uuid.NewString(),
		Status:      domain.StatusRunning,
		CurrentStep: 0,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.Executions.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	msg := domain.StepMessage{WorkflowID: workflowID, ExecutionID: rec.ExecutionID, StepIndex: 0, Step: first}
	if err := o.Queue.Enqueue(ctx, msg); err != nil {
		// nothing will ever drive this record, close it so the caller's error is the whole story
		reason := fmt.Sprintf("%s: enqueue step 0: %v", ErrDispatchFailed, err)
		applied, ferr := o.Executions.ConditionalAdvance(ctx, rec.Key(), 0, failedUpdate(o.clock.Now(), 0, reason))
		if ferr != nil {
			slog.ErrorContext(ctx, "Failed to close execution after enqueue failure, repair will re-dispatch it",
				"workflow_id", workflowID, "execution_id", rec.ExecutionID, "error", ferr)
		} else if applied {
			o.recordEvent(ctx, rec.Key(), 0, domain.EventDispatchFailed, reason)
		}
		return nil, fmt.Errorf("%w: enqueue step 0: %w", ErrDispatchFailed, err)
	}

	slog.InfoContext(ctx, "Execution started", "workflow_id", workflowID, "execution_id", rec.ExecutionID, "total_steps", def.TotalSteps())
	o.recordEvent(ctx, rec.Key(), 0, domain.EventStarted, fmt.Sprintf("Started with %d steps", def.TotalSteps()))
	return rec, nil
}

// AdvanceStep handles one delivery of a step message. A nil return means the message
// can be acknowledged: either the step was applied, or it was a stale duplicate or a lost race.
// Errors wrapping steps.PermanentError will never succeed on redelivery.
func (o *Orchestrator) AdvanceStep(ctx context.Context, msg domain.StepMessage) error {
	key := msg.Key()
	log := slog.With("workflow_id", key.WorkflowID, "execution_id", key.ExecutionID, "step_index", msg.StepIndex)

	rec, err := o.Executions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			return steps.Permanent(err)
		}
		return fmt.Errorf("load execution: %w", err)
	}

	if rec.Status.IsTerminal() || rec.CurrentStep > msg.StepIndex {
		log.InfoContext(ctx, "Dropping duplicate step message", "status", rec.Status, "current_step", rec.CurrentStep)
		o.recordEvent(ctx, key, msg.StepIndex, domain.EventDuplicateDropped,
			fmt.Sprintf("Execution is %s at step %d", rec.Status, rec.CurrentStep))
		return nil
	}
	if rec.CurrentStep < msg.StepIndex {
		return fmt.Errorf("%w: message step %d, execution step %d", ErrStepAhead, msg.StepIndex, rec.CurrentStep)
	}

	def, err := o.Workflows.FindByID(ctx, key.WorkflowID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			return steps.Permanent(err)
		}
		return fmt.Errorf("load workflow: %w", err)
	}
	total := def.TotalSteps()
	if msg.StepIndex < 0 || msg.StepIndex >= total {
		reason := fmt.Sprintf("step %d outside workflow of %d steps", msg.StepIndex, total)
		if _, err := o.Executions.ConditionalAdvance(ctx, key, msg.StepIndex, failedUpdate(o.clock.Now(), msg.StepIndex, reason)); err != nil {
			return fmt.Errorf("record step failure: %w", err)
		}
		return steps.Permanent(fmt.Errorf("%w: %s", ErrStepOutOfRange, reason))
	}

	log.DebugContext(ctx, "Executing step", "type", msg.Step.Type)
	stepErr := o.runStep(ctx, msg.Step)
	if stepErr != nil && ctx.Err() != nil {
		// interrupted by shutdown, not a step failure; the message becomes visible again
		return fmt.Errorf("step interrupted: %w", ctx.Err())
	}
	now := o.clock.Now()

	if stepErr != nil {
		applied, err := o.Executions.ConditionalAdvance(ctx, key, msg.StepIndex, failedUpdate(now, msg.StepIndex, stepErr.Error()))
		if err != nil {
			return fmt.Errorf("record step failure: %w (step error: %v)", err, stepErr)
		}
		if !applied {
			o.raceLost(ctx, log, key, msg.StepIndex)
			return nil
		}
		log.WarnContext(ctx, "Execution failed", "error", stepErr)
		o.recordEvent(ctx, key, msg.StepIndex, domain.EventFailed, stepErr.Error())
		return &StepFailedError{Key: key, StepIndex: msg.StepIndex, Err: stepErr, Permanent: steps.IsPermanent(stepErr)}
	}

	next := msg.StepIndex + 1
	if next >= total {
		update := domain.ExecutionUpdate{
			Status:      domain.StatusCompleted,
			CurrentStep: total,
			UpdatedAt:   now,
			CompletedAt: sql.NullTime{Time: now, Valid: true},
		}
		applied, err := o.Executions.ConditionalAdvance(ctx, key, msg.StepIndex, update)
		if err != nil {
			return fmt.Errorf("record completion: %w", err)
		}
		if !applied {
			o.raceLost(ctx, log, key, msg.StepIndex)
			return nil
		}
		log.InfoContext(ctx, "Execution completed")
		o.recordEvent(ctx, key, msg.StepIndex, domain.EventCompleted, fmt.Sprintf("Completed %d steps", total))
		return nil
	}

	update := domain.ExecutionUpdate{Status: domain.StatusRunning, CurrentStep: next, UpdatedAt: now}
	applied, err := o.Executions.ConditionalAdvance(ctx, key, msg.StepIndex, update)
	if err != nil {
		return fmt.Errorf("record step %d: %w", msg.StepIndex, err)
	}
	if !applied {
		o.raceLost(ctx, log, key, msg.StepIndex)
		return nil
	}
	o.recordEvent(ctx, key, msg.StepIndex, domain.EventStepSucceeded, "Step "+msg.Step.Type+" succeeded")

	nextStep, _ := def.Step(next)
	if err := o.Queue.Enqueue(ctx, domain.StepMessage{
		WorkflowID:  key.WorkflowID,
		ExecutionID: key.ExecutionID,
		StepIndex:   next,
		Step:        nextStep,
	}); err != nil {
		log.ErrorContext(ctx, "Failed to enqueue next step, execution will be repaired", "next_step", next, "error", err)
		return fmt.Errorf("enqueue step %d: %w", next, err)
	}
	log.DebugContext(ctx, "Step advanced", "next_step", next)
	return nil
}

// GetExecutionStatus reads the record of one execution.
func (o *Orchestrator) GetExecutionStatus(ctx context.Context, workflowID, executionID string) (*domain.ExecutionRecord, error) {
	if workflowID == "" || executionID == "" {
		return nil, fmt.Errorf("%w: workflow_id and execution_id are required", domain.ErrInvalidInput)
	}
	return o.Executions.Get(ctx, domain.ExecutionKey{WorkflowID: workflowID, ExecutionID: executionID})
}

// RepairStale re-enqueues the current step of RUNNING executions nobody has advanced within
// the repair window. This covers a crash between recording a step and enqueueing the next one.
// Touch acts as the lock, so only one instance repairs a given execution per window.
func (o *Orchestrator) RepairStale(ctx context.Context) (int, error) {
	now := o.clock.Now()
	before := now.Add(-o.repairAfter)
	stale, err := o.Executions.FindStale(ctx, before, repairBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find stale executions: %w", err)
	}

	repaired := 0
	for _, rec := range stale {
		key := rec.Key()
		def, err := o.Workflows.FindByID(ctx, key.WorkflowID)
		if err != nil {
			slog.ErrorContext(ctx, "Cannot repair execution, workflow lookup failed", "workflow_id", key.WorkflowID, "execution_id", key.ExecutionID, "error", err)
			continue
		}
		step, ok := def.Step(rec.CurrentStep)
		if !ok {
			reason := fmt.Sprintf("step %d outside workflow of %d steps", rec.CurrentStep, def.TotalSteps())
			if _, err := o.Executions.ConditionalAdvance(ctx, key, rec.CurrentStep, failedUpdate(now, rec.CurrentStep, reason)); err != nil {
				slog.ErrorContext(ctx, "Failed to close unrepairable execution", "execution_id", key.ExecutionID, "error", err)
			}
			continue
		}

		locked, err := o.Executions.Touch(ctx, key, rec.CurrentStep, before, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to lock stale execution", "execution_id", key.ExecutionID, "error", err)
			continue
		}
		if !locked {
			continue
		}
		slog.WarnContext(ctx, "Repairing stale execution", "workflow_id", key.WorkflowID, "execution_id", key.ExecutionID,
			"current_step", rec.CurrentStep, "updated_at", rec.UpdatedAt)
		if err := o.Queue.Enqueue(ctx, domain.StepMessage{
			WorkflowID:  key.WorkflowID,
			ExecutionID: key.ExecutionID,
			StepIndex:   rec.CurrentStep,
			Step:        step,
		}); err != nil {
			slog.ErrorContext(ctx, "Failed to re-enqueue stale execution", "execution_id", key.ExecutionID, "error", err)
			continue
		}
		o.recordEvent(ctx, key, rec.CurrentStep, domain.EventRepaired,
			fmt.Sprintf("Re-enqueued step %d, last update %s", rec.CurrentStep, rec.UpdatedAt.Format(time.RFC3339)))
		repaired++
	}
	return repaired, nil
}

// RecordDeadLetter notes on the audit trail that a message for this execution was dead-lettered.
func (o *Orchestrator) RecordDeadLetter(ctx context.Context, msg domain.StepMessage, reason string) {
	o.recordEvent(ctx, msg.Key(), msg.StepIndex, domain.EventDeadLettered, reason)
}

func (o *Orchestrator) raceLost(ctx context.Context, log *slog.Logger, key domain.ExecutionKey, stepIndex int) {
	log.InfoContext(ctx, "Conditional advance lost to a concurrent delivery")
	o.recordEvent(ctx, key, stepIndex, domain.EventRaceLost, "Another delivery advanced this step first")
}

// events are best effort, a failed audit write never fails the step
func (o *Orchestrator) recordEvent(ctx context.Context, key domain.ExecutionKey, stepIndex int, typ, text string) {
	if o.Events == nil {
		return
	}
	_, _ = o.Events.Save(ctx, &domain.ExecutionEvent{
		WorkflowID:  key.WorkflowID,
		ExecutionID: key.ExecutionID,
		ExecutorID:  o.executorID.Load(),
		StepIndex:   stepIndex,
		Type:        typ,
		Text:        text,
		DateTime:    o.clock.Now(),
	})
}

func (o *Orchestrator) runStep(ctx context.Context, step domain.StepDefinition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Step panicked", "type", step.Type, "panic", r, "stack", string(debug.Stack()))
			err = steps.Permanentf("step %s panicked: %v", step.Type, r)
		}
	}()
	return o.Steps.Execute(ctx, step)
}

func failedUpdate(now time.Time, stepIndex int, reason string) domain.ExecutionUpdate {
	return domain.ExecutionUpdate{
		Status:      domain.StatusFailed,
		CurrentStep: stepIndex,
		UpdatedAt:   now,
		Error:       sql.NullString{String: reason, Valid: true},
	}
}
