package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/queue"
	"github.com/RealZimboGuy/stepflow/internal/steps"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/models"

	"golang.org/x/sync/errgroup"
)

const heartbeatInterval = 30 * time.Second

// StepAdvancer is the part of the Orchestrator the consumer drives.
type StepAdvancer interface {
	AdvanceStep(ctx context.Context, msg domain.StepMessage) error
	RepairStale(ctx context.Context) (int, error)
	RecordDeadLetter(ctx context.Context, msg domain.StepMessage, reason string)
	SetExecutorID(id int64)
}

type ConsumerSettings struct {
	ExecutorName   string
	Workers        int
	BatchSize      int
	PollInterval   time.Duration
	Visibility     time.Duration
	RepairInterval time.Duration
	Retry          models.RetryConfig
}

// Consumer polls the step queue and hands deliveries to a fixed pool of workers.
// Each delivery ends in exactly one of Ack, Retry or DeadLetter, unless its receipt
// went stale, in which case the queue has already handed it to someone else.
type Consumer struct {
	advancer   StepAdvancer
	queue      StepQueue
	executors  ExecutorRepo
	settings   ConsumerSettings
	clock      core.Clock
	executorID int64
	wakeup     chan struct{}
	work       chan queue.Delivery
}

func NewConsumer(advancer StepAdvancer, q StepQueue, executors ExecutorRepo, settings ConsumerSettings, clock core.Clock) *Consumer {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = 10
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = time.Second
	}
	if settings.Visibility <= 0 {
		settings.Visibility = 30 * time.Second
	}
	if settings.Retry.MaxReceiveCount <= 0 {
		settings.Retry.MaxReceiveCount = 5
	}
	return &Consumer{
		advancer:  advancer,
		queue:     q,
		executors: executors,
		settings:  settings,
		clock:     clock,
		wakeup:    make(chan struct{}, 1),
		work:      make(chan queue.Delivery, settings.BatchSize),
	}
}

// Wakeup triggers an immediate poll instead of waiting for the next tick.
func (c *Consumer) Wakeup() {
	select {
	case c.wakeup <- struct{}{}:
	default:
	}
}

// ExecutorID is the id this instance registered under, zero before Run.
func (c *Consumer) ExecutorID() int64 { return c.executorID }

// Run blocks until ctx is cancelled, polling the queue and running workers.
func (c *Consumer) Run(ctx context.Context) error {
	c.registerExecutor(ctx)
	ctx = context.WithValue(ctx, core.CtxKeyExecutorId, c.executorID)

	g, gctx := errgroup.WithContext(ctx)
	slog.Info("Starting step consumer", "workers", c.settings.Workers, "batch_size", c.settings.BatchSize,
		"poll_interval", c.settings.PollInterval.String())
	for i := 0; i < c.settings.Workers; i++ {
		workerID := i
		g.Go(func() error {
			c.worker(context.WithValue(gctx, core.CtxKeyWorkerId, workerID), workerID)
			return nil
		})
	}
	g.Go(func() error {
		c.pollLoop(gctx)
		return nil
	})
	if c.settings.RepairInterval > 0 {
		g.Go(func() error {
			c.repairLoop(gctx)
			return nil
		})
	}
	if c.executors != nil && c.executorID != 0 {
		g.Go(func() error {
			c.heartbeat(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (c *Consumer) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.settings.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Step consumer stopping due to context cancel")
			return
		case <-ticker.C:
			c.Poll(ctx)
		case <-c.wakeup:
			c.Poll(ctx)
		}
	}
}

// Poll receives up to the free capacity of the work channel and dispatches it.
func (c *Consumer) Poll(ctx context.Context) int {
	free := cap(c.work) - len(c.work)
	if free <= 0 {
		slog.Warn("step work channel full, skipping poll, possibly long running steps")
		return 0
	}
	deliveries, err := c.queue.Receive(ctx, free, c.settings.Visibility)
	if err != nil {
		// messages claimed before the error are already hidden, so they still get worked
		slog.ErrorContext(ctx, "Error receiving step messages", "error", err, "claimed", len(deliveries))
	}
	for i, d := range deliveries {
		select {
		case c.work <- d:
		case <-ctx.Done():
			// undelivered messages reappear after the visibility window
			return i
		}
	}
	return len(deliveries)
}

func (c *Consumer) worker(ctx context.Context, id int) {
	slog.Debug("Worker started", "worker_id", id)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker stopping", "worker_id", id)
			return
		case d := <-c.work:
			c.Handle(ctx, d)
		}
	}
}

// Handle runs one delivery through the orchestrator and settles it on the queue.
func (c *Consumer) Handle(ctx context.Context, d queue.Delivery) {
	log := deliveryLogger(ctx).With("workflow_id", d.Message.WorkflowID, "execution_id", d.Message.ExecutionID,
		"step_index", d.Message.StepIndex, "receive_count", d.ReceiveCount)

	err := c.advancer.AdvanceStep(ctx, d.Message)
	if ctx.Err() != nil {
		log.InfoContext(ctx, "Shutting down, leaving delivery for redelivery")
		return
	}

	var settleErr error
	switch {
	case err == nil:
		settleErr = c.queue.Ack(ctx, d)
	case steps.IsPermanent(err):
		settleErr = c.deadLetter(ctx, log, d, err)
	case d.ReceiveCount >= c.settings.Retry.MaxReceiveCount:
		settleErr = c.deadLetter(ctx, log, d, err)
	default:
		delay := c.settings.Retry.SlidingInterval(d.ReceiveCount)
		log.WarnContext(ctx, "Step advance failed, retrying", "error", err, "delay", delay.String())
		settleErr = c.queue.Retry(ctx, d, delay)
	}

	if errors.Is(settleErr, queue.ErrStaleReceipt) {
		log.WarnContext(ctx, "Delivery receipt went stale before it was settled", "error", settleErr)
	} else if settleErr != nil {
		log.ErrorContext(ctx, "Failed to settle delivery", "error", settleErr)
	}
}

// deliveryLogger tags log lines with the executor and worker carried by ctx.
func deliveryLogger(ctx context.Context) *slog.Logger {
	log := slog.Default()
	if id, ok := ctx.Value(core.CtxKeyExecutorId).(int64); ok && id != 0 {
		log = log.With("executor_id", id)
	}
	if id, ok := ctx.Value(core.CtxKeyWorkerId).(int); ok {
		log = log.With("worker_id", id)
	}
	return log
}

func (c *Consumer) deadLetter(ctx context.Context, log *slog.Logger, d queue.Delivery, cause error) error {
	log.ErrorContext(ctx, "Dead-lettering step message", "error", cause)
	if err := c.queue.DeadLetter(ctx, d, cause.Error()); err != nil {
		return err
	}
	c.advancer.RecordDeadLetter(ctx, d.Message, cause.Error())
	return nil
}

// responsible for finding executions that were recorded but never got their next step enqueued
func (c *Consumer) repairLoop(ctx context.Context) {
	ticker := time.NewTicker(c.settings.RepairInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Execution repair service stopping due to context cancel")
			return
		case <-ticker.C:
			n, err := c.advancer.RepairStale(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Error repairing stale executions", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "Repaired stale executions", "count", n)
				c.Wakeup()
			}
		}
	}
}

func (c *Consumer) registerExecutor(ctx context.Context) {
	if c.executors == nil {
		return
	}
	name := c.settings.ExecutorName
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "stepflow"
		} else {
			name = hostname
		}
	}
	now := c.clock.Now()
	id, err := c.executors.Save(ctx, &domain.Executor{Name: name, Started: now, LastActive: now})
	if err != nil {
		slog.Error("Failed to register executor", "error", err)
		return
	}
	c.executorID = id
	c.advancer.SetExecutorID(id)
	slog.Info("Registered executor", "executor_id", id, "name", name)
}

func (c *Consumer) heartbeat(ctx context.Context) {
	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.C:
			if err := c.executors.UpdateLastActive(ctx, c.executorID, c.clock.Now()); err != nil {
				slog.Error("Failed to update executor last_active", "executor_id", c.executorID, "error", err)
			} else {
				slog.Debug("Updated executor last_active", "executor_id", c.executorID)
			}
		}
	}
}
