package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"

	"github.com/google/uuid"
)

type memoryEntry struct {
	id           string
	msg          domain.StepMessage
	receipt      string
	receiveCount int
	visibleAt    time.Time
	seq          int64
}

// MemoryQueue is a process-local queue with the same visibility semantics as the
// durable backends. Messages are lost on restart.
type MemoryQueue struct {
	mu          sync.Mutex
	clock       core.Clock
	name        string
	entries     map[string]*memoryEntry
	deadLetters []domain.DeadLetter
	seq         int64
	enqueued    int
}

func NewMemoryQueue(clock core.Clock, name string) *MemoryQueue {
	return &MemoryQueue{clock: clock, name: name, entries: make(map[string]*memoryEntry)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg domain.StepMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.enqueued++
	id := uuid.NewString()
	q.entries[id] = &memoryEntry{id: id, msg: msg, visibleAt: q.clock.Now(), seq: q.seq}
	return nil
}

func (q *MemoryQueue) Receive(_ context.Context, max int, visibility time.Duration) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()

	visible := make([]*memoryEntry, 0)
	for _, e := range q.entries {
		if !e.visibleAt.After(now) {
			visible = append(visible, e)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].visibleAt.Equal(visible[j].visibleAt) {
			return visible[i].seq < visible[j].seq
		}
		return visible[i].visibleAt.Before(visible[j].visibleAt)
	})
	if len(visible) > max {
		visible = visible[:max]
	}

	deliveries := make([]Delivery, 0, len(visible))
	for _, e := range visible {
		e.receipt = uuid.NewString()
		e.receiveCount++
		e.visibleAt = now.Add(visibility)
		deliveries = append(deliveries, Delivery{MessageID: e.id, Receipt: e.receipt, ReceiveCount: e.receiveCount, Message: e.msg})
	}
	return deliveries, nil
}

func (q *MemoryQueue) Ack(_ context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.owned(d); err != nil {
		return err
	}
	delete(q.entries, d.MessageID)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, d Delivery, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.owned(d)
	if err != nil {
		return err
	}
	e.visibleAt = q.clock.Now().Add(delay)
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, d Delivery, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.owned(d)
	if err != nil {
		return err
	}
	delete(q.entries, d.MessageID)
	q.deadLetters = append(q.deadLetters, domain.DeadLetter{
		ID:           e.id,
		Queue:        q.name,
		Message:      e.msg,
		Reason:       reason,
		ReceiveCount: e.receiveCount,
		FailedAt:     q.clock.Now(),
	})
	return nil
}

// ListDeadLetters returns dead letters newest first.
func (q *MemoryQueue) ListDeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.DeadLetter, 0, len(q.deadLetters))
	for i := len(q.deadLetters) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, q.deadLetters[i])
	}
	return out, nil
}

// Len is the number of messages not yet acked or dead lettered.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// EnqueuedTotal counts every message ever enqueued.
func (q *MemoryQueue) EnqueuedTotal() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}

func (q *MemoryQueue) owned(d Delivery) (*memoryEntry, error) {
	e, ok := q.entries[d.MessageID]
	if !ok || e.receipt != d.Receipt {
		return nil, ErrStaleReceipt
	}
	return e, nil
}
