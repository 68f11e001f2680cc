package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/queue"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"

	"github.com/google/uuid"
)

// StepQueueRepository is a database-backed step queue. A message is visible when
// visible_at (unix millis) is not in the future; receiving it bumps receive_count and
// pushes visible_at out by the visibility window.
type StepQueueRepository struct {
	db    *sql.DB
	clock core.Clock
	queue string
}

func NewStepQueueRepository(db *sql.DB, clock core.Clock, queueName string) *StepQueueRepository {
	return &StepQueueRepository{db: db, clock: clock, queue: queueName}
}

func (r *StepQueueRepository) Enqueue(ctx context.Context, msg domain.StepMessage) error {
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode step message: %w", err)
	}
	now := r.clock.Now()
	query := `
		INSERT INTO step_messages (id, queue, body, receipt, receive_count, visible_at, created)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, NULL, 0, ` + placeholder(4) + `, ` + placeholder(5) + `)
	`
	_, err = r.db.ExecContext(ctx, query, uuid.NewString(), r.queue, body, now.UnixMilli(), formatDateInDatabase(now))
	return err
}

type pendingMessage struct {
	id           string
	body         string
	receiveCount int
}

// Receive claims up to max visible messages. Each claim is a conditional update on
// receive_count so two consumers can never hold the same message at the same time.
func (r *StepQueueRepository) Receive(ctx context.Context, max int, visibility time.Duration) ([]queue.Delivery, error) {
	now := r.clock.Now()
	query := `
		SELECT id, body, receive_count
		FROM step_messages
		WHERE queue = ` + placeholder(1) + ` AND visible_at <= ` + placeholder(2) + `
		ORDER BY visible_at ASC
		LIMIT ` + placeholder(3) + `
	`
	rows, err := r.db.QueryContext(ctx, query, r.queue, now.UnixMilli(), max)
	if err != nil {
		return nil, err
	}
	var pending []pendingMessage
	for rows.Next() {
		var p pendingMessage
		if err := rows.Scan(&p.id, &p.body, &p.receiveCount); err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	claim := `
		UPDATE step_messages
		SET receipt = ` + placeholder(1) + `, receive_count = receive_count + 1, visible_at = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + ` AND receive_count = ` + placeholder(4) + ` AND visible_at <= ` + placeholder(5) + `
	`
	deliveries := make([]queue.Delivery, 0, len(pending))
	for _, p := range pending {
		receipt := uuid.NewString()
		result, err := r.db.ExecContext(ctx, claim, receipt, now.Add(visibility).UnixMilli(), p.id, p.receiveCount, now.UnixMilli())
		if err != nil {
			return deliveries, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return deliveries, err
		}
		if affected != 1 {
			slog.DebugContext(ctx, "Step message claimed by another consumer", "message_id", p.id)
			continue
		}
		d := queue.Delivery{MessageID: p.id, Receipt: receipt, ReceiveCount: p.receiveCount + 1}
		msg, err := queue.DecodeMessage(p.body)
		if err != nil {
			slog.ErrorContext(ctx, "Malformed step message", "message_id", p.id, "error", err)
			if dlErr := r.deadLetterBody(ctx, d, p.body, "malformed message: "+err.Error()); dlErr != nil {
				return deliveries, dlErr
			}
			continue
		}
		d.Message = msg
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Ack removes a processed message. It fails with queue.ErrStaleReceipt when the receipt
// no longer owns the message.
func (r *StepQueueRepository) Ack(ctx context.Context, d queue.Delivery) error {
	query := `DELETE FROM step_messages WHERE id = ` + placeholder(1) + ` AND receipt = ` + placeholder(2)
	return r.expectOne(r.db.ExecContext(ctx, query, d.MessageID, d.Receipt))
}

// Retry makes the message visible again after delay.
func (r *StepQueueRepository) Retry(ctx context.Context, d queue.Delivery, delay time.Duration) error {
	query := `
		UPDATE step_messages SET visible_at = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND receipt = ` + placeholder(3) + `
	`
	return r.expectOne(r.db.ExecContext(ctx, query, r.clock.Now().Add(delay).UnixMilli(), d.MessageID, d.Receipt))
}

// DeadLetter moves the message into dead_letters in one transaction.
func (r *StepQueueRepository) DeadLetter(ctx context.Context, d queue.Delivery, reason string) error {
	body, err := queue.EncodeMessage(d.Message)
	if err != nil {
		return err
	}
	return r.deadLetterBody(ctx, d, body, reason)
}

func (r *StepQueueRepository) deadLetterBody(ctx context.Context, d queue.Delivery, body string, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del := `DELETE FROM step_messages WHERE id = ` + placeholder(1) + ` AND receipt = ` + placeholder(2)
	result, err := tx.ExecContext(ctx, del, d.MessageID, d.Receipt)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected != 1 {
		return queue.ErrStaleReceipt
	}

	ins := `
		INSERT INTO dead_letters (id, queue, body, reason, receive_count, failed_at)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `)
	`
	if _, err := tx.ExecContext(ctx, ins, d.MessageID, r.queue, body, reason, d.ReceiveCount, formatDateInDatabase(r.clock.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDeadLetters returns the most recent dead letters of this queue.
func (r *StepQueueRepository) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	query := `
		SELECT id, queue, body, reason, receive_count, failed_at
		FROM dead_letters
		WHERE queue = ` + placeholder(1) + `
		ORDER BY failed_at DESC
		LIMIT ` + placeholder(2) + `
	`
	rows, err := r.db.QueryContext(ctx, query, r.queue, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	letters := make([]domain.DeadLetter, 0)
	for rows.Next() {
		var dl domain.DeadLetter
		var body string
		if err := rows.Scan(&dl.ID, &dl.Queue, &body, &dl.Reason, &dl.ReceiveCount, &dl.FailedAt); err != nil {
			return nil, err
		}
		// malformed bodies are kept as-is; the message stays zero valued
		if msg, err := queue.DecodeMessage(body); err == nil {
			dl.Message = msg
		}
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return letters, nil
}

func (r *StepQueueRepository) expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return queue.ErrStaleReceipt
	}
	return nil
}
