package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// receiveScript claims up to ARGV[3] visible messages, hiding each until ARGV[2].
// Message hash keys are derived from ARGV[4], so the script targets a single Redis node.
var receiveScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local out = {}
for i, id in ipairs(ids) do
	local key = ARGV[4] .. id
	local receipt = ARGV[4 + i]
	redis.call('ZADD', KEYS[1], ARGV[2], id)
	local count = redis.call('HINCRBY', key, 'receive_count', 1)
	redis.call('HSET', key, 'receipt', receipt)
	local body = redis.call('HGET', key, 'body')
	table.insert(out, id)
	table.insert(out, receipt)
	table.insert(out, count)
	table.insert(out, body or '')
end
return out
`)

// ackScript deletes the message when the receipt still owns it.
var ackScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[1] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('DEL', KEYS[2])
return 1
`)

// retryScript moves the visibility of an owned message to ARGV[3].
var retryScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[1] then
	return 0
end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[2])
return 1
`)

// deadLetterScript removes an owned message and pushes ARGV[3] onto the dead letter list.
var deadLetterScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[1] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('DEL', KEYS[2])
redis.call('LPUSH', KEYS[3], ARGV[3])
return 1
`)

// RedisQueue keeps messages in a sorted set scored by visible-at and a hash per message.
// The caller owns the Redis client lifecycle.
type RedisQueue struct {
	client goredis.UniversalClient
	clock  core.Clock
	name   string
}

func NewRedisQueue(client goredis.UniversalClient, clock core.Clock, name string) *RedisQueue {
	return &RedisQueue{client: client, clock: clock, name: name}
}

// Ping verifies the Redis connection is alive.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg domain.StepMessage) error {
	body, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("stepflow/redis: encode: %w", err)
	}
	id := uuid.NewString()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, messageKey(id), "body", body, "receive_count", 0)
	pipe.ZAdd(ctx, queueKey(q.name), goredis.Z{Score: float64(q.clock.Now().UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]Delivery, error) {
	now := q.clock.Now()
	args := []interface{}{now.UnixMilli(), now.Add(visibility).UnixMilli(), max, messageKeyPrefix}
	for i := 0; i < max; i++ {
		args = append(args, uuid.NewString())
	}
	res, err := receiveScript.Run(ctx, q.client, []string{queueKey(q.name)}, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: receive: %w", err)
	}

	deliveries := make([]Delivery, 0, len(res)/4)
	for i := 0; i+3 < len(res); i += 4 {
		id, _ := res[i].(string)
		receipt, _ := res[i+1].(string)
		count, _ := res[i+2].(int64)
		body, _ := res[i+3].(string)
		d := Delivery{MessageID: id, Receipt: receipt, ReceiveCount: int(count)}
		msg, err := DecodeMessage(body)
		if err != nil {
			slog.ErrorContext(ctx, "Malformed step message", "message_id", id, "error", err)
			if dlErr := q.deadLetterBody(ctx, d, body, "malformed message: "+err.Error()); dlErr != nil {
				return deliveries, dlErr
			}
			continue
		}
		d.Message = msg
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	n, err := ackScript.Run(ctx, q.client, []string{queueKey(q.name), messageKey(d.MessageID)}, d.Receipt, d.MessageID).Int()
	if err != nil {
		return fmt.Errorf("stepflow/redis: ack: %w", err)
	}
	if n != 1 {
		return ErrStaleReceipt
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, d Delivery, delay time.Duration) error {
	visibleAt := q.clock.Now().Add(delay).UnixMilli()
	n, err := retryScript.Run(ctx, q.client, []string{queueKey(q.name), messageKey(d.MessageID)}, d.Receipt, d.MessageID, visibleAt).Int()
	if err != nil {
		return fmt.Errorf("stepflow/redis: retry: %w", err)
	}
	if n != 1 {
		return ErrStaleReceipt
	}
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, d Delivery, reason string) error {
	body, err := EncodeMessage(d.Message)
	if err != nil {
		return err
	}
	return q.deadLetterBody(ctx, d, body, reason)
}

type redisDeadLetter struct {
	ID           string    `json:"id"`
	Body         string    `json:"body"`
	Reason       string    `json:"reason"`
	ReceiveCount int       `json:"receive_count"`
	FailedAt     time.Time `json:"failed_at"`
}

func (q *RedisQueue) deadLetterBody(ctx context.Context, d Delivery, body string, reason string) error {
	entry, err := json.Marshal(redisDeadLetter{
		ID:           d.MessageID,
		Body:         body,
		Reason:       reason,
		ReceiveCount: d.ReceiveCount,
		FailedAt:     q.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	keys := []string{queueKey(q.name), messageKey(d.MessageID), deadLetterKey(q.name)}
	n, err := deadLetterScript.Run(ctx, q.client, keys, d.Receipt, d.MessageID, string(entry)).Int()
	if err != nil {
		return fmt.Errorf("stepflow/redis: dead letter: %w", err)
	}
	if n != 1 {
		return ErrStaleReceipt
	}
	return nil
}

// ListDeadLetters returns the newest dead letters first.
func (q *RedisQueue) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	raw, err := q.client.LRange(ctx, deadLetterKey(q.name), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: list dead letters: %w", err)
	}
	letters := make([]domain.DeadLetter, 0, len(raw))
	for _, item := range raw {
		var e redisDeadLetter
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		dl := domain.DeadLetter{ID: e.ID, Queue: q.name, Reason: e.Reason, ReceiveCount: e.ReceiveCount, FailedAt: e.FailedAt}
		if msg, err := DecodeMessage(e.Body); err == nil {
			dl.Message = msg
		}
		letters = append(letters, dl)
	}
	return letters, nil
}
