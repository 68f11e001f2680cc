//go:build integration

package queue

import (
	"testing"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/testutil"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *testutil.FakeClock) {
	t.Helper()
	opts, err := goredis.ParseURL(testutil.StartRedis(t))
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	clock := testutil.NewFakeClock(start)
	q := NewRedisQueue(client, clock, "steps")
	require.NoError(t, q.Ping(t.Context()))
	return q, clock
}

func TestRedisQueue_ReceiveAckRetry(t *testing.T) {
	q, clock := newRedisQueue(t)
	ctx := t.Context()
	require.NoError(t, q.Enqueue(ctx, msg("e1", 0)))
	require.NoError(t, q.Enqueue(ctx, msg("e2", 0)))

	got, err := q.Receive(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, 1, d.ReceiveCount)
	}

	hidden, err := q.Receive(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	require.NoError(t, q.Ack(ctx, got[0]))
	require.NoError(t, q.Retry(ctx, got[1], 5*time.Second))

	clock.Add(5 * time.Second)
	again, err := q.Receive(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, got[1].MessageID, again[0].MessageID)
	assert.Equal(t, 2, again[0].ReceiveCount)
	assert.ErrorIs(t, q.Ack(ctx, got[1]), ErrStaleReceipt)
}

func TestRedisQueue_DeadLetter(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx := t.Context()
	require.NoError(t, q.Enqueue(ctx, msg("e1", 4)))

	got, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, q.DeadLetter(ctx, got[0], "gave up"))
	assert.ErrorIs(t, q.DeadLetter(ctx, got[0], "gave up"), ErrStaleReceipt)

	letters, err := q.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "gave up", letters[0].Reason)
	assert.Equal(t, msg("e1", 4), letters[0].Message)
}
