package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewQueue(rdb)
	q.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return q, mr
}

func TestQueueEnqueuePopFIFO(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "task-1"))
	require.NoError(t, q.Enqueue(ctx, "task-2"))

	depth, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "task-1", first.TaskID)
	assert.Len(t, first.JobID, 26)
	assert.True(t, first.EnqueuedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "task-2", second.TaskID)
	assert.NotEqual(t, first.JobID, second.JobID)

	depth, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestQueuePopTimeout(t *testing.T) {
	q, _ := newRedisQueue(t)

	job, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueuePopLegacyEntry(t *testing.T) {
	q, mr := newRedisQueue(t)
	_, err := mr.Lpush(QueueKey, "plain-task-id")
	require.NoError(t, err)

	job, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "plain-task-id", job.TaskID)
	assert.Empty(t, job.JobID)
}

func TestQueueEnqueueFailsWhenRedisIsDown(t *testing.T) {
	q, mr := newRedisQueue(t)
	mr.Close()

	err := q.Enqueue(context.Background(), "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue task task-1")
}
