package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio-server/modules/common/model"
)

type chanQueue struct {
	jobs     chan *Job
	mu       sync.Mutex
	enqueued []string
}

func newChanQueue() *chanQueue {
	return &chanQueue{jobs: make(chan *Job, 16)}
}

func (q *chanQueue) Enqueue(_ context.Context, taskID string) error {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, taskID)
	q.mu.Unlock()
	q.jobs <- &Job{TaskID: taskID}
	return nil
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

type fakeCompleter struct {
	pending  []string
	release  chan struct{}
	running  atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	finished []string
}

func (c *fakeCompleter) Complete(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	c.finished = append(c.finished, taskID)
	c.mu.Unlock()
	return &model.GenerationTask{TaskID: taskID, Status: model.StatusSucceeded}, nil
}

func (c *fakeCompleter) Recover(_ context.Context) ([]string, error) {
	return c.pending, nil
}

func (c *fakeCompleter) done() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finished)
}

func TestRecoverReenqueuesPendingTasks(t *testing.T) {
	q := newChanQueue()
	w := New(q, &fakeCompleter{pending: []string{"a", "b"}}, 2, zerolog.Nop())

	n, err := w.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, q.enqueued)
}

func TestRunBoundsConcurrency(t *testing.T) {
	q := newChanQueue()
	c := &fakeCompleter{release: make(chan struct{})}
	w := New(q, c, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, q.Enqueue(ctx, id))
	}

	require.Eventually(t, func() bool { return c.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 4; i++ {
		c.release <- struct{}{}
	}
	require.Eventually(t, func() bool { return c.done() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), c.peak.Load())
}

func TestDecodeJob(t *testing.T) {
	job := newJob("task-9", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	decoded, err := decodeJob(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "task-9", decoded.TaskID)
	assert.Len(t, decoded.JobID, 26)

	legacy, err := decodeJob("plain-task-id")
	require.NoError(t, err)
	assert.Equal(t, "plain-task-id", legacy.TaskID)

	_, err = decodeJob("")
	assert.Error(t, err)
}
