package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// QueueKey - 생성 작업 큐 (LPUSH / BRPOP)
const QueueKey = "jobs:generation"

// Job - 큐에 들어가는 항목 (같은 task가 여러 번 적재될 수 있어 jobId로 구분)
type Job struct {
	JobID      string    `json:"jobId"`
	TaskID     string    `json:"taskId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue - Redis list 기반 작업 큐
type Queue struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, key: QueueKey, now: time.Now}
}

// Enqueue - LPUSH
func (q *Queue) Enqueue(ctx context.Context, taskID string) error {
	job := newJob(taskID, q.now())
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", taskID, err)
	}
	return nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Pop blocks up to timeout for the next job. It returns nil, nil on timeout.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// result[0]은 큐 이름, result[1]이 job
	return decodeJob(result[1])
}

func newJob(taskID string, now time.Time) Job {
	return Job{
		JobID:      ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TaskID:     taskID,
		EnqueuedAt: now.UTC(),
	}
}

// decodeJob - 예전 형식(task id 문자열만 적재)도 허용
func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.TaskID == "" {
		if raw == "" {
			return nil, fmt.Errorf("empty job")
		}
		return &Job{TaskID: raw}, nil
	}
	return &job, nil
}
