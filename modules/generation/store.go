package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/model"
)

const (
	taskKeyPrefix = "generation:task:"
	pendingSetKey = "generation:pending"
)

// ErrTerminal is returned when a write would replace a terminal record.
var ErrTerminal = errors.New("task record is terminal")

// TaskStore - 생성 작업 기록 저장소
type TaskStore interface {
	Save(ctx context.Context, task *model.GenerationTask) error
	Get(ctx context.Context, taskID string) (*model.GenerationTask, error)
	Pending(ctx context.Context) ([]string, error)
}

// RedisTaskStore keeps one JSON record per task plus the set of pending ids.
type RedisTaskStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTaskStore(rdb *redis.Client, ttl time.Duration) *RedisTaskStore {
	return &RedisTaskStore{rdb: rdb, ttl: ttl}
}

func taskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

// Save writes task. A terminal record is never overwritten (ErrTerminal).
func (s *RedisTaskStore) Save(ctx context.Context, task *model.GenerationTask) error {
	key := taskKey(task.TaskID)

	// WATCH로 terminal 기록 덮어쓰기 경쟁 방지 (worker와 status probe가 동시에 끝낼 수 있음)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read task %s: %w", task.TaskID, err)
		}
		if err == nil {
			var existing model.GenerationTask
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("decode task %s: %w", task.TaskID, err)
			}
			if err := checkTransition(&existing, task); err != nil {
				return err
			}
		}

		body, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", task.TaskID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, s.ttl)
			if task.Status.IsTerminal() {
				pipe.SRem(ctx, pendingSetKey, task.TaskID)
			} else {
				pipe.SAdd(ctx, pendingSetKey, task.TaskID)
			}
			return nil
		})
		return err
	}, key)
}

func (s *RedisTaskStore) Get(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	raw, err := s.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &apperr.NotFoundError{Resource: "task", ID: taskID}
	}
	if err != nil {
		return nil, fmt.Errorf("read task %s: %w", taskID, err)
	}

	var task model.GenerationTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// Pending returns the ids of tasks without a terminal record.
func (s *RedisTaskStore) Pending(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, pendingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	return ids, nil
}

// checkTransition - terminal 기록은 같은 상태로도 다시 쓸 수 없음
func checkTransition(existing, next *model.GenerationTask) error {
	if !existing.Status.IsTerminal() {
		return nil
	}
	return fmt.Errorf("task %s: %s -> %s: %w", next.TaskID, existing.Status, next.Status, ErrTerminal)
}
