package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"genstudio-server/modules/common/metrics"
	"genstudio-server/modules/common/model"
)

const (
	popTimeout   = 5 * time.Second
	errorBackoff = 5 * time.Second
)

// Completer - 작업을 terminal 상태까지 진행시키는 쪽 (generation.Service)
type Completer interface {
	Complete(ctx context.Context, taskID string) (*model.GenerationTask, error)
	Recover(ctx context.Context) ([]string, error)
}

// Source is the consuming side of the queue.
type Source interface {
	Enqueue(ctx context.Context, taskID string) error
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
}

// Worker - Redis Queue Worker
type Worker struct {
	queue       Source
	service     Completer
	concurrency int
	log         zerolog.Logger
}

func New(queue Source, service Completer, concurrency int, log zerolog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		service:     service,
		concurrency: concurrency,
		log:         log.With().Str("component", "worker").Logger(),
	}
}

// Recover re-enqueues every task left pending, e.g. by a restart.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	ids, err := w.service.Recover(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := w.queue.Enqueue(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		w.log.Info().Int("count", len(ids)).Msg("re-enqueued pending tasks")
	}
	return len(ids), nil
}

// Run consumes the queue until ctx is done, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("concurrency", w.concurrency).Msg("watching queue")

	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for ctx.Err() == nil {
		job, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.log.Error().Err(err).Msg("queue pop failed")
			sleep(ctx, errorBackoff)
			continue
		}
		if job == nil {
			continue
		}

		// 동시 실행 수가 가득 차면 여기서 대기
		g.Go(func() error {
			w.process(ctx, job)
			return nil
		})
	}

	w.log.Info().Msg("worker stopping; waiting for in-flight jobs")
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, job *Job) {
	metrics.WorkerInflight.Inc()
	defer metrics.WorkerInflight.Dec()

	log := w.log.With().Str("task_id", job.TaskID).Str("job_id", job.JobID).Logger()
	log.Info().Msg("processing job")

	task, err := w.service.Complete(ctx, job.TaskID)
	switch {
	case err == nil:
		log.Info().Str("status", string(task.Status)).Msg("job completed")
	case errors.Is(err, context.Canceled):
		// 종료 중; 기록은 pending으로 남아 다음 기동 시 Recover 대상
		log.Warn().Msg("job interrupted by shutdown")
	default:
		log.Warn().Err(err).Msg("job finished with error")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
