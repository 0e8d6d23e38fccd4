package poller

import (
	"context"
	"fmt"
	"time"

	"genstudio-server/modules/common/apperr"
)

// State - 한 번의 상태 조회 결과
type State int

const (
	Pending State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Status is the normalized answer of one status query.
type Status struct {
	State   State
	URLs    []string
	Message string
}

// CheckFunc issues exactly one status query.
type CheckFunc func(ctx context.Context) (Status, error)

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options - 폴링 파라미터
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// MaxTransportErrors bounds consecutive failed queries; 0 means they only spend attempts.
	MaxTransportErrors int
	// OnAttempt is called once per attempt after its query returned.
	OnAttempt func(attempt int, state State)
	Sleep     SleepFunc
}

// Result - 완료된 작업의 결과 URL (첫 번째가 대표)
type Result struct {
	URLs     []string
	Attempts int
}

// Wait polls until the task is terminal, the attempt budget is spent or ctx is done.
//
// A vendor failure returns GenerationFailedError at once. A spent budget or a done
// ctx returns TimeoutError. More than MaxTransportErrors consecutive query errors
// return the last query error.
func Wait(ctx context.Context, taskID string, check CheckFunc, opts Options) (*Result, error) {
	if opts.MaxAttempts <= 0 {
		return nil, fmt.Errorf("poll task %s: max attempts must be positive", taskID)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	transportErrs := 0
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		status, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &apperr.TimeoutError{TaskID: taskID, Attempts: attempt}
			}
			transportErrs++
			if opts.MaxTransportErrors > 0 && transportErrs > opts.MaxTransportErrors {
				return nil, fmt.Errorf("poll task %s: %d consecutive status errors: %w", taskID, transportErrs, err)
			}
			status = Status{State: Pending}
		} else {
			transportErrs = 0
		}

		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, status.State)
		}

		switch status.State {
		case Succeeded:
			if len(status.URLs) == 0 {
				return nil, &apperr.GenerationFailedError{TaskID: taskID, Message: "task succeeded without result URLs"}
			}
			return &Result{URLs: status.URLs, Attempts: attempt}, nil
		case Failed:
			return nil, &apperr.GenerationFailedError{TaskID: taskID, Message: status.Message}
		}

		if attempt < opts.MaxAttempts {
			if err := sleep(ctx, opts.Interval); err != nil {
				return nil, &apperr.TimeoutError{TaskID: taskID, Attempts: attempt}
			}
		}
	}

	return nil, &apperr.TimeoutError{TaskID: taskID, Attempts: opts.MaxAttempts}
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
