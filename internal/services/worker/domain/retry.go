// Package domain holds the worker's queue-side retry policy for notices.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/webpay/internal/services/pay/notice"
	"github.com/louisbranch/webpay/internal/services/worker/storage"
	"github.com/zoobzio/clockz"
)

// Rescheduler moves a leased task back to pending.
type Rescheduler interface {
	RescheduleTask(ctx context.Context, id int64, leaseToken string, nextAttemptAt time.Time, retries int, lastError string) error
}

// TaskRetrier binds notice.Task to one claimed queue task.
type TaskRetrier struct {
	store Rescheduler
	task  storage.NoticeTask
	clock clockz.Clock

	scheduled bool
	nextAt    time.Time
}

// NewTaskRetrier creates a retrier for a claimed task. Rescheduling uses the
// task's lease token.
func NewTaskRetrier(store Rescheduler, task storage.NoticeTask, clock clockz.Clock) *TaskRetrier {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &TaskRetrier{store: store, task: task, clock: clock}
}

// Retry reschedules the task after delay. Once the task has used maxRetries
// retries the cause is returned unchanged and nothing is rescheduled.
func (r *TaskRetrier) Retry(ctx context.Context, delay time.Duration, maxRetries int, cause error) error {
	if r.task.Retries >= maxRetries {
		return cause
	}
	if delay < 0 {
		delay = 0
	}
	nextAt := r.clock.Now().Add(delay)
	err := r.store.RescheduleTask(ctx, r.task.ID, r.task.LeaseToken, nextAt, r.task.Retries+1, notice.FormatError(cause))
	switch {
	case errors.Is(err, storage.ErrLeaseLost):
		return fmt.Errorf("reschedule notice task %d: %w: %w", r.task.ID, notice.ErrTaskLost, err)
	case err != nil:
		return fmt.Errorf("reschedule notice task %d: %w", r.task.ID, err)
	}
	r.scheduled = true
	r.nextAt = nextAt
	return notice.ErrRetryScheduled
}

// Scheduled reports whether Retry rescheduled the task, and when it is due.
func (r *TaskRetrier) Scheduled() (bool, time.Time) {
	return r.scheduled, r.nextAt
}

var _ notice.Task = (*TaskRetrier)(nil)
