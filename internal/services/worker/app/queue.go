package app

import (
	"context"
	"fmt"

	"github.com/louisbranch/webpay/internal/services/pay/notice"
	workerstorage "github.com/louisbranch/webpay/internal/services/worker/storage"
	"github.com/zoobzio/clockz"
)

// Queue enqueues notices for the worker loop.
type Queue struct {
	store workerstorage.TaskStore
	clock clockz.Clock
}

// NewQueue creates a notice queue over store.
func NewQueue(store workerstorage.TaskStore, clock clockz.Clock) *Queue {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Queue{store: store, clock: clock}
}

// Enqueue stores n for immediate delivery and returns the task ID.
func (q *Queue) Enqueue(ctx context.Context, n notice.Notice) (int64, error) {
	if q == nil || q.store == nil {
		return 0, fmt.Errorf("notice queue is not configured")
	}
	if err := n.Validate(); err != nil {
		return 0, err
	}
	now := q.clock.Now()
	return q.store.EnqueueTask(ctx, workerstorage.NoticeTask{
		TransID:       n.TransID,
		URL:           n.URL,
		NoticeType:    string(n.Type),
		SignedNotice:  n.Signed,
		Simulated:     string(n.Simulated),
		CreatedAt:     now,
		NextAttemptAt: now,
	})
}
