package storage

import (
	"context"
	"errors"
	"time"
)

// Task statuses.
const (
	StatusPending   = "pending"
	StatusLeased    = "leased"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

var (
	// ErrTaskNotFound reports a missing notice task.
	ErrTaskNotFound = errors.New("notice task not found")
	// ErrLeaseLost reports that the caller no longer holds the task lease.
	ErrLeaseLost = errors.New("notice task lease lost")
)

// NoticeTask is one queued notice delivery.
type NoticeTask struct {
	ID            int64
	TransID       string
	URL           string
	NoticeType    string
	SignedNotice  string
	Simulated     string
	Status        string
	Retries       int
	NextAttemptAt time.Time
	LeaseOwner    string
	// LeaseToken is unique per claim; only its holder may finish the task.
	LeaseToken     string
	LeaseExpiresAt time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AttemptRecord is one durable worker processing outcome record.
type AttemptRecord struct {
	ID        int64
	TaskID    int64
	TransID   string
	Consumer  string
	Outcome   string
	Retries   int
	LastError string
	CreatedAt time.Time
}

// TaskStore persists queued notice deliveries and their leases.
type TaskStore interface {
	EnqueueTask(ctx context.Context, task NoticeTask) (int64, error)
	ClaimDueTasks(ctx context.Context, consumer string, now time.Time, leaseTTL time.Duration, limit int) ([]NoticeTask, error)
	RescheduleTask(ctx context.Context, id int64, leaseToken string, nextAttemptAt time.Time, retries int, lastError string) error
	CompleteTask(ctx context.Context, id int64, leaseToken string, status string, lastError string, completedAt time.Time) error
	GetTask(ctx context.Context, id int64) (NoticeTask, error)
}

// AttemptStore persists worker processing attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}
