package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/webpay/internal/platform/timeouts"
	"github.com/louisbranch/webpay/internal/services/pay/notice"
	workerdomain "github.com/louisbranch/webpay/internal/services/worker/domain"
	workerstorage "github.com/louisbranch/webpay/internal/services/worker/storage"
	"github.com/zoobzio/clockz"
)

const (
	consumerPrefix      = "webpay-notices"
	defaultPollInterval = 2 * time.Second
	defaultLeaseTTL     = 2 * time.Minute
	defaultBatchSize    = 10
)

// minLeaseTTL covers one delivery attempt plus a full marketplace failure
// report, so a lease cannot expire while its holder is still working.
const minLeaseTTL = timeouts.NoticePost + 3*timeouts.APIRequest + 25*time.Second

// DefaultConsumer returns a consumer name unique to this process.
func DefaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%s-%d-%s", consumerPrefix, host, os.Getpid(), uuid.NewString()[:8])
}

// NoticeSender delivers one notice attempt.
type NoticeSender interface {
	Send(ctx context.Context, n notice.Notice, task notice.Task) (notice.Result, error)
}

// Config controls the notice processing loop.
type Config struct {
	Consumer     string
	PollInterval time.Duration
	LeaseTTL     time.Duration
	BatchSize    int
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = DefaultConsumer()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.LeaseTTL < minLeaseTTL {
		c.LeaseTTL = minLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Loop claims due notice tasks and delivers them.
type Loop struct {
	tasks    workerstorage.TaskStore
	attempts workerstorage.AttemptStore
	sender   NoticeSender
	cfg      Config
	clock    clockz.Clock
}

// New creates a notice processing loop. A nil clock uses the real clock.
func New(tasks workerstorage.TaskStore, attempts workerstorage.AttemptStore, sender NoticeSender, cfg Config, clock clockz.Clock) *Loop {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Loop{
		tasks:    tasks,
		attempts: attempts,
		sender:   sender,
		cfg:      cfg.normalized(),
		clock:    clock,
	}
}

// Consumer returns the name the loop claims tasks under.
func (l *Loop) Consumer() string {
	return l.cfg.Consumer
}

// Run processes due tasks every poll interval until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.tasks == nil || l.sender == nil {
		return fmt.Errorf("worker loop is not configured")
	}
	for {
		if _, err := l.ProcessDue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("process due notices: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(l.cfg.PollInterval):
		}
	}
}

// ProcessDue delivers up to BatchSize due tasks and returns the number
// handled. Each task is claimed just before delivery so its lease clock starts
// when work on it starts.
func (l *Loop) ProcessDue(ctx context.Context) (int, error) {
	handled := 0
	for handled < l.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		tasks, err := l.tasks.ClaimDueTasks(ctx, l.cfg.Consumer, l.clock.Now(), l.cfg.LeaseTTL, 1)
		if err != nil {
			return handled, fmt.Errorf("claim due tasks: %w", err)
		}
		if len(tasks) == 0 {
			break
		}
		for _, task := range tasks {
			l.process(ctx, task)
			handled++
		}
	}
	return handled, nil
}

func (l *Loop) process(ctx context.Context, task workerstorage.NoticeTask) {
	n := notice.Notice{
		URL:       task.URL,
		Type:      notice.Type(task.NoticeType),
		Signed:    task.SignedNotice,
		TransID:   task.TransID,
		Simulated: notice.Simulation(task.Simulated),
	}
	if err := n.Validate(); err != nil {
		log.Printf("drop invalid notice task %d: %v", task.ID, err)
		l.complete(ctx, task, workerstorage.StatusFailed, notice.FormatError(err))
		return
	}

	retrier := workerdomain.NewTaskRetrier(l.tasks, task, l.clock)
	result, err := l.sender.Send(ctx, n, retrier)
	switch {
	case errors.Is(err, notice.ErrRetryScheduled):
		_, nextAt := retrier.Scheduled()
		log.Printf("notice task %d for %s retry %d scheduled at %s", task.ID, task.TransID, task.Retries+1, nextAt.Format(time.RFC3339))
		l.recordAttempt(ctx, task, workerstorage.OutcomeRetry, notice.FormatError(err))
	case errors.Is(err, notice.ErrTaskLost):
		log.Printf("notice task %d for %s: lease lost, leaving it to its new owner", task.ID, task.TransID)
	case err != nil:
		log.Printf("notice task %d for %s: %v", task.ID, task.TransID, err)
		l.complete(ctx, task, workerstorage.StatusFailed, notice.FormatError(err))
	case result.Success:
		l.complete(ctx, task, workerstorage.StatusSucceeded, "")
	default:
		l.complete(ctx, task, workerstorage.StatusFailed, result.LastError)
	}
}

func (l *Loop) complete(ctx context.Context, task workerstorage.NoticeTask, status, lastError string) {
	err := l.tasks.CompleteTask(ctx, task.ID, task.LeaseToken, status, lastError, l.clock.Now())
	switch {
	case errors.Is(err, workerstorage.ErrLeaseLost):
		log.Printf("notice task %d lease expired before completion; %s result dropped", task.ID, status)
		return
	case err != nil:
		log.Printf("complete notice task %d: %v", task.ID, err)
	}
	outcome := workerstorage.OutcomeFailed
	if status == workerstorage.StatusSucceeded {
		outcome = workerstorage.OutcomeSucceeded
	}
	l.recordAttempt(ctx, task, outcome, lastError)
}

func (l *Loop) recordAttempt(ctx context.Context, task workerstorage.NoticeTask, outcome, lastError string) {
	if l.attempts == nil {
		return
	}
	if err := l.attempts.RecordAttempt(ctx, workerstorage.AttemptRecord{
		TaskID:    task.ID,
		TransID:   task.TransID,
		Consumer:  l.cfg.Consumer,
		Outcome:   outcome,
		Retries:   task.Retries,
		LastError: lastError,
		CreatedAt: l.clock.Now(),
	}); err != nil {
		log.Printf("record notice attempt for task %d: %v", task.ID, err)
	}
}
