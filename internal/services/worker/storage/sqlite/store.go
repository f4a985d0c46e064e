package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitemigrate "github.com/louisbranch/webpay/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/webpay/internal/services/worker/storage"
	"github.com/louisbranch/webpay/internal/services/worker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const taskColumns = `
	id,
	trans_id,
	url,
	notice_type,
	signed_notice,
	simulated,
	status,
	retries,
	next_attempt_at,
	lease_owner,
	lease_token,
	lease_expires_at,
	last_error,
	created_at,
	updated_at`

// Store provides SQLite-backed notice queue persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a notice queue SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// EnqueueTask stores a pending notice task and returns its ID.
func (s *Store) EnqueueTask(ctx context.Context, task storage.NoticeTask) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	task.TransID = strings.TrimSpace(task.TransID)
	task.URL = strings.TrimSpace(task.URL)
	task.NoticeType = strings.TrimSpace(task.NoticeType)
	if task.TransID == "" {
		return 0, fmt.Errorf("trans id is required")
	}
	if task.URL == "" {
		return 0, fmt.Errorf("url is required")
	}
	if task.NoticeType == "" {
		return 0, fmt.Errorf("notice type is required")
	}
	if task.SignedNotice == "" {
		return 0, fmt.Errorf("signed notice is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = task.CreatedAt
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notice_tasks (
	trans_id,
	url,
	notice_type,
	signed_notice,
	simulated,
	status,
	retries,
	next_attempt_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
`,
		task.TransID,
		task.URL,
		task.NoticeType,
		task.SignedNotice,
		task.Simulated,
		storage.StatusPending,
		task.NextAttemptAt.UTC().UnixMilli(),
		task.CreatedAt.UTC().UnixMilli(),
		task.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue task id: %w", err)
	}
	return id, nil
}

// ClaimDueTasks leases up to limit tasks that are due at now, including
// leased tasks whose lease has expired. Every claim gets a fresh lease token,
// so a worker whose lease expired cannot finish a task another worker took
// over. Tasks come back oldest-due first.
func (s *Store) ClaimDueTasks(ctx context.Context, consumer string, now time.Time, leaseTTL time.Duration, limit int) ([]storage.NoticeTask, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	nowMillis := now.UTC().UnixMilli()

	rows, err := s.sqlDB.QueryContext(ctx, `
UPDATE notice_tasks
SET status = ?, lease_owner = ?, lease_token = ?, lease_expires_at = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM notice_tasks
	WHERE (status = ? AND next_attempt_at <= ?)
	   OR (status = ? AND lease_expires_at <= ?)
	ORDER BY next_attempt_at ASC, id ASC
	LIMIT ?
)
RETURNING`+taskColumns,
		storage.StatusLeased,
		consumer,
		uuid.NewString(),
		now.Add(leaseTTL).UTC().UnixMilli(),
		nowMillis,
		storage.StatusPending,
		nowMillis,
		storage.StatusLeased,
		nowMillis,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []storage.NoticeTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed tasks: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].NextAttemptAt.Equal(tasks[j].NextAttemptAt) {
			return tasks[i].NextAttemptAt.Before(tasks[j].NextAttemptAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// RescheduleTask returns a leased task to pending for a later attempt.
func (s *Store) RescheduleTask(ctx context.Context, id int64, leaseToken string, nextAttemptAt time.Time, retries int, lastError string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if leaseToken == "" {
		return storage.ErrLeaseLost
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notice_tasks
SET status = ?, retries = ?, next_attempt_at = ?, lease_owner = '', lease_token = '', lease_expires_at = 0, last_error = ?, updated_at = ?
WHERE id = ? AND status = ? AND lease_token = ?
`,
		storage.StatusPending,
		retries,
		nextAttemptAt.UTC().UnixMilli(),
		strings.TrimSpace(lastError),
		time.Now().UTC().UnixMilli(),
		id,
		storage.StatusLeased,
		leaseToken,
	)
	if err != nil {
		return fmt.Errorf("reschedule task: %w", err)
	}
	return requireOneRow(result)
}

// CompleteTask finishes a leased task with a terminal status.
func (s *Store) CompleteTask(ctx context.Context, id int64, leaseToken string, status string, lastError string, completedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if status != storage.StatusSucceeded && status != storage.StatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	if leaseToken == "" {
		return storage.ErrLeaseLost
	}
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notice_tasks
SET status = ?, lease_owner = '', lease_token = '', lease_expires_at = 0, last_error = ?, updated_at = ?
WHERE id = ? AND status = ? AND lease_token = ?
`,
		status,
		strings.TrimSpace(lastError),
		completedAt.UTC().UnixMilli(),
		id,
		storage.StatusLeased,
		leaseToken,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return requireOneRow(result)
}

// GetTask loads one task by ID.
func (s *Store) GetTask(ctx context.Context, id int64) (storage.NoticeTask, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NoticeTask{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT`+taskColumns+` FROM notice_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NoticeTask{}, storage.ErrTaskNotFound
	}
	if err != nil {
		return storage.NoticeTask{}, err
	}
	return task, nil
}

// RecordAttempt persists one worker processing attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	attempt.TransID = strings.TrimSpace(attempt.TransID)
	attempt.Consumer = strings.TrimSpace(attempt.Consumer)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	if attempt.TaskID <= 0 {
		return fmt.Errorf("task id is required")
	}
	if attempt.TransID == "" {
		return fmt.Errorf("trans id is required")
	}
	if attempt.Consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notice_attempts (
	task_id,
	trans_id,
	consumer,
	outcome,
	retries,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		attempt.TaskID,
		attempt.TransID,
		attempt.Consumer,
		attempt.Outcome,
		attempt.Retries,
		attempt.LastError,
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	task_id,
	trans_id,
	consumer,
	outcome,
	retries,
	last_error,
	created_at
FROM notice_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	records := make([]storage.AttemptRecord, 0, limit)
	for rows.Next() {
		var record storage.AttemptRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.TaskID,
			&record.TransID,
			&record.Consumer,
			&record.Outcome,
			&record.Retries,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (storage.NoticeTask, error) {
	var task storage.NoticeTask
	var nextAttemptAt, leaseExpiresAt, createdAt, updatedAt int64
	if err := row.Scan(
		&task.ID,
		&task.TransID,
		&task.URL,
		&task.NoticeType,
		&task.SignedNotice,
		&task.Simulated,
		&task.Status,
		&task.Retries,
		&nextAttemptAt,
		&task.LeaseOwner,
		&task.LeaseToken,
		&leaseExpiresAt,
		&task.LastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NoticeTask{}, err
		}
		return storage.NoticeTask{}, fmt.Errorf("scan task: %w", err)
	}
	task.NextAttemptAt = time.UnixMilli(nextAttemptAt).UTC()
	if leaseExpiresAt > 0 {
		task.LeaseExpiresAt = time.UnixMilli(leaseExpiresAt).UTC()
	}
	task.CreatedAt = time.UnixMilli(createdAt).UTC()
	task.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return task, nil
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrLeaseLost
	}
	return nil
}

var (
	_ storage.TaskStore    = (*Store)(nil)
	_ storage.AttemptStore = (*Store)(nil)
)
