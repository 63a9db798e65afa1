package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pagemirror/internal/models"
)

const syncJobColumns = `id, page_id, trigger_type, status, attempt, max_attempts,
        next_run_at, locked_at, locked_by, payload, dedupe_key, error_message, created_at, updated_at`

// claimRetries bounds re-selection when another worker wins the conditional
// update between our SELECT and UPDATE.
const claimRetries = 5

func (db *DB) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	now := time.Now()
	query := `INSERT INTO sync_jobs (page_id, trigger_type, status, attempt, max_attempts,
                  next_run_at, locked_at, locked_by, payload, dedupe_key, error_message, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		job.PageID,
		job.TriggerType,
		job.Status,
		job.Attempt,
		job.MaxAttempts,
		job.NextRunAt,
		job.LockedAt,
		job.LockedBy,
		job.Payload,
		job.DedupeKey,
		job.ErrorMessage,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now

	return nil
}

func (db *DB) GetSyncJob(ctx context.Context, id int64) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ?`
	job, err := scanSyncJob(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job %d: %w", id, err)
	}
	return job, nil
}

// LatestSyncJobByDedupeKey returns the most recent job for a dedupe key, or
// nil when none exists.
func (db *DB) LatestSyncJobByDedupeKey(ctx context.Context, key string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE dedupe_key = ? ORDER BY id DESC LIMIT 1`
	job, err := scanSyncJob(db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up sync job by dedupe key: %w", err)
	}
	return job, nil
}

// ClaimNextSyncJob leases the oldest eligible pending job to workerID.
// Returns (nil, nil) when nothing is eligible. The lease is taken with a
// conditional update keyed on status, so concurrent claimants never receive
// the same job even from separate processes.
func (db *DB) ClaimNextSyncJob(ctx context.Context, workerID string) (*models.SyncJob, error) {
	for i := 0; i < claimRetries; i++ {
		now := time.Now()

		var id int64
		err := db.QueryRowContext(ctx,
			`SELECT id FROM sync_jobs
             WHERE status = ? AND (next_run_at IS NULL OR next_run_at <= ?)
             ORDER BY created_at ASC, id ASC LIMIT 1`,
			models.JobStatusPending, now,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select claimable sync job: %w", err)
		}

		result, err := db.ExecContext(ctx,
			`UPDATE sync_jobs
             SET status = ?, attempt = attempt + 1, locked_at = ?, locked_by = ?,
                 next_run_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			models.JobStatusProcessing, now, workerID, now, id, models.JobStatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim sync job %d: %w", id, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read claim result: %w", err)
		}
		if affected == 0 {
			// lost the race; pick the next candidate
			continue
		}

		return db.GetSyncJob(ctx, id)
	}

	return nil, nil
}

// MarkSyncJobSucceeded finishes a processing job: clears the lease, the error
// and next_run_at. Terminal.
func (db *DB) MarkSyncJobSucceeded(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = ?, locked_at = NULL, locked_by = NULL, next_run_at = NULL,
             error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		models.JobStatusSucceeded, time.Now(), id, models.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark sync job %d succeeded: %w", id, err)
	}
	return requireAffected(result, id)
}

// MarkSyncJobRetry returns a processing job to pending with a backoff
// schedule and the failure description.
func (db *DB) MarkSyncJobRetry(ctx context.Context, id int64, errMsg string, nextRunAt time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = ?, locked_at = NULL, locked_by = NULL, next_run_at = ?,
             error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		models.JobStatusPending, nextRunAt, errMsg, time.Now(), id, models.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark sync job %d for retry: %w", id, err)
	}
	return requireAffected(result, id)
}

// MarkSyncJobFailed records a terminal failure.
func (db *DB) MarkSyncJobFailed(ctx context.Context, id int64, errMsg string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = ?, locked_at = NULL, locked_by = NULL, next_run_at = NULL,
             error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		models.JobStatusFailed, errMsg, time.Now(), id, models.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark sync job %d failed: %w", id, err)
	}
	return requireAffected(result, id)
}

// ResetSyncJob reopens a job for immediate re-claiming: status back to
// pending, lease cleared, attempt counter preserved. Allowed from any state,
// including processing — this is the stuck-lease recovery path.
func (db *DB) ResetSyncJob(ctx context.Context, id int64) (*models.SyncJob, error) {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE sync_jobs
         SET status = ?, trigger_type = ?, next_run_at = ?,
             locked_at = NULL, locked_by = NULL, updated_at = ?
         WHERE id = ?`,
		models.JobStatusPending, models.TriggerRetry, now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset sync job %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read reset result: %w", err)
	}
	if affected == 0 {
		return nil, models.ErrJobNotFound
	}

	return db.GetSyncJob(ctx, id)
}

// ListRecentSyncJobs returns jobs newest-first for operator inspection.
func (db *DB) ListRecentSyncJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+syncJobColumns+` FROM sync_jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncJob(row rowScanner) (*models.SyncJob, error) {
	var j models.SyncJob
	err := row.Scan(
		&j.ID, &j.PageID, &j.TriggerType, &j.Status, &j.Attempt, &j.MaxAttempts,
		&j.NextRunAt, &j.LockedAt, &j.LockedBy, &j.Payload, &j.DedupeKey,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func requireAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync job %d is not in the expected status", id)
	}
	return nil
}
