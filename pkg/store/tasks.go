package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

// ErrNoTasksAvailable indicates no claimable task exists right now.
var ErrNoTasksAvailable = errors.New("store: no tasks available")

// TaskStore is the pgx-backed repository for the SLA-ordered pipeline task
// queue, grounded on the established claimNextSession FOR UPDATE SKIP LOCKED
// pattern, generalized to priority+deadline ordering.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	if pool == nil {
		panic("store: NewTaskStore requires a non-nil pool")
	}
	return &TaskStore{pool: pool}
}

const taskColumns = `id, organization_id, task_type, status, priority, sla_deadline, sla_category,
	estimated_tokens, actual_tokens, estimated_latency_ms, duration_ms, blocks_on_task_id,
	blocked_by_quota, attempts, max_attempts, last_error, metadata, trace_id,
	created_at, started_at, completed_at`

func scanTask(row pgx.Row) (*models.PipelineTask, error) {
	var t models.PipelineTask
	var metadata []byte
	if err := row.Scan(
		&t.ID, &t.OrganizationID, &t.TaskType, &t.Status, &t.Priority, &t.SLADeadline, &t.SLACategory,
		&t.EstimatedTokens, &t.ActualTokens, &t.EstimatedLatencyMS, &t.DurationMS, &t.BlocksOnTaskID,
		&t.BlockedByQuota, &t.Attempts, &t.MaxAttempts, &t.LastError, &metadata, &t.TraceID,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decoding task metadata: %w", err)
		}
	}
	return &t, nil
}

// Enqueue inserts a new queued task.
func (s *TaskStore) Enqueue(ctx context.Context, tx pgx.Tx, t *models.PipelineTask) (*models.PipelineTask, error) {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding task metadata: %w", err)
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO pipeline_tasks (
			organization_id, task_type, status, priority, sla_deadline, sla_category,
			estimated_tokens, estimated_latency_ms, blocks_on_task_id, max_attempts, metadata, trace_id
		) VALUES ($1,$2,'queued',$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+taskColumns,
		t.OrganizationID, t.TaskType, t.Priority, t.SLADeadline, t.SLACategory,
		t.EstimatedTokens, t.EstimatedLatencyMS, t.BlocksOnTaskID, t.MaxAttempts, metadata, t.TraceID)
	return scanTask(row)
}

// ClaimNext atomically claims the next runnable task for an organization
// using SELECT ... FOR UPDATE SKIP LOCKED, ordered by SLA deadline then
// priority. Unlike the
// established single global queue, each org's queue is claimed independently
// since RLS scopes every row to the caller's organization_id.
func (s *TaskStore) ClaimNext(ctx context.Context, tx pgx.Tx, podID string) (*models.PipelineTask, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM pipeline_tasks
		WHERE status = 'queued'
		ORDER BY sla_deadline ASC, priority DESC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNoTasksAvailable
		}
		return nil, err
	}

	now := time.Now()
	row = tx.QueryRow(ctx, `
		UPDATE pipeline_tasks SET status = 'running', started_at = $2, attempts = attempts + 1
		WHERE id = $1
		RETURNING `+taskColumns, task.ID, now)
	return scanTask(row)
}

// Complete marks a task succeeded or failed with observed actuals.
func (s *TaskStore) Complete(ctx context.Context, tx pgx.Tx, id string, status models.PipelineTaskStatus, actualTokens, durationMS int, lastError string) error {
	_, err := tx.Exec(ctx, `
		UPDATE pipeline_tasks SET
			status = $2, actual_tokens = $3, duration_ms = $4, last_error = $5, completed_at = now()
		WHERE id = $1`, id, status, actualTokens, durationMS, lastError)
	return err
}

// RequeueForRetry resets a failed task back to queued after backoff, or
// leaves it failed if attempts have been exhausted.
func (s *TaskStore) RequeueForRetry(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE pipeline_tasks SET status = 'queued', started_at = NULL
		WHERE id = $1 AND attempts < max_attempts`, id)
	return err
}

// MarkBlocked flags a task as blocked, either on a dependency or a quota.
func (s *TaskStore) MarkBlocked(ctx context.Context, tx pgx.Tx, id string, byQuota bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE pipeline_tasks SET status = 'blocked', blocked_by_quota = $2
		WHERE id = $1`, id, byQuota)
	return err
}

// ReconcileBlocked promotes blocked tasks whose dependency has succeeded
// back to queued.
func (s *TaskStore) ReconcileBlocked(ctx context.Context, tx pgx.Tx) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE pipeline_tasks t SET status = 'queued', blocked_by_quota = false
		WHERE t.status = 'blocked'
		  AND NOT t.blocked_by_quota
		  AND (t.blocks_on_task_id IS NULL OR EXISTS (
			SELECT 1 FROM pipeline_tasks dep WHERE dep.id = t.blocks_on_task_id AND dep.status = 'succeeded'
		  ))`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeadLetter moves a permanently-failed task into the dead_letter_tasks
// quarantine table.
func (s *TaskStore) DeadLetter(ctx context.Context, tx pgx.Tx, t *models.PipelineTask, reason string) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("encoding dead-letter metadata: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letter_tasks (organization_id, original_task_id, task_type, attempts, last_error, reason, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.OrganizationID, t.ID, t.TaskType, t.Attempts, t.LastError, reason, metadata)
	return err
}

// CountActive returns the number of currently running tasks for an
// organization (row-level security scopes the count), used for the
// per-organization concurrency cap (mirrors the established pollAndProcess
// capacity check).
func (s *TaskStore) CountActive(ctx context.Context, tx pgx.Tx) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `SELECT count(*) FROM pipeline_tasks WHERE status = 'running'`).Scan(&count)
	return count, err
}

// FindStaleRunning returns running tasks whose started_at predates the
// orphan threshold, grounded on the established detectAndRecoverOrphans query.
func (s *TaskStore) FindStaleRunning(ctx context.Context, tx pgx.Tx, threshold time.Time) ([]*models.PipelineTask, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+taskColumns+` FROM pipeline_tasks
		WHERE status = 'running' AND started_at IS NOT NULL AND started_at < $1`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PipelineTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
