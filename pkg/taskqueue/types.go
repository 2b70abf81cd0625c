// Package taskqueue implements the SLA-Ordered Task Scheduler: a pool
// of workers claiming PipelineTasks via SELECT ... FOR UPDATE SKIP LOCKED,
// ordered deadline-first/priority-next/oldest-created-last, with retry
// backoff, dead-letter quarantine, and dependency-blocked reconciliation.
// Grounded directly on the established pool/worker/orphan-detection worker
// pool shape, generalized from "claim one alert session" to "claim one
// PipelineTask".
package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/sansten/memoryos/pkg/models"
)

// Sentinel errors for queue operations, mirroring the established
// ErrNoSessionsAvailable/ErrAtCapacity pair.
var (
	ErrNoTasksAvailable = errors.New("taskqueue: no tasks available")
	ErrAtCapacity       = errors.New("taskqueue: at capacity")
)

// TaskExecutor is the interface background task processing implements.
// Grounded on the established SessionExecutor: the executor owns the entire
// task lifecycle, writing progressive state; the worker only handles
// claiming, heartbeat, terminal status, and dead-letter routing.
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.PipelineTask) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one task execution attempt.
type ExecutionResult struct {
	Status       models.PipelineTaskStatus
	ActualTokens int
	DurationMS   int
	Err          error
}

// PoolHealth mirrors the established PoolHealth shape, generalized to tasks.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveTasks      int            `json:"active_tasks"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastReconcile    time.Time      `json:"last_reconcile"`
	TasksRequeued    int            `json:"tasks_requeued"`
}

// WorkerHealth mirrors the established per-worker health snapshot.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	CurrentTaskID     string    `json:"current_task_id,omitempty"`
	TasksProcessed    int       `json:"tasks_processed"`
	LastActivity      time.Time `json:"last_activity"`
}

// backgroundTaskTimeout computes the soft per-task timeout as
// max(60s, 5x estimated_latency_ms).
func backgroundTaskTimeout(estimatedLatencyMS int) time.Duration {
	floor := 60 * time.Second
	estimated := 5 * time.Duration(estimatedLatencyMS) * time.Millisecond
	if estimated > floor {
		return estimated
	}
	return floor
}
