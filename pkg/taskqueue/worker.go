package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/notify"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// TaskRegistry is the subset of Pool a Worker needs for task registration.
type TaskRegistry interface {
	RegisterTask(taskID string, cancel context.CancelFunc)
	UnregisterTask(taskID string)
}

// Worker is a single queue worker that polls for and processes tasks.
type Worker struct {
	id       string
	orgID    string
	db       *pgxpool.Pool
	tasks    *store.TaskStore
	config   *config.QueueConfig
	executor TaskExecutor
	pool     TaskRegistry
	notifier *notify.Notifier
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id, orgID string, db *pgxpool.Pool, tasks *store.TaskStore, cfg *config.QueueConfig, executor TaskExecutor, pool TaskRegistry, notifier *notify.Notifier) *Worker {
	return &Worker{
		id:           id,
		orgID:        orgID,
		db:           db,
		tasks:        tasks,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		notifier:     notifier,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         string(w.status),
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "org_id", w.orgID)
	log.Info("task worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("task worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, task worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasksAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing task", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) systemTenant() *tenant.Context {
	return tenant.SystemContext(w.orgID)
}

// pollAndProcess claims the next task (if capacity allows) and runs it to
// completion, mirroring the established pollAndProcess structure.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	var task *models.PipelineTask

	err := store.WithTenantSession(ctx, w.db, w.systemTenant(), func(ctx context.Context, tx pgx.Tx) error {
		activeCount, err := w.tasks.CountActive(ctx, tx)
		if err != nil {
			return fmt.Errorf("checking active tasks: %w", err)
		}
		if activeCount >= w.config.MaxConcurrentTasks {
			return ErrAtCapacity
		}

		claimed, err := w.tasks.ClaimNext(ctx, tx, w.id)
		if err != nil {
			if errors.Is(err, store.ErrNoTasksAvailable) {
				return ErrNoTasksAvailable
			}
			return err
		}
		task = claimed
		return nil
	})
	if err != nil {
		return err
	}

	log := slog.With("task_id", task.ID, "worker_id", w.id, "task_type", task.TaskType)
	log.Info("task claimed")

	w.setStatus(WorkerStatusWorking, task.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	timeout := backgroundTaskTimeout(task.EstimatedLatencyMS)
	taskCtx, cancelTask := context.WithTimeout(ctx, timeout)
	defer cancelTask()

	w.pool.RegisterTask(task.ID, cancelTask)
	defer w.pool.UnregisterTask(task.ID)

	started := time.Now()
	result := w.executor.Execute(taskCtx, task)
	if result == nil {
		result = w.synthesizeTimeoutOrCancelResult(taskCtx)
	}
	if result.DurationMS == 0 {
		result.DurationMS = int(time.Since(started).Milliseconds())
	}

	return w.finishTask(context.Background(), task, result, log)
}

func (w *Worker) synthesizeTimeoutOrCancelResult(ctx context.Context) *ExecutionResult {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Status: models.PipelineTaskFailed, Err: fmt.Errorf("task timed out")}
	case errors.Is(ctx.Err(), context.Canceled):
		return &ExecutionResult{Status: models.PipelineTaskFailed, Err: context.Canceled}
	default:
		return &ExecutionResult{Status: models.PipelineTaskFailed, Err: fmt.Errorf("executor returned nil result")}
	}
}

// finishTask records the terminal outcome, retries with backoff on
// transient failure, or dead-letters the task once attempts are exhausted.
func (w *Worker) finishTask(ctx context.Context, task *models.PipelineTask, result *ExecutionResult, log *slog.Logger) error {
	lastErr := ""
	if result.Err != nil {
		lastErr = result.Err.Error()
	}

	willRetry := result.Status == models.PipelineTaskFailed && task.Attempts < task.MaxAttempts
	if willRetry {
		w.sleep(retryBackoff(w.config, task.Attempts))
	}

	return store.WithTenantSession(ctx, w.db, w.systemTenant(), func(ctx context.Context, tx pgx.Tx) error {
		if err := w.tasks.Complete(ctx, tx, task.ID, result.Status, result.ActualTokens, result.DurationMS, lastErr); err != nil {
			return fmt.Errorf("recording task completion: %w", err)
		}

		if result.Status == models.PipelineTaskFailed {
			if willRetry {
				if err := w.backoffThenRequeue(ctx, tx, task.ID, task.Attempts); err != nil {
					return err
				}
				log.Warn("task failed, requeued for retry", "attempt", task.Attempts)
			} else {
				if err := w.tasks.DeadLetter(ctx, tx, task, lastErr); err != nil {
					return fmt.Errorf("dead-lettering task: %w", err)
				}
				log.Error("task exhausted retries, dead-lettered")
				w.notifier.DeadLetterTask(ctx, task.OrganizationID, task.ID, task.TaskType, lastErr)
			}
		}

		w.mu.Lock()
		w.tasksProcessed++
		w.mu.Unlock()
		return nil
	})
}

// backoffThenRequeue requeues a failed task for retry. The caller already
// waited out the backoff window (see retryBackoff) before opening this
// transaction, so the connection is never held idle during the sleep.
func (w *Worker) backoffThenRequeue(ctx context.Context, tx pgx.Tx, taskID string, attempt int) error {
	return w.tasks.RequeueForRetry(ctx, tx, taskID)
}

// retryBackoff computes RetryBackoffBase * 2^(attempt-1) as an exponential
// backoff: attempt 1 waits one base interval, each later attempt doubles it.
func retryBackoff(cfg *config.QueueConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return cfg.RetryBackoffBase << (attempt - 1)
}

// pollInterval returns the poll duration with jitter, matching the
// established [base-jitter, base+jitter] window.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}
