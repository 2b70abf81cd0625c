package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/notify"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// Pool manages a pool of task-queue workers for one organization, mirroring
// the established WorkerPool but scoped per-org since RLS isolates every row
// by organization_id and each org's SLA ordering is independent.
type Pool struct {
	podID    string
	orgID    string
	db       *pgxpool.Pool
	tasks    *store.TaskStore
	config   *config.QueueConfig
	executor TaskExecutor
	notifier *notify.Notifier

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeTasks map[string]context.CancelFunc
	mu          sync.RWMutex
	started     bool

	reconcile reconcileState
}

type reconcileState struct {
	mu            sync.Mutex
	lastRun       time.Time
	tasksRequeued int
}

// NewPool creates a new task-queue pool for one organization.
func NewPool(podID, orgID string, db *pgxpool.Pool, tasks *store.TaskStore, cfg *config.QueueConfig, executor TaskExecutor, notifier *notify.Notifier) *Pool {
	if db == nil || tasks == nil || cfg == nil || executor == nil {
		panic("taskqueue: NewPool requires non-nil db, tasks, config, and executor")
	}
	return &Pool{
		podID:       podID,
		orgID:       orgID,
		db:          db,
		tasks:       tasks,
		config:      cfg,
		executor:    executor,
		notifier:    notifier,
		workers:     make([]*Worker, 0, cfg.WorkerCount),
		stopCh:      make(chan struct{}),
		activeTasks: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the reconciliation background loop.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("task pool already started, ignoring duplicate Start call", "pod_id", p.podID, "org_id", p.orgID)
		return nil
	}
	p.started = true

	slog.Info("starting task pool", "pod_id", p.podID, "org_id", p.orgID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		w := NewWorker(workerID, p.orgID, p.db, p.tasks, p.config, p.executor, p, p.notifier)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReconciliation(ctx)
	}()

	return nil
}

// Stop signals all workers to stop and waits for them to finish, letting
// each worker finish its current task (graceful shutdown ).
func (p *Pool) Stop() {
	slog.Info("stopping task pool gracefully", "pod_id", p.podID, "org_id", p.orgID)

	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("task pool stopped gracefully", "pod_id", p.podID, "org_id", p.orgID)
}

// RegisterTask stores a cancel function for manual cancellation.
func (p *Pool) RegisterTask(taskID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeTasks[taskID] = cancel
}

// UnregisterTask removes the cancel function once a task finishes.
func (p *Pool) UnregisterTask(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeTasks, taskID)
}

// CancelTask triggers context cancellation for a task claimed on this pod.
func (p *Pool) CancelTask(taskID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeTasks[taskID]; ok {
		cancel()
		return true
	}
	return false
}

// systemTenant builds the system-actor tenant context used for internal
// queue bookkeeping transactions.
func (p *Pool) systemTenant() *tenant.Context {
	return tenant.SystemContext(p.orgID)
}

// runReconciliation periodically promotes blocked tasks whose dependency
// has completed back to queued, mirroring the established
// runOrphanDetection loop. It does not look for orphaned running tasks.
func (p *Pool) runReconciliation(ctx context.Context) {
	ticker := time.NewTicker(p.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reconcileOnce(ctx)
		}
	}
}

func (p *Pool) reconcileOnce(ctx context.Context) {
	tc := p.systemTenant()
	err := store.WithTenantSession(ctx, p.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		requeued, err := p.tasks.ReconcileBlocked(ctx, tx)
		if err != nil {
			return err
		}
		p.reconcile.mu.Lock()
		p.reconcile.tasksRequeued += int(requeued)
		p.reconcile.lastRun = time.Now()
		p.reconcile.mu.Unlock()
		return nil
	})
	if err != nil {
		slog.Error("task reconciliation failed", "org_id", p.orgID, "error", err)
	}
}

// Health returns the current health status of the pool.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	tc := p.systemTenant()
	var activeTasks, queueDepth int
	dbErr := store.WithTenantSession(ctx, p.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		activeTasks, err = p.tasks.CountActive(ctx, tx)
		return err
	})

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := dbErr == nil
	var dbError string
	if !dbHealthy {
		dbError = dbErr.Error()
	}

	p.reconcile.mu.Lock()
	lastRun := p.reconcile.lastRun
	requeued := p.reconcile.tasksRequeued
	p.reconcile.mu.Unlock()

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && activeTasks <= p.config.MaxConcurrentTasks && dbHealthy,
		DBReachable:   dbHealthy,
		DBError:       dbError,
		PodID:         p.podID,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		ActiveTasks:   activeTasks,
		MaxConcurrent: p.config.MaxConcurrentTasks,
		QueueDepth:    queueDepth,
		WorkerStats:   workerStats,
		LastReconcile: lastRun,
		TasksRequeued: requeued,
	}
}
