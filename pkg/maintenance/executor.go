// Package maintenance implements the Maintenance Workers: the
// access-counter update and co-activation graph update run as PipelineTask
// executions dispatched through pkg/taskqueue's worker pool; nightly decay
// and causal hypothesis refresh run as standalone periodic jobs over every
// active organization. All of it runs under a system-actor tenant context
// so row-level security still applies.
package maintenance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/taskqueue"
	"github.com/sansten/memoryos/pkg/tenant"
)

const (
	coactivationWindowHours = 24
	topNPairs               = 10
)

// Executor implements taskqueue.TaskExecutor for the two background task
// types the retrieval engine's async tail enqueues: access_update and
// coactivation_update.
type Executor struct {
	db         *pgxpool.Pool
	activation *store.ActivationStore
}

// NewExecutor constructs an Executor. Panics if any dependency is nil.
func NewExecutor(db *pgxpool.Pool, activation *store.ActivationStore) *Executor {
	if db == nil || activation == nil {
		panic("maintenance: NewExecutor requires non-nil db and activation")
	}
	return &Executor{db: db, activation: activation}
}

// Execute dispatches on task.TaskType, satisfying taskqueue.TaskExecutor.
func (e *Executor) Execute(ctx context.Context, task *models.PipelineTask) *taskqueue.ExecutionResult {
	switch task.TaskType {
	case "access_update":
		return e.executeAccessUpdate(ctx, task)
	case "coactivation_update":
		return e.executeCoactivationUpdate(ctx, task)
	default:
		return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: fmt.Errorf("maintenance: unknown task type %q", task.TaskType)}
	}
}

// executeAccessUpdate retries up to 3 times with exponential backoff on
// transient DB errors. Idempotency is not
// required since access_count increments are inherently monotonic.
func (e *Executor) executeAccessUpdate(ctx context.Context, task *models.PipelineTask) *taskqueue.ExecutionResult {
	memoryID, _ := task.Metadata["memory_id"].(string)
	if memoryID == "" {
		return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: fmt.Errorf("access_update: missing memory_id")}
	}

	start := time.Now()
	tc := tenant.SystemContext(task.OrganizationID)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			backoff += time.Duration(rand.IntN(50)) * time.Millisecond
			select {
			case <-ctx.Done():
				return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		lastErr = store.WithTenantSession(ctx, e.db, tc, func(ctx context.Context, tx pgx.Tx) error {
			if _, err := e.activation.GetOrInit(ctx, tx, task.OrganizationID, memoryID); err != nil {
				return err
			}
			return e.activation.Touch(ctx, tx, memoryID, time.Now())
		})
		if lastErr == nil {
			return &taskqueue.ExecutionResult{Status: models.PipelineTaskSucceeded, DurationMS: int(time.Since(start).Milliseconds())}
		}
	}
	return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: lastErr, DurationMS: int(time.Since(start).Milliseconds())}
}

// executeCoactivationUpdate applies the sliding-window decay update for
// every (primary, co) pair, then enforces the top-N invariant on the
// primary's incident edges. An empty co list creates no edges but still
// runs the top-N enforcement, matching the idempotent no-op boundary for a
// single-result search (nothing to co-activate against).
func (e *Executor) executeCoactivationUpdate(ctx context.Context, task *models.PipelineTask) *taskqueue.ExecutionResult {
	primary, _ := task.Metadata["primary"].(string)
	if primary == "" {
		return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: fmt.Errorf("coactivation_update: missing primary id")}
	}
	coRaw, _ := task.Metadata["co"].([]any)
	co := make([]string, 0, len(coRaw))
	for _, v := range coRaw {
		if s, ok := v.(string); ok {
			co = append(co, s)
		}
	}

	start := time.Now()
	tc := tenant.SystemContext(task.OrganizationID)
	now := time.Now()

	err := store.WithTenantSession(ctx, e.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		for _, other := range co {
			if other == primary {
				continue
			}
			if err := e.activation.UpdateCoactivationWindowed(ctx, tx, task.OrganizationID, primary, other, coactivationWindowHours, now); err != nil {
				return fmt.Errorf("updating coactivation edge (%s,%s): %w", primary, other, err)
			}
		}
		if _, err := e.activation.EnforceTopN(ctx, tx, task.OrganizationID, primary, topNPairs); err != nil {
			return fmt.Errorf("enforcing top-N invariant: %w", err)
		}
		return nil
	})
	if err != nil {
		return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: err, DurationMS: int(time.Since(start).Milliseconds())}
	}
	return &taskqueue.ExecutionResult{Status: models.PipelineTaskSucceeded, DurationMS: int(time.Since(start).Milliseconds())}
}
