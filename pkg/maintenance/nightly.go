package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

const (
	pruneMinWeight      = 0.01
	pruneOlderThanDays  = 90
	causalMinEdgeWeight = 0.25
	causalRefreshLimit  = 100
)

// NightlyJob runs the nightly decay and causal-hypothesis-refresh passes
// across every active organization. Grounded on the established worker polling loop
// shape: a Start/Stop pair around an internal ticker goroutine.
type NightlyJob struct {
	db         *pgxpool.Pool
	orgs       *store.OrgStore
	activation *store.ActivationStore
	causal     *store.CausalHypothesisStore
	interval   time.Duration

	stopCh   chan struct{}
	stopOnce func()
}

// NewNightlyJob constructs a NightlyJob. Panics if any dependency is nil.
func NewNightlyJob(db *pgxpool.Pool, orgs *store.OrgStore, activation *store.ActivationStore, causal *store.CausalHypothesisStore, interval time.Duration) *NightlyJob {
	if db == nil || orgs == nil || activation == nil || causal == nil {
		panic("maintenance: NewNightlyJob requires non-nil db, orgs, activation, and causal")
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &NightlyJob{db: db, orgs: orgs, activation: activation, causal: causal, interval: interval}
}

// Start begins the ticker loop in a goroutine. Call Stop to end it.
func (j *NightlyJob) Start(ctx context.Context) {
	j.stopCh = make(chan struct{})
	stopped := false
	j.stopOnce = func() {
		if !stopped {
			stopped = true
			close(j.stopCh)
		}
	}
	go j.run(ctx)
}

// Stop ends the ticker loop.
func (j *NightlyJob) Stop() {
	if j.stopOnce != nil {
		j.stopOnce()
	}
}

func (j *NightlyJob) run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce executes one pass across every active org; a single org's
// failure is logged and does not block the remaining orgs.
func (j *NightlyJob) RunOnce(ctx context.Context) {
	orgIDs, err := j.orgs.ListActiveIDs(ctx)
	if err != nil {
		slog.Error("nightly maintenance: listing active orgs failed", "error", err)
		return
	}

	for _, orgID := range orgIDs {
		if err := j.runForOrg(ctx, orgID); err != nil {
			slog.Error("nightly maintenance: org pass failed", "org_id", orgID, "error", err)
		}
	}
}

func (j *NightlyJob) runForOrg(ctx context.Context, orgID string) error {
	tc := tenant.SystemContext(orgID)
	return store.WithTenantSession(ctx, j.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		clamped, err := j.activation.ClampActivationStates(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if _, err := j.activation.RewriteEdgeWeights(ctx, tx, orgID); err != nil {
			return err
		}
		pruned, err := j.activation.PruneStaleEdges(ctx, tx, orgID, pruneMinWeight, time.Now().Add(-pruneOlderThanDays*24*time.Hour))
		if err != nil {
			return err
		}

		edges, err := j.activation.TopEdgesAbove(ctx, tx, orgID, causalMinEdgeWeight, causalRefreshLimit)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := j.causal.UpsertFromEdge(ctx, tx, orgID, []string{e.MemoryA, e.MemoryB}, e.EdgeWeight); err != nil {
				return err
			}
		}

		slog.Info("nightly maintenance pass complete", "org_id", orgID,
			"clamped_states", clamped, "pruned_edges", pruned, "causal_edges_reviewed", len(edges))
		return nil
	})
}
