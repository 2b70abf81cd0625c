// Package cleanup provides the background retention reaper: short-term
// memory expiry and legal-hold-aware hard deletion of soft-deleted rows.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// Service runs the retention reaper on a ticker, one pass per active
// organization per tick. All operations are idempotent and safe to run
// from multiple pods.
type Service struct {
	config   *config.RetentionConfig
	db       *pgxpool.Pool
	orgs     *store.OrgStore
	memories *store.MemoryStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. Panics if any dependency is nil.
func NewService(cfg *config.RetentionConfig, db *pgxpool.Pool, orgs *store.OrgStore, memories *store.MemoryStore) *Service {
	if cfg == nil || db == nil || orgs == nil || memories == nil {
		panic("cleanup: NewService requires non-nil config, db, orgs, and memories")
	}
	return &Service{config: cfg, db: db, orgs: orgs, memories: memories}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"short_term_ttl", s.config.ShortTermTTL,
		"soft_delete_grace_period", s.config.SoftDeleteGracePeriod,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// runAll runs one reaper pass across every active organization; a single
// org's failure is logged and does not block the remaining orgs.
func (s *Service) runAll(ctx context.Context) {
	orgIDs, err := s.orgs.ListActiveIDs(ctx)
	if err != nil {
		slog.Error("retention: listing active orgs failed", "error", err)
		return
	}

	for _, orgID := range orgIDs {
		if err := s.runForOrg(ctx, orgID); err != nil {
			slog.Error("retention: org pass failed", "org_id", orgID, "error", err)
		}
	}
}

func (s *Service) runForOrg(ctx context.Context, orgID string) error {
	tc := tenant.SystemContext(orgID)
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		expired, err := s.memories.ExpireShortTermPastTTL(ctx, tx, s.config.ShortTermTTL)
		if err != nil {
			return err
		}
		if expired > 0 {
			slog.Info("retention: expired short-term memories", "org_id", orgID, "count", expired)
		}

		reaped, err := s.memories.HardDeletePastGrace(ctx, tx, s.config.SoftDeleteGracePeriod)
		if err != nil {
			return err
		}
		if reaped > 0 {
			slog.Info("retention: hard-deleted soft-deleted memories", "org_id", orgID, "count", reaped)
		}
		return nil
	})
}
