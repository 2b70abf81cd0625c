package goalgraph

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/notify"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// ErrRequiresReview is returned by the meta-supervisor gate when a mutation
// is rejected pending human review.
var ErrRequiresReview = errors.New("goalgraph: mutation requires review")

// minEvidenceLinksForPolicyCompletion is the meta-supervisor's threshold:
// a policy-typed goal cannot complete with fewer evidence links than this.
const minEvidenceLinksForPolicyCompletion = 1

// proposalConfidenceThreshold is the default floor below which an advisory
// proposal (LLM or deterministic fallback) is silently discarded.
const proposalConfidenceThreshold = 0.5

// Service implements the GoalGraph operations, built in the
// established service idiom: a constructor taking every dependency and
// panicking on nil, methods taking a tenant context and returning
// pkg/apperrors sentinels.
type Service struct {
	db     *pgxpool.Pool
	store  *Store
	notify *notify.Notifier // optional — nil disables blocker-escalation alerts
}

// NewService constructs a Service. Panics if db or st is nil. notifier may
// be nil (alerts disabled).
func NewService(db *pgxpool.Pool, st *Store, notifier *notify.Notifier) *Service {
	if db == nil || st == nil {
		panic("goalgraph: NewService requires non-nil db and store")
	}
	return &Service{db: db, store: st, notify: notifier}
}

// CreateGoal creates a goal in "proposed" status and seeds an initial
// activity-log event in the same transaction.
func (s *Service) CreateGoal(ctx context.Context, tc *tenant.Context, g *models.Goal) (*models.Goal, error) {
	if g.Title == "" {
		return nil, apperrors.NewValidationError("title", "goal title is required")
	}
	g.OrganizationID = tc.OrganizationID
	g.Status = models.GoalStatusProposed

	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.store.CreateGoal(ctx, tx, g); err != nil {
			return err
		}
		return s.store.AppendActivity(ctx, tx, tc.OrganizationID, &models.GoalActivityLog{
			GoalID:    g.ID,
			EventType: "goal_created",
			ActorID:   tc.UserID,
			Details:   map[string]any{"status": g.Status},
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateStatus transitions a goal's status, running it through the
// meta-supervisor gate first.
func (s *Service) UpdateStatus(ctx context.Context, tc *tenant.Context, goalID string, status models.GoalStatus) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		g, err := s.store.GetGoal(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}

		if status == models.GoalStatusCompleted {
			links, err := s.store.ListMemoryLinks(ctx, tx, tc.OrganizationID, goalID)
			if err != nil {
				return err
			}
			if err := s.metaSupervisorGateCompletion(g, links); err != nil {
				return err
			}
		}

		if err := s.store.UpdateStatus(ctx, tx, tc.OrganizationID, goalID, status); err != nil {
			return err
		}
		return s.store.AppendActivity(ctx, tx, tc.OrganizationID, &models.GoalActivityLog{
			GoalID:    goalID,
			EventType: "status_changed",
			ActorID:   tc.UserID,
			Details:   map[string]any{"from": string(g.Status), "to": string(status)},
		})
	})
}

// metaSupervisorGateCompletion rejects completing a policy-typed goal
// without sufficient evidence links.
func (s *Service) metaSupervisorGateCompletion(g *models.Goal, links []*models.GoalMemoryLink) error {
	if g.GoalType != models.GoalTypePolicy {
		return nil
	}
	evidenceCount := 0
	for _, l := range links {
		if l.LinkType == models.GoalLinkEvidence {
			evidenceCount++
		}
	}
	if evidenceCount < minEvidenceLinksForPolicyCompletion {
		return ErrRequiresReview
	}
	return nil
}

// GetGoal fetches a single goal by id.
func (s *Service) GetGoal(ctx context.Context, tc *tenant.Context, goalID string) (*models.Goal, error) {
	var g *models.Goal
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		g, err = s.store.GetGoal(ctx, tx, tc.OrganizationID, goalID)
		return err
	})
	return g, err
}

// ListGoals lists goals for the caller's organization, optionally filtered
// to a single status.
func (s *Service) ListGoals(ctx context.Context, tc *tenant.Context, status *models.GoalStatus) ([]*models.Goal, error) {
	var goals []*models.Goal
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		goals, err = s.store.ListGoals(ctx, tx, tc.OrganizationID, status)
		return err
	})
	return goals, err
}

// ListNodes lists a goal's nodes.
func (s *Service) ListNodes(ctx context.Context, tc *tenant.Context, goalID string) ([]*models.GoalNode, error) {
	var nodes []*models.GoalNode
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		nodes, err = s.store.ListNodes(ctx, tx, tc.OrganizationID, goalID)
		return err
	})
	return nodes, err
}

// ListActivity lists the most recent activity-log entries for a goal.
func (s *Service) ListActivity(ctx context.Context, tc *tenant.Context, goalID string, limit int) ([]*models.GoalActivityLog, error) {
	var entries []*models.GoalActivityLog
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		entries, err = s.store.ListActivity(ctx, tx, tc.OrganizationID, goalID, limit)
		return err
	})
	return entries, err
}

// AddNode creates a node under goalID.
func (s *Service) AddNode(ctx context.Context, tc *tenant.Context, n *models.GoalNode) (*models.GoalNode, error) {
	if n.Title == "" {
		return nil, apperrors.NewValidationError("title", "node title is required")
	}
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.store.CreateNode(ctx, tx, tc.OrganizationID, n)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// AddEdge creates a directed edge between two nodes of goalID. Cycle
// detection is the caller's responsibility — this method does not
// traverse the graph.
func (s *Service) AddEdge(ctx context.Context, tc *tenant.Context, e *models.GoalEdge) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.store.CreateEdge(ctx, tx, tc.OrganizationID, e)
	})
}

// LinkMemory upserts a GoalMemoryLink after the meta-supervisor gate: an
// auto-linked evidence link on a personal-scope goal returns
// ErrRequiresReview. The gate does not examine the linked memory's own
// scope or classification.
func (s *Service) LinkMemory(ctx context.Context, tc *tenant.Context, goalID string, l *models.GoalMemoryLink) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		g, err := s.store.GetGoal(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}
		if err := s.metaSupervisorGateCrossScopeEvidence(g, l); err != nil {
			return err
		}
		l.GoalID = goalID
		return s.store.UpsertMemoryLink(ctx, tx, tc.OrganizationID, l)
	})
}

func (s *Service) metaSupervisorGateCrossScopeEvidence(g *models.Goal, l *models.GoalMemoryLink) error {
	if l.LinkType != models.GoalLinkEvidence {
		return nil
	}
	if g.Scope == models.ScopePersonal && l.LinkedBy == models.GoalLinkedByAuto {
		return ErrRequiresReview
	}
	return nil
}

// ProgressResult is the rollup computed over a goal's actionable nodes.
type ProgressResult struct {
	CompletedNodes  int
	TotalNodes      int
	PercentComplete float64
	Confidence      float64
}

// Progress computes the rollup: percent_complete = 100*done/total (0.0 when
// total=0); confidence is the goal's own confidence, clamped defensively.
func (s *Service) Progress(ctx context.Context, tc *tenant.Context, goalID string) (*ProgressResult, error) {
	var result *ProgressResult
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		g, err := s.store.GetGoal(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}
		nodes, err := s.store.ListNodes(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}
		done := 0
		for _, n := range nodes {
			if n.Status == models.GoalNodeDone {
				done++
			}
		}
		pct := 0.0
		if len(nodes) > 0 {
			pct = 100 * float64(done) / float64(len(nodes))
		}
		result = &ProgressResult{
			CompletedNodes:  done,
			TotalNodes:      len(nodes),
			PercentComplete: pct,
			Confidence:      clamp01(g.Confidence),
		}
		return nil
	})
	return result, err
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DetectBlockers finds blocking nodes (status=blocked, non-empty blockers,
// or an outgoing depends_on edge whose target is not done) and, if any are
// found while the goal is currently active, transitions it to blocked and
// writes an escalate_blockers activity event plus a Slack alert.
func (s *Service) DetectBlockers(ctx context.Context, tc *tenant.Context, goalID string) ([]*models.GoalNode, error) {
	var blockers []*models.GoalNode
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		g, err := s.store.GetGoal(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}
		nodes, err := s.store.ListNodes(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}
		edges, err := s.store.ListEdgesForGoal(ctx, tx, tc.OrganizationID, goalID)
		if err != nil {
			return err
		}

		nodeByID := make(map[string]*models.GoalNode, len(nodes))
		for _, n := range nodes {
			nodeByID[n.ID] = n
		}
		blockedByDependency := make(map[string]bool)
		for _, e := range edges {
			if e.EdgeType != models.GoalEdgeDependsOn {
				continue
			}
			if target, ok := nodeByID[e.ToNodeID]; ok && target.Status != models.GoalNodeDone {
				blockedByDependency[e.FromNodeID] = true
			}
		}

		for _, n := range nodes {
			if n.Status == models.GoalNodeBlocked || len(n.Blockers) > 0 || blockedByDependency[n.ID] {
				blockers = append(blockers, n)
			}
		}

		if len(blockers) == 0 || g.Status != models.GoalStatusActive {
			return nil
		}

		if err := s.store.UpdateStatus(ctx, tx, tc.OrganizationID, goalID, models.GoalStatusBlocked); err != nil {
			return err
		}
		blockerIDs := make([]string, len(blockers))
		for i, n := range blockers {
			blockerIDs[i] = n.ID
		}
		if err := s.store.AppendActivity(ctx, tx, tc.OrganizationID, &models.GoalActivityLog{
			GoalID:    goalID,
			EventType: "escalate_blockers",
			ActorID:   tenant.SystemActor,
			Details:   map[string]any{"blocked_node_ids": blockerIDs},
		}); err != nil {
			return err
		}

		if s.notify != nil {
			s.notify.BlockerEscalation(ctx, tc.OrganizationID, goalID, strings.Join(blockerIDs, ","), "blocked nodes detected")
		}
		return nil
	})
	return blockers, err
}

// ProposeFromTagOverlap implements the deterministic fallback proposal
// flow used when the LLM path is unavailable: an
// overlap of size k between a memory's tags and a goal's tags suggests a
// link of confidence min(1.0, 0.55+0.1*k), link_type=evidence by default or
// progress if the memory's tags include "progress" or "milestone". Below
// threshold, it returns nil — a silent discard, not an error.
func (s *Service) ProposeFromTagOverlap(goal *models.Goal, memoryTags []string) *models.GoalMemoryLink {
	k := tagOverlapCount(goal.Tags, memoryTags)
	if k == 0 {
		return nil
	}
	confidence := 0.55 + 0.1*float64(k)
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < proposalConfidenceThreshold {
		return nil
	}

	linkType := models.GoalLinkEvidence
	for _, t := range memoryTags {
		lt := strings.ToLower(t)
		if lt == "progress" || lt == "milestone" {
			linkType = models.GoalLinkProgress
			break
		}
	}

	return &models.GoalMemoryLink{
		GoalID:     goal.ID,
		LinkType:   linkType,
		LinkedBy:   models.GoalLinkedByAuto,
		Confidence: confidence,
	}
}

func tagOverlapCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = true
	}
	count := 0
	seen := make(map[string]bool)
	for _, t := range b {
		lt := strings.ToLower(t)
		if set[lt] && !seen[lt] {
			count++
			seen[lt] = true
		}
	}
	return count
}
