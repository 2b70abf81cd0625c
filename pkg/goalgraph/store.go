// Package goalgraph implements the GoalGraph component: a
// hierarchical goal/node/edge graph per organization, with progress rollup,
// blocker detection, a meta-supervisor review gate, and advisory proposal
// flows. Built in the established service idiom: a constructor taking the
// DB handle and collaborators, panicking on nil deps, and methods that take
// a context plus tenant context and return typed errors (pkg/apperrors).
package goalgraph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

// Store is the pgx-backed repository for goals, nodes, edges, memory
// links, and the per-goal activity log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store. Panics if pool is nil.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("goalgraph: NewStore requires a non-nil pool")
	}
	return &Store{pool: pool}
}

// CreateGoal inserts a new goal (always status=proposed : "Creating
// a goal in proposed seeds an initial activity-log event" — the caller is
// responsible for writing that event in the same transaction).
func (s *Store) CreateGoal(ctx context.Context, tx pgx.Tx, g *models.Goal) error {
	metadata, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling goal metadata: %w", err)
	}
	return tx.QueryRow(ctx, `
		INSERT INTO goals (organization_id, creator_id, owner_type, owner_id, title, description,
			goal_type, status, priority, due_at, confidence, visibility_scope, scope_id, tags, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id, created_at, updated_at`,
		g.OrganizationID, g.Creator, g.OwnerType, g.OwnerID, g.Title, g.Description,
		g.GoalType, g.Status, g.Priority, g.DueAt, g.Confidence, g.Scope, g.ScopeID, g.Tags, metadata,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

// GetGoal loads a goal by id, scoped by organization_id for defense in depth
// alongside RLS.
func (s *Store) GetGoal(ctx context.Context, tx pgx.Tx, orgID, goalID string) (*models.Goal, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, organization_id, creator_id, owner_type, owner_id, title, description,
			goal_type, status, priority, due_at, confidence, visibility_scope, scope_id, tags, metadata,
			created_at, updated_at, completed_at
		FROM goals WHERE organization_id = $1 AND id = $2`, orgID, goalID)
	return scanGoal(row)
}

// ListGoals lists goals for an organization, optionally filtered by status.
func (s *Store) ListGoals(ctx context.Context, tx pgx.Tx, orgID string, status *models.GoalStatus) ([]*models.Goal, error) {
	var rows pgx.Rows
	var err error
	if status != nil {
		rows, err = tx.Query(ctx, `
			SELECT id, organization_id, creator_id, owner_type, owner_id, title, description,
				goal_type, status, priority, due_at, confidence, visibility_scope, scope_id, tags, metadata,
				created_at, updated_at, completed_at
			FROM goals WHERE organization_id = $1 AND status = $2 ORDER BY created_at DESC`, orgID, *status)
	} else {
		rows, err = tx.Query(ctx, `
			SELECT id, organization_id, creator_id, owner_type, owner_id, title, description,
				goal_type, status, priority, due_at, confidence, visibility_scope, scope_id, tags, metadata,
				created_at, updated_at, completed_at
			FROM goals WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*models.Goal, error) {
	g := &models.Goal{}
	var metadata []byte
	if err := row.Scan(&g.ID, &g.OrganizationID, &g.Creator, &g.OwnerType, &g.OwnerID, &g.Title, &g.Description,
		&g.GoalType, &g.Status, &g.Priority, &g.DueAt, &g.Confidence, &g.Scope, &g.ScopeID, &g.Tags, &metadata,
		&g.CreatedAt, &g.UpdatedAt, &g.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &g.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling goal metadata: %w", err)
		}
	}
	return g, nil
}

// UpdateStatus transitions a goal's status. Setting status=completed stamps
// completed_at=now.
func (s *Store) UpdateStatus(ctx context.Context, tx pgx.Tx, orgID, goalID string, status models.GoalStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE goals SET status = $3, updated_at = now(),
			completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END
		WHERE organization_id = $1 AND id = $2`, orgID, goalID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CreateNode inserts a new GoalNode.
func (s *Store) CreateNode(ctx context.Context, tx pgx.Tx, orgID string, n *models.GoalNode) error {
	blockers, err := json.Marshal(n.Blockers)
	if err != nil {
		return fmt.Errorf("marshaling node blockers: %w", err)
	}
	return tx.QueryRow(ctx, `
		INSERT INTO goal_nodes (goal_id, organization_id, parent_node_id, node_type, title, status,
			priority, assignees, ordering, expected_outputs, success_criteria, blockers, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at`,
		n.GoalID, orgID, n.ParentNodeID, n.NodeType, n.Title, n.Status,
		n.Priority, n.Assignees, n.Ordering, n.ExpectedOutputs, n.SuccessCriteria, blockers, n.Confidence,
	).Scan(&n.ID, &n.CreatedAt)
}

// ListNodes returns every node belonging to goalID ordered per the caller's
// explicit ordering field.
func (s *Store) ListNodes(ctx context.Context, tx pgx.Tx, orgID, goalID string) ([]*models.GoalNode, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, goal_id, parent_node_id, node_type, title, status, priority, assignees,
			ordering, expected_outputs, success_criteria, blockers, confidence, created_at, completed_at
		FROM goal_nodes WHERE organization_id = $1 AND goal_id = $2 ORDER BY ordering`, orgID, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GoalNode
	for rows.Next() {
		n := &models.GoalNode{}
		var blockers []byte
		if err := rows.Scan(&n.ID, &n.GoalID, &n.ParentNodeID, &n.NodeType, &n.Title, &n.Status, &n.Priority,
			&n.Assignees, &n.Ordering, &n.ExpectedOutputs, &n.SuccessCriteria, &blockers, &n.Confidence,
			&n.CreatedAt, &n.CompletedAt); err != nil {
			return nil, err
		}
		if len(blockers) > 0 {
			if err := json.Unmarshal(blockers, &n.Blockers); err != nil {
				return nil, fmt.Errorf("unmarshaling node blockers: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateNodeStatus transitions a node's status, stamping completed_at when
// moving to done.
func (s *Store) UpdateNodeStatus(ctx context.Context, tx pgx.Tx, orgID, nodeID string, status models.GoalNodeStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE goal_nodes SET status = $3, updated_at = now(),
			completed_at = CASE WHEN $3 = 'done' THEN now() ELSE completed_at END
		WHERE organization_id = $1 AND id = $2`, orgID, nodeID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CreateEdge inserts a directed GoalEdge. The store never traverses the
// graph on write to detect cycles; ON CONFLICT makes the call idempotent for a repeated (from, to,
// type) triple.
func (s *Store) CreateEdge(ctx context.Context, tx pgx.Tx, orgID string, e *models.GoalEdge) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO goal_edges (organization_id, from_node_id, to_node_id, edge_type)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (from_node_id, to_node_id, edge_type) DO NOTHING`,
		orgID, e.FromNodeID, e.ToNodeID, e.EdgeType)
	return err
}

// ListEdgesForGoal returns every edge among goalID's nodes.
func (s *Store) ListEdgesForGoal(ctx context.Context, tx pgx.Tx, orgID, goalID string) ([]*models.GoalEdge, error) {
	rows, err := tx.Query(ctx, `
		SELECT e.from_node_id, e.to_node_id, e.edge_type
		FROM goal_edges e
		JOIN goal_nodes n ON n.id = e.from_node_id
		WHERE e.organization_id = $1 AND n.goal_id = $2`, orgID, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GoalEdge
	for rows.Next() {
		e := &models.GoalEdge{}
		if err := rows.Scan(&e.FromNodeID, &e.ToNodeID, &e.EdgeType); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertMemoryLink inserts or updates a GoalMemoryLink; unique on
// (org, goal_id, memory_id) , updating the mutable fields on
// conflict (link_type, confidence, node_id, linked_by).
func (s *Store) UpsertMemoryLink(ctx context.Context, tx pgx.Tx, orgID string, l *models.GoalMemoryLink) error {
	return tx.QueryRow(ctx, `
		INSERT INTO goal_memory_links (organization_id, goal_id, memory_id, node_id, link_type, linked_by, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (organization_id, goal_id, memory_id) DO UPDATE SET
			link_type = $5, linked_by = $6, confidence = $7, node_id = $4, updated_at = now()
		RETURNING id, created_at`,
		orgID, l.GoalID, l.MemoryID, l.NodeID, l.LinkType, l.LinkedBy, l.Confidence,
	).Scan(&l.ID, &l.CreatedAt)
}

// ListMemoryLinks returns every memory link for a goal.
func (s *Store) ListMemoryLinks(ctx context.Context, tx pgx.Tx, orgID, goalID string) ([]*models.GoalMemoryLink, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, goal_id, memory_id, node_id, link_type, linked_by, confidence, created_at
		FROM goal_memory_links WHERE organization_id = $1 AND goal_id = $2`, orgID, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GoalMemoryLink
	for rows.Next() {
		l := &models.GoalMemoryLink{}
		if err := rows.Scan(&l.ID, &l.GoalID, &l.MemoryID, &l.NodeID, &l.LinkType, &l.LinkedBy, &l.Confidence, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AppendActivity writes one append-only GoalActivityLog row.
func (s *Store) AppendActivity(ctx context.Context, tx pgx.Tx, orgID string, a *models.GoalActivityLog) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshaling activity details: %w", err)
	}
	return tx.QueryRow(ctx, `
		INSERT INTO goal_activity_log (goal_id, organization_id, actor_id, activity_type, details)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		a.GoalID, orgID, a.ActorID, a.EventType, details,
	).Scan(&a.ID, &a.CreatedAt)
}

// ListActivity returns a goal's activity log, most recent first.
func (s *Store) ListActivity(ctx context.Context, tx pgx.Tx, orgID, goalID string, limit int) ([]*models.GoalActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := tx.Query(ctx, `
		SELECT id, goal_id, actor_id, activity_type, details, created_at
		FROM goal_activity_log WHERE organization_id = $1 AND goal_id = $2
		ORDER BY created_at DESC LIMIT $3`, orgID, goalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GoalActivityLog
	for rows.Next() {
		a := &models.GoalActivityLog{}
		var details []byte
		if err := rows.Scan(&a.ID, &a.GoalID, &a.ActorID, &a.EventType, &details, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling activity details: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
