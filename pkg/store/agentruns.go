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

// AgentRunStore is the pgx-backed repository for AgentRun rows, their
// trajectory events, and the cross-memory result cache.
type AgentRunStore struct {
	pool *pgxpool.Pool
}

// NewAgentRunStore constructs an AgentRunStore. Panics if pool is nil.
func NewAgentRunStore(pool *pgxpool.Pool) *AgentRunStore {
	if pool == nil {
		panic("store: NewAgentRunStore requires a non-nil pool")
	}
	return &AgentRunStore{pool: pool}
}

const agentRunColumns = `id, organization_id, memory_id, agent_name, agent_version, inputs_hash,
	status, confidence, outputs, warnings, errors, started_at, finished_at, trace_id, provenance`

func scanAgentRun(row pgx.Row) (*models.AgentRun, error) {
	var r models.AgentRun
	var outputs, warnings, errs, provenance []byte
	if err := row.Scan(
		&r.ID, &r.OrganizationID, &r.MemoryID, &r.AgentName, &r.AgentVersion, &r.InputsHash,
		&r.Status, &r.Confidence, &outputs, &warnings, &errs, &r.StartedAt, &r.FinishedAt, &r.TraceID, &provenance,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(outputs, &r.Outputs)
	_ = json.Unmarshal(warnings, &r.Warnings)
	_ = json.Unmarshal(errs, &r.Errors)
	_ = json.Unmarshal(provenance, &r.Provenance)
	return &r, nil
}

// GetByKey loads the AgentRun keyed by (org, memory, name, version), used
// for the idempotent short-circuit check.
func (s *AgentRunStore) GetByKey(ctx context.Context, tx pgx.Tx, orgID, memoryID, name, version string) (*models.AgentRun, error) {
	row := tx.QueryRow(ctx, `SELECT `+agentRunColumns+` FROM agent_runs
		WHERE organization_id = $1 AND memory_id = $2 AND agent_name = $3 AND agent_version = $4`,
		orgID, memoryID, name, version)
	return scanAgentRun(row)
}

// Upsert inserts or replaces the AgentRun row keyed by (org, memory, name,
// version), returning the persisted row with its id.
func (s *AgentRunStore) Upsert(ctx context.Context, tx pgx.Tx, r *models.AgentRun) (*models.AgentRun, error) {
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return nil, fmt.Errorf("encoding outputs: %w", err)
	}
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return nil, fmt.Errorf("encoding warnings: %w", err)
	}
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return nil, fmt.Errorf("encoding errors: %w", err)
	}
	provenance, err := json.Marshal(r.Provenance)
	if err != nil {
		return nil, fmt.Errorf("encoding provenance: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO agent_runs (organization_id, memory_id, agent_name, agent_version, inputs_hash,
			status, confidence, outputs, warnings, errors, finished_at, trace_id, provenance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (organization_id, memory_id, agent_name, agent_version) DO UPDATE SET
			inputs_hash = $5, status = $6, confidence = $7, outputs = $8, warnings = $9,
			errors = $10, finished_at = $11, trace_id = $12, provenance = $13
		RETURNING `+agentRunColumns,
		r.OrganizationID, r.MemoryID, r.AgentName, r.AgentVersion, r.InputsHash,
		r.Status, r.Confidence, outputs, warnings, errs, r.FinishedAt, r.TraceID, provenance)
	return scanAgentRun(row)
}

// AppendEvent appends one trajectory event for an AgentRun.
func (s *AgentRunStore) AppendEvent(ctx context.Context, tx pgx.Tx, orgID, agentRunID string, stepIndex int, eventType, summary string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO agent_run_events (agent_run_id, organization_id, step_index, event_type, summary_text, payload)
		VALUES ($1,$2,$3,$4,$5,$6)`, agentRunID, orgID, stepIndex, eventType, summary, data)
	return err
}

// ListSuccessfulOutputs returns the outputs of every successful AgentRun for
// a memory, keyed by agent name, for sibling-agent prior enrichment.
func (s *AgentRunStore) ListSuccessfulOutputs(ctx context.Context, tx pgx.Tx, orgID, memoryID string) (map[string]map[string]any, error) {
	rows, err := tx.Query(ctx, `
		SELECT agent_name, outputs FROM agent_runs
		WHERE organization_id = $1 AND memory_id = $2 AND status = 'success'`, orgID, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]any)
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, err
		}
		var outputs map[string]any
		if err := json.Unmarshal(payload, &outputs); err != nil {
			return nil, err
		}
		out[name] = outputs
	}
	return out, rows.Err()
}

// FeedbackFingerprint computes "<pending_count>:<max_created_at>" over
// unapplied feedback for a memory, which is folded into the
// FeedbackLearning agent's inputs hash so new feedback re-invalidates it.
func (s *AgentRunStore) FeedbackFingerprint(ctx context.Context, tx pgx.Tx, memoryID string) (string, error) {
	var count int64
	var maxCreated *time.Time
	row := tx.QueryRow(ctx, `
		SELECT count(*), max(created_at) FROM memory_feedback
		WHERE memory_id = $1 AND NOT is_applied`, memoryID)
	if err := row.Scan(&count, &maxCreated); err != nil {
		return "", err
	}
	stamp := "none"
	if maxCreated != nil {
		stamp = maxCreated.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%d:%s", count, stamp), nil
}

// GetCachedResult looks up the cross-memory agent result cache, returning
// apperrors.ErrNotFound on miss or expiry.
func (s *AgentRunStore) GetCachedResult(ctx context.Context, tx pgx.Tx, orgID, name, version, strategy, model, cacheKey string) (*models.AgentResultCache, error) {
	var c models.AgentResultCache
	var outputs []byte
	row := tx.QueryRow(ctx, `
		SELECT organization_id, agent_name, agent_version, strategy, model, outputs, confidence, expires_at
		FROM agent_result_cache
		WHERE organization_id = $1 AND agent_name = $2 AND agent_version = $3
			AND strategy = $4 AND model = $5 AND cache_key = $6 AND expires_at > now()`,
		orgID, name, version, strategy, model, cacheKey)
	if err := row.Scan(&c.OrgID, &c.AgentName, &c.Version, &c.Strategy, &c.Model, &outputs, &c.Confidence, &c.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	c.CacheKey = cacheKey
	_ = json.Unmarshal(outputs, &c.Outputs)
	return &c, nil
}

// PutCachedResult writes the cache entry, best-effort (callers should not
// fail the request on error; step 9).
func (s *AgentRunStore) PutCachedResult(ctx context.Context, tx pgx.Tx, c *models.AgentResultCache, ttl time.Duration) error {
	outputs, err := json.Marshal(c.Outputs)
	if err != nil {
		return fmt.Errorf("encoding cached outputs: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO agent_result_cache (organization_id, agent_name, agent_version, strategy, model, cache_key, outputs, confidence, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (organization_id, agent_name, agent_version, strategy, model, cache_key) DO UPDATE SET
			outputs = $7, confidence = $8, expires_at = $9`,
		c.OrgID, c.AgentName, c.Version, c.Strategy, c.Model, c.CacheKey, outputs, c.Confidence, time.Now().Add(ttl))
	return err
}
