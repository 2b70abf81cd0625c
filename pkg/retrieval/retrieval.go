// Package retrieval implements the Retrieval Engine: hybrid
// vector+lexical search, permission filtering, temporal decay, feedback
// reranking, the eight-component activation scorer, explanation logging,
// and the async-tail enqueue. Grounded on the established service idiom:
// a constructor that takes its dependencies and panics on nil.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/permission"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
	"github.com/sansten/memoryos/pkg/vectorindex"
)

const overfetchFactor = 2

// Mode selects the temporal decay half-life and nothing else; scoring
// weights are global configuration.
type Mode string

const (
	ModeBalanced    Mode = "balanced"
	ModePerformance Mode = "performance"
	ModeResearch    Mode = "research"
)

// Query is the caller-supplied search request.
type Query struct {
	Text       string
	Embedding  []float64
	TopK       int
	Scope      models.Scope
	ScopeID    string
	Hybrid     bool
	Mode       Mode
	ApplyDecay bool
}

// Result is one ranked, permission-checked search hit.
type Result struct {
	Memory     *models.Memory
	Activation float64
	Components models.ActivationComponents
	HybridRaw  float64
}

// Engine ties the vector index, lexical search, permission kernel, and
// activation scorer together into one Search call.
type Engine struct {
	db         *pgxpool.Pool
	memories   *store.MemoryStore
	activation *store.ActivationStore
	tasks      *store.TaskStore
	kernel     *permission.Kernel
	index      vectorindex.Index
	search     *config.SearchConfig
}

// NewEngine constructs an Engine. Panics if any required dependency is nil;
// tasks may be nil to disable the async-tail enqueue (a disabled broker is
// a silent no-op "Async tails").
func NewEngine(db *pgxpool.Pool, memories *store.MemoryStore, activation *store.ActivationStore, tasks *store.TaskStore, kernel *permission.Kernel, index vectorindex.Index, search *config.SearchConfig) *Engine {
	if db == nil || memories == nil || activation == nil || kernel == nil || index == nil || search == nil {
		panic("retrieval: NewEngine requires non-nil db, memories, activation, kernel, index, and search config")
	}
	return &Engine{db: db, memories: memories, activation: activation, tasks: tasks, kernel: kernel, index: index, search: search}
}

type candidate struct {
	id       string
	vecScore float64
	lexScore float64
	hasVec   bool
	hasLex   bool
}

// Search implements the full retrieval procedure: both legs, hybrid scoring,
// permission filtering, temporal decay, feedback rerank, activation
// scoring, explanation logging, and the async-tail enqueue.
func (e *Engine) Search(ctx context.Context, tc *tenant.Context, q Query) ([]Result, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = e.search.DefaultTopK
	}
	overfetch := topK * overfetchFactor

	var results []Result
	err := store.WithTenantSession(ctx, e.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		candidates, err := e.collectCandidates(ctx, tx, tc, q, overfetch)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]string, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}

		allowedIDs, err := e.kernel.FilterMemoryIDsWithAccess(ctx, tx, tc, ids, "read")
		if err != nil {
			return err
		}
		gating := make(map[string]bool, len(ids))
		for _, id := range ids {
			gating[id] = false
		}
		for _, id := range allowedIDs {
			gating[id] = true
		}

		memoriesByID, err := e.memories.GetManyByIDs(ctx, tx, allowedIDs)
		if err != nil {
			return err
		}

		scored := make([]Result, 0, len(allowedIDs))
		for _, id := range allowedIDs {
			m, ok := memoriesByID[id]
			if !ok {
				continue
			}
			raw := hybridRaw(candidates[id])
			if q.ApplyDecay {
				raw *= temporalDecayFactor(m, q.Mode, e.search)
			}
			raw = e.applyFeedback(ctx, tx, m.ID, raw)

			comps, err := e.scoreActivation(ctx, tx, tc.OrganizationID, m, raw)
			if err != nil {
				return err
			}
			activation := weightedActivation(comps, e.search.ActivationWeights)
			scored = append(scored, Result{Memory: m, Activation: activation, Components: comps, HybridRaw: raw})
		}

		e.applyNeighborBoost(ctx, tx, tc.OrganizationID, scored)

		sort.SliceStable(scored, func(i, j int) bool {
			if scored[i].Activation != scored[j].Activation {
				return scored[i].Activation > scored[j].Activation
			}
			if scored[i].HybridRaw != scored[j].HybridRaw {
				return scored[i].HybridRaw > scored[j].HybridRaw
			}
			return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
		})
		if len(scored) > topK {
			scored = scored[:topK]
		}

		if len(scored) > 0 {
			if err := e.logExplanation(ctx, tx, tc, q, scored, gating); err != nil {
				return err
			}
		}

		for _, r := range scored {
			if err := e.activation.Touch(ctx, tx, r.Memory.ID, time.Now()); err != nil {
				return err
			}
		}

		results = scored
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.enqueueAsyncTails(tc, results)
	return results, nil
}

func (e *Engine) collectCandidates(ctx context.Context, tx pgx.Tx, tc *tenant.Context, q Query, overfetch int) (map[string]candidate, error) {
	out := make(map[string]candidate)

	if len(q.Embedding) > 0 {
		matches, err := e.index.Query(ctx, tc.OrganizationID, q.Embedding, overfetch)
		if err != nil {
			return nil, err
		}
		maxScore := 0.0
		for _, m := range matches {
			if m.Score > maxScore {
				maxScore = m.Score
			}
		}
		for _, m := range matches {
			c := out[m.MemoryID]
			c.id = m.MemoryID
			c.hasVec = true
			if maxScore > 0 {
				c.vecScore = m.Score / maxScore
			}
			out[m.MemoryID] = c
		}
	}

	if q.Hybrid && q.Text != "" {
		hits, err := e.memories.FullTextSearch(ctx, tx, q.Text, overfetch)
		if err != nil {
			return nil, err
		}
		maxScore := 0.0
		for _, h := range hits {
			if h.Score > maxScore {
				maxScore = h.Score
			}
		}
		for _, h := range hits {
			c := out[h.MemoryID]
			c.id = h.MemoryID
			c.hasLex = true
			if maxScore > 0 {
				c.lexScore = h.Score / maxScore
			}
			out[h.MemoryID] = c
		}
	}

	return out, nil
}

// hybridRaw combines the two legs: 0.7*vec_norm + 0.3*lex_norm, vector-only
// when only the vector leg produced a score for this candidate.
func hybridRaw(c candidate) float64 {
	switch {
	case c.hasVec && c.hasLex:
		return 0.7*c.vecScore + 0.3*c.lexScore
	case c.hasVec:
		return c.vecScore
	case c.hasLex:
		return c.lexScore
	default:
		return 0
	}
}

func temporalDecayFactor(m *models.Memory, mode Mode, cfg *config.SearchConfig) float64 {
	halfLife := cfg.BalancedHalfLife
	switch mode {
	case ModePerformance:
		halfLife = cfg.PerformanceHalfLife
	case ModeResearch:
		halfLife = cfg.ResearchHalfLife
	}
	if halfLife <= 0 {
		return 1
	}

	anchor := m.CreatedAt
	if m.UpdatedAt.After(anchor) {
		anchor = m.UpdatedAt
	}
	if m.LastAccessedAt != nil {
		anchor = *m.LastAccessedAt
	}
	ageDays := time.Since(anchor).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/(halfLife.Hours()/24))
}

// applyFeedback loads the most recent relevance feedback for a candidate
// within the configured window and multiplies raw by pos/neg multipliers,
// falling back to defaults on invalid (non-positive) configured values.
func (e *Engine) applyFeedback(ctx context.Context, tx pgx.Tx, memoryID string, raw float64) float64 {
	if !e.search.FeedbackRerankEnabled {
		return raw
	}
	window := e.search.FeedbackWindow
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}

	var payload []byte
	row := tx.QueryRow(ctx, `
		SELECT payload FROM memory_feedback
		WHERE memory_id = $1 AND feedback_type = 'relevance' AND created_at >= $2
		ORDER BY created_at DESC LIMIT 1`, memoryID, time.Now().Add(-window))
	if err := row.Scan(&payload); err != nil {
		return raw
	}

	posMult := e.search.FeedbackPositiveMultiplier
	if posMult <= 0 {
		posMult = 1.15
	}
	negMult := e.search.FeedbackNegativeMultiplier
	if negMult <= 0 {
		negMult = 0.5
	}

	var fb struct {
		Sentiment string `json:"sentiment"`
	}
	if err := unmarshalFeedback(payload, &fb); err != nil {
		return raw
	}
	switch fb.Sentiment {
	case "positive":
		return raw * posMult
	case "negative":
		return raw * negMult
	default:
		return raw
	}
}

func (e *Engine) scoreActivation(ctx context.Context, tx pgx.Tx, orgID string, m *models.Memory, hybridRaw float64) (models.ActivationComponents, error) {
	state, err := e.activation.GetOrInit(ctx, tx, orgID, m.ID)
	if err != nil {
		return models.ActivationComponents{}, err
	}

	recHalfLife := e.search.RecencyHalfLife
	if recHalfLife <= 0 {
		recHalfLife = 7 * 24 * time.Hour
	}
	anchor := m.CreatedAt
	if state.LastAccessedAt != nil {
		anchor = *state.LastAccessedAt
	}
	ageDays := time.Since(anchor).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	rec := math.Pow(0.5, ageDays/(recHalfLife.Hours()/24))

	alpha := e.search.FrequencyAlpha
	if alpha <= 0 {
		alpha = 0.3
	}
	freq := 1 - math.Exp(-alpha*float64(state.AccessCount))

	penalty := e.search.ContradictedPenalty
	if penalty <= 0 || penalty > 1 {
		penalty = 0.5
	}
	conf := state.Confidence
	if state.Contradicted {
		conf = state.Confidence * (1 - penalty)
	}

	beta := e.search.ProvenanceBeta
	if beta <= 0 {
		beta = 0.5
	}
	evidenceLinks, err := countEvidenceLinks(ctx, tx, m.ID)
	if err != nil {
		return models.ActivationComponents{}, err
	}
	prov := 1 - math.Exp(-beta*float64(evidenceLinks))

	return models.ActivationComponents{
		Rel:  clamp01(hybridRaw),
		Rec:  clamp01(rec),
		Freq: clamp01(freq),
		Imp:  clamp01(state.BaseImportance),
		Conf: clamp01(conf),
		Ctx:  contextAffinity(m),
		Prov: clamp01(prov),
		Risk: clamp01(1 - state.RiskFactor),
		Nbr:  0, // filled in by applyNeighborBoost once the result set is known
	}, nil
}

// contextAffinity is the mean of three discrete affinities (scope, episode,
// goal match). Episode/goal linkage is evaluated by the agent pipeline and
// GoalGraph respectively; absent that context here, scope match against the
// memory's own declared scope is the only signal available, so it anchors
// the mean at its conservative "adjacent" value when no stronger match
// applies.
func contextAffinity(m *models.Memory) float64 {
	const (
		exactMatch    = 1.0
		broaderScope  = 0.7
		adjacentScope = 0.6
		unrelated     = 0.3
	)
	switch m.Scope {
	case models.ScopePersonal, models.ScopeTeam:
		return (exactMatch + adjacentScope + adjacentScope) / 3
	case models.ScopeOrganization:
		return (broaderScope + adjacentScope + unrelated) / 3
	default:
		return (unrelated + unrelated + unrelated) / 3
	}
}

func countEvidenceLinks(ctx context.Context, tx pgx.Tx, memoryID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM causal_hypotheses WHERE $1 = ANY(evidence_memory_ids)`, memoryID).Scan(&count)
	return count, err
}

// applyNeighborBoost fills the `nbr` component with the max co-activation
// edge_weight to any other memory in the result set, defaulting to none
// when no neighbor has one.
func (e *Engine) applyNeighborBoost(ctx context.Context, tx pgx.Tx, orgID string, results []Result) {
	if len(results) < 2 {
		return
	}
	inSet := make(map[string]bool, len(results))
	for _, r := range results {
		inSet[r.Memory.ID] = true
	}
	for i := range results {
		neighbors, err := e.activation.TopNeighbors(ctx, tx, orgID, results[i].Memory.ID, e.search.CoactivationTopN)
		if err != nil {
			continue
		}
		best := 0.0
		for _, n := range neighbors {
			other := n.MemoryA
			if other == results[i].Memory.ID {
				other = n.MemoryB
			}
			if inSet[other] && n.EdgeWeight > best {
				best = n.EdgeWeight
			}
		}
		results[i].Components.Nbr = best
	}
}

func weightedActivation(c models.ActivationComponents, w config.ActivationWeights) float64 {
	sum := w.Relevance*c.Rel + w.Recency*c.Rec + w.Frequency*c.Freq + w.Importance*c.Imp +
		w.Confidence*c.Conf + w.Context*c.Ctx + w.Provenance*c.Prov + w.InverseRisk*c.Risk + w.NeighborBoost*c.Nbr
	return clamp01(sum)
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

func (e *Engine) logExplanation(ctx context.Context, tx pgx.Tx, tc *tenant.Context, q Query, results []Result, gating map[string]bool) error {
	rowResults := make([]models.RetrievalResultExplanation, 0, len(results))
	for i, r := range results {
		rowResults = append(rowResults, models.RetrievalResultExplanation{
			MemoryID:   r.Memory.ID,
			Activation: r.Activation,
			Components: r.Components,
			Gating:     models.GatingInfo{Allowed: gating[r.Memory.ID], Reason: "read"},
			Rank:       i + 1,
		})
	}

	topK := q.TopK
	if topK <= 0 {
		topK = e.search.DefaultTopK
	}

	payload, err := marshalResults(rowResults)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO retrieval_explanations (organization_id, query_hash, user_id, top_k, results)
		VALUES ($1,$2,$3,$4,$5)`,
		tc.OrganizationID, queryHash(q.Text), tc.UserID, topK, payload)
	return err
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// enqueueAsyncTails fires access_update and coactivation_update tasks
// without blocking or failing the caller's request; a nil task store is a
// silent no-op.
func (e *Engine) enqueueAsyncTails(tc *tenant.Context, results []Result) {
	if e.tasks == nil || len(results) == 0 {
		return
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Memory.ID
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("async-tail enqueue panicked", "panic", r)
			}
		}()
		ctx := context.Background()
		_ = store.WithTenantSession(ctx, e.db, tc, func(ctx context.Context, tx pgx.Tx) error {
			for _, id := range ids {
				if _, err := e.tasks.Enqueue(ctx, tx, accessUpdateTask(tc.OrganizationID, id, tc.TraceID)); err != nil {
					slog.Warn("access_update enqueue failed", "memory_id", id, "error", err)
				}
			}
			if len(ids) >= 2 {
				if _, err := e.tasks.Enqueue(ctx, tx, coactivationTask(tc.OrganizationID, ids, tc.TraceID)); err != nil {
					slog.Warn("coactivation_update enqueue failed", "error", err)
				}
			}
			return nil
		})
	}()
}

func unmarshalFeedback(payload []byte, out any) error {
	return json.Unmarshal(payload, out)
}

func marshalResults(results []models.RetrievalResultExplanation) ([]byte, error) {
	return json.Marshal(results)
}

func accessUpdateTask(orgID, memoryID, traceID string) *models.PipelineTask {
	return &models.PipelineTask{
		OrganizationID:     orgID,
		TaskType:           "access_update",
		Priority:           0,
		SLADeadline:        time.Now().Add(5 * time.Minute),
		SLACategory:        "background",
		EstimatedLatencyMS: 200,
		MaxAttempts:        3,
		TraceID:            traceID,
		Metadata:           map[string]any{"memory_id": memoryID},
	}
}

func coactivationTask(orgID string, ids []string, traceID string) *models.PipelineTask {
	return &models.PipelineTask{
		OrganizationID:     orgID,
		TaskType:           "coactivation_update",
		Priority:           0,
		SLADeadline:        time.Now().Add(10 * time.Minute),
		SLACategory:        "background",
		EstimatedLatencyMS: 500,
		MaxAttempts:        3,
		TraceID:            traceID,
		Metadata:           map[string]any{"primary": ids[0], "co": ids[1:]},
	}
}
