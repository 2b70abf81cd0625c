package agentrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	auditpkg "github.com/sansten/memoryos/pkg/audit"
	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/mask"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// Runner implements the ten-step Agent Pipeline Runner procedure.
// Built in the established BaseAgent idiom: a constructor that takes every
// dependency and panics on nil, a registry of strategies it dispatches to.
type Runner struct {
	db              *pgxpool.Pool
	memories        *store.MemoryStore
	agentRuns       *store.AgentRunStore
	sideEffects     *store.SideEffectStore
	audit           *auditpkg.Log
	agents          map[string]Agent
	agentCfg        *config.AgentConfig
	logseqExportDir string
	masker          *mask.Service
}

// NewRunner constructs a Runner. Panics if any dependency is nil. masker may
// be nil, in which case the LogseqExportAgent's materializer writes content
// unredacted.
func NewRunner(db *pgxpool.Pool, memories *store.MemoryStore, agentRuns *store.AgentRunStore, sideEffects *store.SideEffectStore, auditLog *auditpkg.Log, agents map[string]Agent, agentCfg *config.AgentConfig, masker *mask.Service) *Runner {
	if db == nil || memories == nil || agentRuns == nil || sideEffects == nil || auditLog == nil || agentCfg == nil {
		panic("agentrunner: NewRunner requires non-nil db, memories, agentRuns, sideEffects, audit, and agentCfg")
	}
	return &Runner{
		db: db, memories: memories, agentRuns: agentRuns, sideEffects: sideEffects,
		audit: auditLog, agents: agents, agentCfg: agentCfg, logseqExportDir: agentCfg.LogseqExportDir,
		masker: masker,
	}
}

// RunRequest names one agent invocation against one memory.
type RunRequest struct {
	MemoryID    string
	AgentName   string
	Strategy    Strategy
	Model       string
	Attempt     int
	MaxAttempts int
}

// Run executes the ten-step procedure: load inputs, compute the inputs
// hash, check the idempotent short-circuit, consult the cross-memory
// cache, execute, validate, materialize side effects, cache-write, and
// persist.
func (r *Runner) Run(ctx context.Context, tc *tenant.Context, req RunRequest, sink *ToolEventSink) (*models.AgentRun, error) {
	if sink == nil {
		sink = NewToolEventSink(nil)
	}
	agent, ok := r.agents[req.AgentName]
	if !ok {
		return nil, fmt.Errorf("agentrunner: no agent registered for %q", req.AgentName)
	}

	var run *models.AgentRun
	err := store.WithTenantSession(ctx, r.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var stepErr error
		run, stepErr = r.runSteps(ctx, tx, tc, req, agent, sink)
		return stepErr
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Runner) runSteps(ctx context.Context, tx pgx.Tx, tc *tenant.Context, req RunRequest, agent Agent, sink *ToolEventSink) (*models.AgentRun, error) {
	// Step 2: load inputs.
	mem, err := r.memories.GetByID(ctx, tx, req.MemoryID)
	if err != nil {
		return nil, err
	}
	priorByAgent, err := r.agentRuns.ListSuccessfulOutputs(ctx, tx, tc.OrganizationID, req.MemoryID)
	if err != nil {
		return nil, err
	}
	prior := make(map[string]any, len(priorByAgent))
	for name, outputs := range priorByAgent {
		prior[name] = outputs
	}

	storageTier := "long_term"
	if mem.MemoryType == models.MemoryTypeShortTerm {
		storageTier = "short_term"
	}
	scopeID := ""
	if mem.ScopeID != nil {
		scopeID = *mem.ScopeID
	}

	// Step 3: FeedbackLearning fingerprint.
	var fingerprint string
	if req.AgentName == AgentFeedbackLearning {
		fingerprint, err = r.agentRuns.FeedbackFingerprint(ctx, tx, req.MemoryID)
		if err != nil {
			return nil, err
		}
	}

	// Step 4: inputs hash.
	inputsHash := stableHash(req.AgentName, agent.Version(), tc.OrganizationID, req.MemoryID, storageTier,
		mem.ContentPreview, string(mem.Classification), string(mem.Scope), scopeID, prior, fingerprint)

	// Step 5: idempotent short-circuit.
	existing, err := r.agentRuns.GetByKey(ctx, tx, tc.OrganizationID, req.MemoryID, req.AgentName, agent.Version())
	if err != nil && err != apperrors.ErrNotFound {
		return nil, err
	}
	if existing != nil && existing.Status == models.AgentRunStatusSuccess && existing.InputsHash == inputsHash {
		return existing, nil
	}

	in := Inputs{
		OrganizationID: tc.OrganizationID, MemoryID: req.MemoryID, StorageTier: storageTier,
		Content: mem.ContentPreview, Classification: string(mem.Classification), Scope: string(mem.Scope),
		ScopeID: scopeID, PriorEnrichment: prior, FeedbackFingerprint: fingerprint,
	}

	// Step 6: cross-memory cache lookup (llm-strategy agents only).
	cacheKey := ""
	var result *Result
	if req.Strategy == StrategyLLM && r.agentCfg.CacheEnabled {
		cacheKey = stableHash(req.AgentName, agent.Version(), string(req.Strategy), req.Model, tc.OrganizationID,
			storageTier, mem.ContentPreview, string(mem.Classification), string(mem.Scope), scopeID, prior, fingerprint)
		if cached, err := r.agentRuns.GetCachedResult(ctx, tx, tc.OrganizationID, req.AgentName, agent.Version(), string(req.Strategy), req.Model, cacheKey); err == nil {
			result = &Result{Status: StatusSuccess, Confidence: cached.Confidence, Outputs: cached.Outputs}
		} else if err != apperrors.ErrNotFound {
			return nil, err
		}
	}

	// Step 7: execute on cache miss.
	if result == nil {
		sink.Record(ToolEvent{Tool: "agent.run", EventType: "tool_call", Context: map[string]any{"agent": req.AgentName}})
		start := time.Now()
		execResult, execErr := agent.Run(ctx, in)
		sink.Record(ToolEvent{Tool: "agent.run", EventType: "tool_result", OK: execErr == nil, DurationMS: time.Since(start).Milliseconds()})

		if execErr != nil {
			return r.handleExecutionError(ctx, tx, tc, req, inputsHash, execErr, sink)
		}
		if valErr := agent.ValidateOutputs(execResult); valErr != nil {
			return r.handleValidationError(ctx, tx, tc, req, inputsHash, valErr, sink)
		}
		result = &execResult
	}

	// Step 8: materialize side effects.
	if err := r.materialize(ctx, tx, tc.OrganizationID, mem, req.AgentName, *result); err != nil {
		return nil, fmt.Errorf("materializing side effects for %s: %w", req.AgentName, err)
	}

	// Step 9: cache-write, best-effort.
	if req.Strategy == StrategyLLM && r.agentCfg.CacheEnabled && cacheKey != "" {
		cache := &models.AgentResultCache{
			OrgID: tc.OrganizationID, AgentName: req.AgentName, Version: agent.Version(),
			Strategy: string(req.Strategy), Model: req.Model, CacheKey: cacheKey,
			Outputs: result.Outputs, Confidence: result.Confidence,
		}
		if err := r.agentRuns.PutCachedResult(ctx, tx, cache, r.agentCfg.CacheTTL); err != nil {
			sink.Record(ToolEvent{Tool: "cache.put", EventType: "tool_result", OK: false})
		}
	}

	// Step 10: persist final AgentRun row, append trajectory event.
	now := time.Now()
	run := &models.AgentRun{
		OrganizationID: tc.OrganizationID, MemoryID: req.MemoryID, AgentName: req.AgentName,
		AgentVersion: agent.Version(), InputsHash: inputsHash, Status: models.AgentRunStatusSuccess,
		Confidence: result.Confidence, Outputs: result.Outputs, Warnings: result.Warnings,
		Errors: result.Errors, FinishedAt: &now, TraceID: tc.TraceID, Provenance: result.Provenance,
	}
	saved, err := r.agentRuns.Upsert(ctx, tx, run)
	if err != nil {
		return nil, err
	}
	sink.BindRunID(saved.ID)
	if err := r.agentRuns.AppendEvent(ctx, tx, tc.OrganizationID, saved.ID, 0, "run_result", "agent run succeeded", map[string]any{"status": saved.Status}); err != nil {
		return nil, err
	}
	_ = r.audit.Record(ctx, tx, tc, auditpkg.Event{
		TraceID: tc.TraceID, EventType: "agent.run.success", ObjectType: "memory", ObjectID: req.MemoryID,
		Details: map[string]any{"agent": req.AgentName, "agent_run_id": saved.ID},
	})
	return saved, nil
}

// handleExecutionError applies the retry policy: a
// non-validation execution error is retry-eligible until max_attempts.
func (r *Runner) handleExecutionError(ctx context.Context, tx pgx.Tx, tc *tenant.Context, req RunRequest, inputsHash string, execErr error, sink *ToolEventSink) (*models.AgentRun, error) {
	status := models.AgentRunStatusRetry
	if req.Attempt >= req.MaxAttempts {
		status = models.AgentRunStatusFailed
	}
	run := &models.AgentRun{
		OrganizationID: tc.OrganizationID, MemoryID: req.MemoryID, AgentName: req.AgentName,
		AgentVersion: r.agents[req.AgentName].Version(), InputsHash: inputsHash, Status: status,
		Errors: []string{execErr.Error()}, TraceID: tc.TraceID,
	}
	saved, err := r.agentRuns.Upsert(ctx, tx, run)
	if err != nil {
		return nil, err
	}
	sink.BindRunID(saved.ID)
	_ = r.agentRuns.AppendEvent(ctx, tx, tc.OrganizationID, saved.ID, 0, "run_result", "agent run execution error", map[string]any{"status": status})
	return saved, nil
}

// handleValidationError never retries: a validation failure means the
// agent's own output shape is wrong, which a retry cannot fix.
func (r *Runner) handleValidationError(ctx context.Context, tx pgx.Tx, tc *tenant.Context, req RunRequest, inputsHash string, valErr error, sink *ToolEventSink) (*models.AgentRun, error) {
	run := &models.AgentRun{
		OrganizationID: tc.OrganizationID, MemoryID: req.MemoryID, AgentName: req.AgentName,
		AgentVersion: r.agents[req.AgentName].Version(), InputsHash: inputsHash, Status: models.AgentRunStatusFailed,
		Errors: []string{valErr.Error()}, TraceID: tc.TraceID,
	}
	saved, err := r.agentRuns.Upsert(ctx, tx, run)
	if err != nil {
		return nil, err
	}
	sink.BindRunID(saved.ID)
	_ = r.agentRuns.AppendEvent(ctx, tx, tc.OrganizationID, saved.ID, 0, "run_result", "agent output validation failed", map[string]any{"status": models.AgentRunStatusFailed})
	return saved, nil
}
