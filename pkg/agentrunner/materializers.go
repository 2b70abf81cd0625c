package agentrunner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"

	"github.com/sansten/memoryos/pkg/export"
	"github.com/sansten/memoryos/pkg/models"
)

// Well-known agent names that carry a side-effect materializer.
const (
	AgentGraphLinking     = "GraphLinkingAgent"
	AgentTopicModeling    = "TopicModelingAgent"
	AgentPatternDetection = "PatternDetectionAgent"
	AgentFeedbackLearning = "FeedbackLearningAgent"
	AgentLogseqExport     = "LogseqExportAgent"
)

// feedbackGateConfidence is the policy gate below which a FeedbackLearning
// config diff is discarded rather than applied.
const feedbackGateConfidence = 0.5

// materialize dispatches agent name to its side effect, a no-op for agent
// names without one.
func (r *Runner) materialize(ctx context.Context, tx pgx.Tx, orgID string, mem *models.Memory, agentName string, result Result) error {
	switch agentName {
	case AgentGraphLinking:
		return r.materializeGraphLinking(ctx, tx, orgID, mem.ID, result)
	case AgentTopicModeling:
		return r.materializeTopicModeling(ctx, tx, orgID, mem, result)
	case AgentPatternDetection:
		return r.materializePatternDetection(ctx, tx, orgID, mem.ID, result)
	case AgentFeedbackLearning:
		return r.materializeFeedbackLearning(ctx, tx, orgID, result)
	case AgentLogseqExport:
		return r.materializeLogseqExport(ctx, tx, orgID, mem, result)
	default:
		return nil
	}
}

func (r *Runner) materializeGraphLinking(ctx context.Context, tx pgx.Tx, orgID, memoryID string, result Result) error {
	edges, _ := result.Outputs["edges"].([]any)
	for _, raw := range edges {
		edge, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		other, _ := edge["memory_id"].(string)
		relation, _ := edge["relation"].(string)
		if other == "" || relation == "" || other == memoryID {
			continue
		}
		confidence, _ := edge["confidence"].(float64)
		if err := r.sideEffects.UpsertGraphEdge(ctx, tx, orgID, memoryID, other, relation, confidence); err != nil {
			return fmt.Errorf("upserting graph edge: %w", err)
		}
	}
	return nil
}

func (r *Runner) materializeTopicModeling(ctx context.Context, tx pgx.Tx, orgID string, mem *models.Memory, result Result) error {
	topics, _ := result.Outputs["topics"].([]any)
	for _, raw := range topics {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		topic, _ := t["topic"].(string)
		if topic == "" {
			continue
		}
		weight, _ := t["weight"].(float64)
		if err := r.sideEffects.UpsertTopic(ctx, tx, orgID, mem.ID, mem.Scope, mem.ScopeID, topic, weight); err != nil {
			return fmt.Errorf("upserting topic: %w", err)
		}
	}
	return nil
}

func (r *Runner) materializePatternDetection(ctx context.Context, tx pgx.Tx, orgID, memoryID string, result Result) error {
	patterns, _ := result.Outputs["patterns"].([]any)
	for _, raw := range patterns {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, _ := p["key"].(string)
		if key == "" {
			continue
		}
		details, _ := p["details"].(map[string]any)
		confidence, _ := p["confidence"].(float64)
		if err := r.sideEffects.UpsertPattern(ctx, tx, orgID, memoryID, key, details, confidence); err != nil {
			return fmt.Errorf("upserting pattern: %w", err)
		}
	}
	return nil
}

func (r *Runner) materializeFeedbackLearning(ctx context.Context, tx pgx.Tx, orgID string, result Result) error {
	if result.Confidence < feedbackGateConfidence {
		return nil
	}
	diff, ok := result.Outputs["config_diff"].(map[string]any)
	if !ok {
		return nil
	}

	cfg, err := r.sideEffects.GetFeedbackLearningConfig(ctx, tx, orgID)
	if err != nil {
		return fmt.Errorf("loading feedback-learning config: %w", err)
	}

	if sw, ok := diff["stopwords"].([]any); ok {
		cfg.Stopwords = toStrings(sw)
	}
	if th, ok := diff["thresholds"].(map[string]any); ok {
		cfg.Thresholds = th
	}
	if wt, ok := diff["weights"].(map[string]any); ok {
		cfg.Weights = wt
	}

	return r.sideEffects.ApplyFeedbackLearningDiff(ctx, tx, cfg)
}

func (r *Runner) materializeLogseqExport(ctx context.Context, tx pgx.Tx, orgID string, mem *models.Memory, result Result) error {
	body := export.Markdown(mem, r.masker)
	sum := sha256.Sum256([]byte(body))
	hash := hex.EncodeToString(sum[:])

	path := filepath.Join(r.logseqExportDir, mem.ID+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating logseq export dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing logseq export file: %w", err)
	}

	return r.sideEffects.UpsertLogseqExport(ctx, tx, orgID, mem.ID, path, hash)
}

func toStrings(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
