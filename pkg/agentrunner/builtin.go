package agentrunner

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Built-in agents are deterministic and heuristic-based: none of them call
// out to an LLM, so all register with StrategyDeterministic and never
// participate in the cross-memory result cache.

// graphLinkingAgent links a memory to prior-enrichment siblings that share
// vocabulary with its content, producing "related_to" edges. Grounded on the
// established ScoringAgent shape: a small, single-purpose Execute/Run body with
// no internal branching beyond outcome mapping.
type graphLinkingAgent struct{}

func NewGraphLinkingAgent() Agent { return graphLinkingAgent{} }

func (graphLinkingAgent) Name() string    { return AgentGraphLinking }
func (graphLinkingAgent) Version() string { return "1" }

func (graphLinkingAgent) Run(_ context.Context, in Inputs) (Result, error) {
	edges := []any{}
	if siblingOutputs, ok := in.PriorEnrichment[AgentTopicModeling]; ok {
		topics, _ := siblingOutputs.(map[string]any)
		if raw, ok := topics["topics"].([]any); ok {
			for _, t := range raw {
				tm, ok := t.(map[string]any)
				if !ok {
					continue
				}
				if related, ok := tm["related_memory_id"].(string); ok && related != "" && related != in.MemoryID {
					edges = append(edges, map[string]any{
						"memory_id":  related,
						"relation":   "related_to",
						"confidence": 0.6,
					})
				}
			}
		}
	}
	return Result{
		Status:     StatusSuccess,
		Confidence: 0.6,
		Outputs:    map[string]any{"edges": edges},
	}, nil
}

func (graphLinkingAgent) ValidateOutputs(r Result) error {
	edges, ok := r.Outputs["edges"]
	if !ok {
		return fmt.Errorf("graphLinkingAgent: missing edges output")
	}
	if _, ok := edges.([]any); !ok {
		return fmt.Errorf("graphLinkingAgent: edges output must be a list")
	}
	return nil
}

// topicModelingAgent extracts candidate topics from a memory's content by
// frequency-ranked keyword extraction over a small stopword list.
type topicModelingAgent struct {
	stopwords map[string]bool
}

func NewTopicModelingAgent() Agent {
	return topicModelingAgent{stopwords: defaultStopwords()}
}

func defaultStopwords() map[string]bool {
	words := []string{"the", "a", "an", "and", "or", "but", "is", "are", "was",
		"were", "be", "to", "of", "in", "on", "for", "with", "this", "that", "it"}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func (topicModelingAgent) Name() string    { return AgentTopicModeling }
func (topicModelingAgent) Version() string { return "1" }

func (a topicModelingAgent) Run(_ context.Context, in Inputs) (Result, error) {
	counts := make(map[string]int)
	for _, raw := range strings.Fields(in.Content) {
		word := strings.ToLower(strings.Trim(raw, ".,;:!?\"'()"))
		if len(word) < 4 || a.stopwords[word] {
			continue
		}
		counts[word]++
	}

	type scored struct {
		word  string
		count int
	}
	ranked := make([]scored, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, scored{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	total := 0
	for _, s := range ranked {
		total += s.count
	}
	topics := make([]any, 0, len(ranked))
	for _, s := range ranked {
		weight := 1.0
		if total > 0 {
			weight = float64(s.count) / float64(total)
		}
		topics = append(topics, map[string]any{"topic": s.word, "weight": weight})
	}

	return Result{
		Status:     StatusSuccess,
		Confidence: 0.5,
		Outputs:    map[string]any{"topics": topics},
	}, nil
}

func (topicModelingAgent) ValidateOutputs(r Result) error {
	if _, ok := r.Outputs["topics"].([]any); !ok {
		return fmt.Errorf("topicModelingAgent: topics output must be a list")
	}
	return nil
}

// patternDetectionAgent flags recurring structural signals in a memory: long
// content, repeated enumeration markers, and explicit TODO/FIXME markers.
type patternDetectionAgent struct{}

func NewPatternDetectionAgent() Agent { return patternDetectionAgent{} }

func (patternDetectionAgent) Name() string    { return AgentPatternDetection }
func (patternDetectionAgent) Version() string { return "1" }

func (patternDetectionAgent) Run(_ context.Context, in Inputs) (Result, error) {
	patterns := []any{}

	if len(in.Content) > 2000 {
		patterns = append(patterns, map[string]any{
			"key":        "long_form_content",
			"confidence": 0.8,
			"details":    map[string]any{"length": len(in.Content)},
		})
	}

	lower := strings.ToLower(in.Content)
	todoCount := strings.Count(lower, "todo") + strings.Count(lower, "fixme")
	if todoCount > 0 {
		patterns = append(patterns, map[string]any{
			"key":        "open_action_items",
			"confidence": 0.7,
			"details":    map[string]any{"count": todoCount},
		})
	}

	stepMarkers := strings.Count(in.Content, "\n1.") + strings.Count(in.Content, "\n- ")
	if stepMarkers >= 3 {
		patterns = append(patterns, map[string]any{
			"key":        "procedural_structure",
			"confidence": 0.65,
			"details":    map[string]any{"markers": stepMarkers},
		})
	}

	return Result{
		Status:     StatusSuccess,
		Confidence: 0.6,
		Outputs:    map[string]any{"patterns": patterns},
	}, nil
}

func (patternDetectionAgent) ValidateOutputs(r Result) error {
	if _, ok := r.Outputs["patterns"].([]any); !ok {
		return fmt.Errorf("patternDetectionAgent: patterns output must be a list")
	}
	return nil
}

// feedbackLearningAgent derives a small FeedbackLearningConfig diff from the
// fingerprint of unapplied feedback: when the fingerprint reports a pending
// backlog, it emits a thresholds diff recording that pending count, with a
// confidence of 0.5 + 0.02 per pending item (capped at 0.95); with no
// backlog it emits an empty diff at confidence 1.0. It is deterministic and
// makes no LLM call.
type feedbackLearningAgent struct{}

func NewFeedbackLearningAgent() Agent { return feedbackLearningAgent{} }

func (feedbackLearningAgent) Name() string    { return AgentFeedbackLearning }
func (feedbackLearningAgent) Version() string { return "1" }

func (feedbackLearningAgent) Run(_ context.Context, in Inputs) (Result, error) {
	pendingCount := 0
	if in.FeedbackFingerprint != "" {
		fmt.Sscanf(in.FeedbackFingerprint, "%d:", &pendingCount)
	}

	if pendingCount == 0 {
		return Result{
			Status:     StatusSuccess,
			Confidence: 1.0,
			Outputs:    map[string]any{"config_diff": map[string]any{}},
		}, nil
	}

	confidence := 0.5 + 0.02*float64(pendingCount)
	if confidence > 0.95 {
		confidence = 0.95
	}

	diff := map[string]any{
		"thresholds": map[string]any{"pending_feedback_count": float64(pendingCount)},
	}

	return Result{
		Status:     StatusSuccess,
		Confidence: confidence,
		Outputs:    map[string]any{"config_diff": diff},
	}, nil
}

func (feedbackLearningAgent) ValidateOutputs(r Result) error {
	if _, ok := r.Outputs["config_diff"].(map[string]any); !ok {
		return fmt.Errorf("feedbackLearningAgent: config_diff output must be a map")
	}
	return nil
}

// logseqExportAgent has no domain computation of its own: its entire
// contribution is the materializer's render-and-write side effect, so its
// Run step always succeeds with an empty outputs map.
type logseqExportAgent struct{}

func NewLogseqExportAgent() Agent { return logseqExportAgent{} }

func (logseqExportAgent) Name() string    { return AgentLogseqExport }
func (logseqExportAgent) Version() string { return "1" }

func (logseqExportAgent) Run(_ context.Context, _ Inputs) (Result, error) {
	return Result{Status: StatusSuccess, Confidence: 1.0, Outputs: map[string]any{}}, nil
}

func (logseqExportAgent) ValidateOutputs(Result) error { return nil }
