// Package notify sends operational alerts to Slack: dead-letter task
// quarantine, staged-rollout auto-rollback, and goal blocker escalation.
// Built in a Client/Service split with nil-safe fail-open methods,
// generalized from "session lifecycle" alerts to "operational alert"
// notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/sansten/memoryos/pkg/config"
)

// Notifier sends operational alerts to Slack. Nil-safe: every method is a
// no-op when the notifier itself is nil, so callers never need a presence
// check.
type Notifier struct {
	api       *goslack.Client
	channel   string
	logger    *slog.Logger
}

// NewNotifier builds a Notifier from config.SlackConfig. Returns nil if
// Slack alerting is disabled or misconfigured (empty token or channel).
func NewNotifier(cfg *config.SlackConfig, token string) *Notifier {
	if cfg == nil || !cfg.Enabled || token == "" || cfg.Channel == "" {
		return nil
	}
	return &Notifier{
		api:     goslack.New(token),
		channel: cfg.Channel,
		logger:  slog.Default().With("component", "notify"),
	}
}

func (n *Notifier) post(ctx context.Context, text string, fields ...goslack.AttachmentField) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	attachment := goslack.Attachment{
		Text:   text,
		Fields: fields,
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionAttachments(attachment))
	if err != nil {
		n.logger.Error("failed to post slack notification", "error", err)
	}
}

// DeadLetterTask alerts that a task was permanently quarantined.
func (n *Notifier) DeadLetterTask(ctx context.Context, orgID, taskID, taskType, reason string) {
	n.post(ctx, fmt.Sprintf("Task %s quarantined to dead-letter queue", taskID),
		goslack.AttachmentField{Title: "organization", Value: orgID, Short: true},
		goslack.AttachmentField{Title: "task_type", Value: taskType, Short: true},
		goslack.AttachmentField{Title: "reason", Value: reason},
	)
}

// AutoRollback alerts that a staged-rollout policy auto-rolled-back due to
// breaching its error-rate threshold.
func (n *Notifier) AutoRollback(ctx context.Context, orgID, policyName string, fromVersion, toVersion int, errorRate float64) {
	n.post(ctx, fmt.Sprintf("Policy %q auto-rolled-back from v%d to v%d", policyName, fromVersion, toVersion),
		goslack.AttachmentField{Title: "organization", Value: orgID, Short: true},
		goslack.AttachmentField{Title: "error_rate", Value: fmt.Sprintf("%.2f%%", errorRate*100), Short: true},
	)
}

// BlockerEscalation alerts that a GoalGraph node has been blocked long
// enough to escalate.
func (n *Notifier) BlockerEscalation(ctx context.Context, orgID, goalID, nodeID, reason string) {
	n.post(ctx, fmt.Sprintf("Goal %s blocked and escalated", goalID),
		goslack.AttachmentField{Title: "organization", Value: orgID, Short: true},
		goslack.AttachmentField{Title: "node", Value: nodeID, Short: true},
		goslack.AttachmentField{Title: "reason", Value: reason},
	)
}
