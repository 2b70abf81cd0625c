// Package audit implements the Audit Log: an append-only record of
// every authorization decision, mutation, and failure, written in the same
// transaction as the action it describes wherever possible.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// Log is the pgx-backed audit event writer.
type Log struct {
	pool *pgxpool.Pool
}

// NewLog constructs a Log. Panics if pool is nil.
func NewLog(pool *pgxpool.Pool) *Log {
	if pool == nil {
		panic("audit: NewLog requires a non-nil pool")
	}
	return &Log{pool: pool}
}

// Event is one append-only audit row.
type Event struct {
	ActorUserID string
	TraceID     string
	EventType   string
	ObjectType  string
	ObjectID    string
	Method      string
	Reason      string
	Details     map[string]any
}

// Record writes an audit event inside an existing transaction, so it shares
// the fate of the mutation or decision it describes.
func (l *Log) Record(ctx context.Context, tx pgx.Tx, tc *tenant.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encoding audit details: %w", err)
	}
	actor := e.ActorUserID
	if actor == "" {
		actor = tc.UserID
	}
	trace := e.TraceID
	if trace == "" {
		trace = tc.TraceID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (organization_id, actor_user_id, trace_id, event_type, object_type, object_id, method, reason, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tc.OrganizationID, actor, trace, e.EventType, e.ObjectType, e.ObjectID, e.Method, e.Reason, details)
	return err
}

// RecordStandalone writes an audit event in its own transaction, for
// callers (e.g. permission denials surfaced before any other work starts)
// that have no enclosing transaction to join.
func (l *Log) RecordStandalone(ctx context.Context, tc *tenant.Context, e Event) error {
	return store.WithTenantSession(ctx, l.pool, tc, func(ctx context.Context, tx pgx.Tx) error {
		return l.Record(ctx, tx, tc, e)
	})
}
