// Package store provides the shared connection-pool plumbing every domain
// repository builds on: acquiring a pooled connection, setting the
// session-scoped tenant GUCs row-level security depends on, and running the
// caller's work inside that transaction.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/tenant"
)

// TxFunc is the unit of work run inside a tenant-scoped transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTenantSession acquires a connection from pool, opens a transaction,
// sets the app.current_* session variables the RLS policies read, and runs
// fn inside it. The transaction commits if fn returns nil, and rolls back
// otherwise. System actors (tenant.SystemActor) set no role/clearance GUCs
// beyond org/user, relying on the audit and task-scheduler tables' policies
// which only check organization_id.
func WithTenantSession(ctx context.Context, pool *pgxpool.Pool, tc *tenant.Context, fn TxFunc) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setSessionGUCs(ctx, tx, tc); err != nil {
		return fmt.Errorf("setting tenant session: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// setSessionGUCs sets the local (transaction-scoped) session variables read
// by every RLS policy. set_config's third argument (is_local=true) means
// these never leak to a pooled connection's next borrower.
func setSessionGUCs(ctx context.Context, tx pgx.Tx, tc *tenant.Context) error {
	_, err := tx.Exec(ctx, `
		SELECT
			set_config('app.current_org_id', $1, true),
			set_config('app.current_user_id', $2, true),
			set_config('app.current_roles', $3, true),
			set_config('app.current_clearance_level', $4, true)
	`, tc.OrganizationID, tc.UserID, strings.Join(tc.Roles, ","), strconv.Itoa(tc.ClearanceLevel))
	return err
}
