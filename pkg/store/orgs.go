package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrgStore is the pgx-backed repository for the organizations table, used by
// background maintenance that must iterate every tenant.
type OrgStore struct {
	pool *pgxpool.Pool
}

// NewOrgStore constructs an OrgStore. Panics if pool is nil.
func NewOrgStore(pool *pgxpool.Pool) *OrgStore {
	if pool == nil {
		panic("store: NewOrgStore requires a non-nil pool")
	}
	return &OrgStore{pool: pool}
}

// ListActiveIDs returns every active organization's id, queried outside any
// tenant session since maintenance must enumerate across tenants before it
// can open one.
func (s *OrgStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM organizations WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
