// Package permission implements the Permission Kernel: a single
// decision function over (user, org, memory, action) plus its batched form,
// with an effective-permission-set cache. Grounded on the established
// services constructor idiom: take dependencies, panic on nil, one method
// per operation.
package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/tenant"
)

// Method names the branch of the decision order that produced an AccessDecision.
type Method string

const (
	MethodOwn          Method = "own"
	MethodTeam         Method = "team"
	MethodShare        Method = "share"
	MethodScope        Method = "scope"
	MethodClearance    Method = "clearance"
	MethodOrgIsolation Method = "org_isolation"
	MethodNotFound     Method = "not_found"
	MethodNone         Method = "none"
)

// AccessDecision is the kernel's single output shape for every check.
type AccessDecision struct {
	Allowed bool
	Reason  string
	Method  Method
	Details map[string]any
}

// effectiveTTL is the short cache window on a user's effective permission set.
const effectiveTTL = 15 * time.Second

// Kernel computes and caches effective permissions and memory access decisions.
type Kernel struct {
	pool  *pgxpool.Pool
	cache *redis.Client
}

// NewKernel constructs a Kernel. Panics if either dependency is nil.
func NewKernel(pool *pgxpool.Pool, cache *redis.Client) *Kernel {
	if pool == nil {
		panic("permission: NewKernel requires a non-nil pool")
	}
	if cache == nil {
		panic("permission: NewKernel requires a non-nil cache")
	}
	return &Kernel{pool: pool, cache: cache}
}

// memoryRow is the subset of memory columns the kernel needs to decide access.
type memoryRow struct {
	id                string
	organizationID    string
	ownerUserID       string
	scope             models.Scope
	scopeID           *string
	requiredClearance int
	isActive          bool
}

func (k *Kernel) loadMemory(ctx context.Context, tx pgx.Tx, memoryID string) (*memoryRow, error) {
	var m memoryRow
	err := tx.QueryRow(ctx, `
		SELECT id, organization_id, owner_user_id, scope, scope_id, required_clearance, is_active
		FROM memories WHERE id = $1`, memoryID).
		Scan(&m.id, &m.organizationID, &m.ownerUserID, &m.scope, &m.scopeID, &m.requiredClearance, &m.isActive)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CheckMemoryAccess implements the decision order from verbatim: (1)
// exists & active, (2) org match, (3) clearance, (4) owner, (5) team
// membership with role sub-matrix, (6) active MemorySharing grant, (7)
// org/global scope with read, (8) else deny. It never returns a non-nil
// error for a permission outcome — only for structural DB failures.
func (k *Kernel) CheckMemoryAccess(ctx context.Context, tx pgx.Tx, tc *tenant.Context, memoryID, action string) (AccessDecision, error) {
	m, err := k.loadMemory(ctx, tx, memoryID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return AccessDecision{Allowed: false, Reason: "memory not found", Method: MethodNotFound}, nil
		}
		return AccessDecision{}, fmt.Errorf("loading memory: %w", err)
	}
	if !m.isActive {
		return AccessDecision{Allowed: false, Reason: "memory is soft-deleted", Method: MethodNotFound}, nil
	}
	if m.organizationID != tc.OrganizationID {
		return AccessDecision{Allowed: false, Reason: "memory belongs to another organization", Method: MethodOrgIsolation}, nil
	}
	if m.requiredClearance > tc.ClearanceLevel {
		return AccessDecision{Allowed: false, Reason: "insufficient clearance", Method: MethodClearance,
			Details: map[string]any{"required": m.requiredClearance, "held": tc.ClearanceLevel}}, nil
	}
	if tc.UserID == m.ownerUserID {
		return AccessDecision{Allowed: true, Reason: "owner", Method: MethodOwn}, nil
	}

	if m.scope == models.ScopeTeam && m.scopeID != nil {
		role, ok, err := k.teamRole(ctx, tx, tc.UserID, *m.scopeID)
		if err != nil {
			return AccessDecision{}, fmt.Errorf("loading team role: %w", err)
		}
		if ok {
			allowed := teamRoleAllows(role, action)
			if allowed {
				return AccessDecision{Allowed: true, Reason: "team member", Method: MethodTeam,
					Details: map[string]any{"role": role}}, nil
			}
		}
	}

	shared, reason, err := k.hasActiveShare(ctx, tx, tc.UserID, memoryID, action)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("loading shares: %w", err)
	}
	if shared {
		return AccessDecision{Allowed: true, Reason: reason, Method: MethodShare}, nil
	}

	if (m.scope == models.ScopeOrganization || m.scope == models.ScopeGlobal) && action == "read" {
		return AccessDecision{Allowed: true, Reason: "organization/global scope, read", Method: MethodScope}, nil
	}

	return AccessDecision{Allowed: false, Reason: "no matching grant", Method: MethodNone}, nil
}

// teamRoleAllows implements the sub-matrix: read/comment for any member,
// write/share for lead/admin, delete for admin only.
func teamRoleAllows(role models.TeamRole, action string) bool {
	switch action {
	case "read", "comment":
		return true
	case "write", "share":
		return role == models.TeamRoleLead || role == models.TeamRoleAdmin
	case "delete":
		return role == models.TeamRoleAdmin
	default:
		return false
	}
}

func (k *Kernel) teamRole(ctx context.Context, tx pgx.Tx, userID, teamID string) (models.TeamRole, bool, error) {
	var role models.TeamRole
	err := tx.QueryRow(ctx, `SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID).Scan(&role)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return role, true, nil
}

func (k *Kernel) hasActiveShare(ctx context.Context, tx pgx.Tx, userID, memoryID, action string) (bool, string, error) {
	rows, err := tx.Query(ctx, `
		SELECT share_type, target_id, permission FROM memory_sharing
		WHERE memory_id = $1 AND (expires_at IS NULL OR expires_at > now())`, memoryID)
	if err != nil {
		return false, "", err
	}
	defer rows.Close()

	for rows.Next() {
		var shareType models.ShareType
		var targetID string
		var perm models.SharePermission
		if err := rows.Scan(&shareType, &targetID, &perm); err != nil {
			return false, "", err
		}
		if !shareSufficientFor(perm, action) {
			continue
		}
		switch shareType {
		case models.ShareTypeUser:
			if targetID == userID {
				return true, "user share grant", nil
			}
		case models.ShareTypeTeam:
			var member bool
			err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)`, targetID, userID).Scan(&member)
			if err != nil {
				return false, "", err
			}
			if member {
				return true, "team share grant", nil
			}
		}
	}
	return false, "", rows.Err()
}

func shareSufficientFor(perm models.SharePermission, action string) bool {
	switch action {
	case "read":
		return true
	case "comment":
		return perm == models.SharePermissionComment || perm == models.SharePermissionEdit
	case "write":
		return perm == models.SharePermissionEdit
	default:
		return false
	}
}

// FilterMemoryIDsWithAccess is the batched form of CheckMemoryAccess; it
// must produce an identical allow-set to calling CheckMemoryAccess on each
// id individually.
func (k *Kernel) FilterMemoryIDsWithAccess(ctx context.Context, tx pgx.Tx, tc *tenant.Context, ids []string, action string) ([]string, error) {
	allowed := make([]string, 0, len(ids))
	for _, id := range ids {
		d, err := k.CheckMemoryAccess(ctx, tx, tc, id, action)
		if err != nil {
			return nil, err
		}
		if d.Allowed {
			allowed = append(allowed, id)
		}
	}
	return allowed, nil
}

// ExplainAccess is CheckMemoryAccess plus the caller's current role list,
// powering "why can I see this" UI and audit.
func (k *Kernel) ExplainAccess(ctx context.Context, tx pgx.Tx, tc *tenant.Context, memoryID, action string) (AccessDecision, []string, error) {
	d, err := k.CheckMemoryAccess(ctx, tx, tc, memoryID, action)
	return d, tc.Roles, err
}

// EffectivePermissions returns the union of permission strings across all
// non-expired UserRoles the user holds in the org, cached for effectiveTTL
// keyed by (user,org) with explicit invalidation on role/share change.
func (k *Kernel) EffectivePermissions(ctx context.Context, tx pgx.Tx, userID, orgID string) ([]string, error) {
	key := effectiveCacheKey(userID, orgID)
	if cached, err := k.cache.SMembers(ctx, key).Result(); err == nil && len(cached) > 0 {
		return cached, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT r.permissions FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.organization_id = $1 AND ur.user_id = $2
		  AND (ur.expires_at IS NULL OR ur.expires_at > now())`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading effective permissions: %w", err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	var perms []string
	for rows.Next() {
		var set []string
		if err := rows.Scan(&set); err != nil {
			return nil, err
		}
		for _, p := range set {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				perms = append(perms, p)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(perms) > 0 {
		pipe := k.cache.Pipeline()
		pipe.SAdd(ctx, key, toAny(perms)...)
		pipe.Expire(ctx, key, effectiveTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return perms, nil // cache population failure is non-fatal
		}
	}
	return perms, nil
}

// InvalidateEffectivePermissions drops the cached set for (user,org) after
// a role grant/revoke or share change.
func (k *Kernel) InvalidateEffectivePermissions(ctx context.Context, userID, orgID string) error {
	return k.cache.Del(ctx, effectiveCacheKey(userID, orgID)).Err()
}

// HasPermission checks whether perms grants action on resource, honoring
// resource:*, resource:action:*, and the *:*/admin:* super-admin marker.
func HasPermission(perms []string, resource, action string) bool {
	for _, p := range perms {
		if p == "*:*" || p == "admin:*" {
			return true
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] != resource {
			continue
		}
		if parts[1] == "*" || parts[1] == action {
			return true
		}
		if strings.HasSuffix(parts[1], ":*") {
			prefix := strings.TrimSuffix(parts[1], ":*")
			if action == prefix || strings.HasPrefix(action, prefix+":") {
				return true
			}
		}
	}
	return false
}

func effectiveCacheKey(userID, orgID string) string {
	return "perm:effective:" + orgID + ":" + userID
}

func toAny(perms []string) []any {
	out := make([]any, len(perms))
	for i, p := range perms {
		out[i] = p
	}
	return out
}

// GrantRole inserts or refreshes a UserRole grant and invalidates the
// cached effective-permission set for (user,org) so the new permissions
// take effect on the grantee's next check.
func (k *Kernel) GrantRole(ctx context.Context, tx pgx.Tx, userID, orgID, roleID string, expiresAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, organization_id, expires_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, role_id, organization_id) DO UPDATE SET expires_at = $4`,
		userID, roleID, orgID, expiresAt)
	if err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	return k.InvalidateEffectivePermissions(ctx, userID, orgID)
}

// RevokeRole deletes a UserRole grant and invalidates the cached
// effective-permission set for (user,org).
func (k *Kernel) RevokeRole(ctx context.Context, tx pgx.Tx, userID, orgID, roleID string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2 AND organization_id = $3`,
		userID, roleID, orgID); err != nil {
		return fmt.Errorf("revoking role: %w", err)
	}
	return k.InvalidateEffectivePermissions(ctx, userID, orgID)
}

// ToAppError maps a denied AccessDecision to the shared apperrors sentinel
// HTTP handlers match on; MethodNotFound decisions map to ErrNotFound and
// MethodOrgIsolation collapses to the same ErrNotFound to avoid information
// disclosure, per apperrors.ErrTenantMismatch's doc comment.
func (d AccessDecision) ToAppError() error {
	if d.Allowed {
		return nil
	}
	switch d.Method {
	case MethodNotFound, MethodOrgIsolation:
		return apperrors.ErrNotFound
	default:
		return apperrors.ErrAuthorizationDenied
	}
}
