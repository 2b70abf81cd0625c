package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

func TestHasPermission(t *testing.T) {
	cases := []struct {
		name     string
		perms    []string
		resource string
		action   string
		want     bool
	}{
		{"exact match", []string{"memory:read"}, "memory", "read", true},
		{"resource wildcard", []string{"memory:*"}, "memory", "delete", true},
		{"super admin", []string{"*:*"}, "goal", "delete", true},
		{"admin marker", []string{"admin:*"}, "goal", "delete", true},
		{"no match", []string{"memory:read"}, "memory", "write", false},
		{"wrong resource", []string{"goal:*"}, "memory", "read", false},
		{"malformed entry ignored", []string{"malformed"}, "memory", "read", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasPermission(tc.perms, tc.resource, tc.action))
		})
	}
}

func TestTeamRoleAllows(t *testing.T) {
	assert.True(t, teamRoleAllows(models.TeamRoleMember, "read"))
	assert.True(t, teamRoleAllows(models.TeamRoleMember, "comment"))
	assert.False(t, teamRoleAllows(models.TeamRoleMember, "write"))
	assert.True(t, teamRoleAllows(models.TeamRoleLead, "write"))
	assert.False(t, teamRoleAllows(models.TeamRoleLead, "delete"))
	assert.True(t, teamRoleAllows(models.TeamRoleAdmin, "delete"))
}

func TestShareSufficientFor(t *testing.T) {
	assert.True(t, shareSufficientFor(models.SharePermissionRead, "read"))
	assert.False(t, shareSufficientFor(models.SharePermissionRead, "comment"))
	assert.True(t, shareSufficientFor(models.SharePermissionComment, "comment"))
	assert.False(t, shareSufficientFor(models.SharePermissionComment, "write"))
	assert.True(t, shareSufficientFor(models.SharePermissionEdit, "write"))
}

func TestAccessDecisionToAppError(t *testing.T) {
	allowed := AccessDecision{Allowed: true}
	assert.NoError(t, allowed.ToAppError())

	notFound := AccessDecision{Allowed: false, Method: MethodNotFound}
	assert.ErrorIs(t, notFound.ToAppError(), apperrors.ErrNotFound)

	orgIso := AccessDecision{Allowed: false, Method: MethodOrgIsolation}
	assert.ErrorIs(t, orgIso.ToAppError(), apperrors.ErrNotFound)

	denied := AccessDecision{Allowed: false, Method: MethodClearance}
	assert.ErrorIs(t, denied.ToAppError(), apperrors.ErrAuthorizationDenied)
}
