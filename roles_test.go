package auth_test

import (
	"testing"

	"github.com/goliatone/go-lms-auth"
	"github.com/stretchr/testify/assert"
)

func TestRoleIsAtLeast(t *testing.T) {
	tests := []struct {
		name    string
		role    auth.UserRole
		minRole auth.UserRole
		want    bool
	}{
		{"student meets student", auth.RoleStudent, auth.RoleStudent, true},
		{"student below teacher", auth.RoleStudent, auth.RoleTeacher, false},
		{"guardian below teacher", auth.RoleGuardian, auth.RoleTeacher, false},
		{"teacher meets guardian", auth.RoleTeacher, auth.RoleGuardian, true},
		{"admin meets teacher", auth.RoleAdmin, auth.RoleTeacher, true},
		{"super admin meets admin", auth.RoleSuperAdmin, auth.RoleAdmin, true},
		{"admin below super admin", auth.RoleAdmin, auth.RoleSuperAdmin, false},
		{"unknown role never qualifies", "principal", auth.RoleStudent, false},
		{"unknown minimum never satisfied", auth.RoleSuperAdmin, "principal", false},
		{"empty role never qualifies", "", auth.RoleStudent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.RoleIsAtLeast(tt.role, tt.minRole))
		})
	}
}

func TestParseRole(t *testing.T) {
	role, ok := auth.ParseRole("teacher")
	assert.True(t, ok)
	assert.Equal(t, auth.RoleTeacher, role)

	_, ok = auth.ParseRole("janitor")
	assert.False(t, ok)

	_, ok = auth.ParseRole("")
	assert.False(t, ok)
}

func TestGetAllRoles(t *testing.T) {
	roles := auth.GetAllRoles()

	assert.Len(t, roles, 5)
	for _, role := range roles {
		assert.True(t, auth.IsValidRole(role))
	}

	// hierarchical order, least privileged first
	assert.Equal(t, auth.RoleStudent, roles[0])
	assert.Equal(t, auth.RoleSuperAdmin, roles[len(roles)-1])
}
