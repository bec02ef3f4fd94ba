package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teacherClaims() *JWTClaims {
	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user123",
		},
		UID:            "user123",
		UserRole:       string(RoleTeacher),
		ApprovalStatus: string(ApprovalApproved),
	}
}

func TestGetClaims(t *testing.T) {
	tests := []struct {
		name     string
		setupCtx func() context.Context
		wantOK   bool
	}{
		{
			name: "should return claims when present in context",
			setupCtx: func() context.Context {
				return WithClaimsContext(context.Background(), teacherClaims())
			},
			wantOK: true,
		},
		{
			name: "should return false when no claims in context",
			setupCtx: func() context.Context {
				return context.Background()
			},
			wantOK: false,
		},
		{
			name: "should return false when context has wrong type",
			setupCtx: func() context.Context {
				return context.WithValue(context.Background(), claimsCtxKey, "not-a-claims-object")
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupCtx()
			gotClaims, gotOK := GetClaims(ctx)

			assert.Equal(t, tt.wantOK, gotOK)
			if tt.wantOK {
				assert.NotNil(t, gotClaims)
				assert.Equal(t, "user123", gotClaims.Subject())
				assert.Equal(t, "user123", gotClaims.UserID())
				assert.Equal(t, string(RoleTeacher), gotClaims.Role())
			} else {
				assert.Nil(t, gotClaims)
			}
		})
	}
}

func TestCan(t *testing.T) {
	withRole := func(role string) context.Context {
		claims := teacherClaims()
		claims.UserRole = role
		return WithClaimsContext(context.Background(), claims)
	}

	tests := []struct {
		name       string
		ctx        context.Context
		resource   string
		permission string
		want       bool
	}{
		{
			name:       "teacher can read courses",
			ctx:        withRole(string(RoleTeacher)),
			resource:   ResourceCourses,
			permission: "read",
			want:       true,
		},
		{
			name:       "teacher can edit modules",
			ctx:        withRole(string(RoleTeacher)),
			resource:   ResourceModules,
			permission: "edit",
			want:       true,
		},
		{
			name:       "teacher can grade submissions",
			ctx:        withRole(string(RoleTeacher)),
			resource:   ResourceSubmissions,
			permission: "grade",
			want:       true,
		},
		{
			name:       "teacher cannot delete courses",
			ctx:        withRole(string(RoleTeacher)),
			resource:   ResourceCourses,
			permission: "delete",
			want:       false,
		},
		{
			name:       "student can create submissions",
			ctx:        withRole(string(RoleStudent)),
			resource:   ResourceSubmissions,
			permission: "create",
			want:       true,
		},
		{
			name:       "student cannot create courses",
			ctx:        withRole(string(RoleStudent)),
			resource:   ResourceCourses,
			permission: "create",
			want:       false,
		},
		{
			name:       "guardian is read only",
			ctx:        withRole(string(RoleGuardian)),
			resource:   ResourceSubmissions,
			permission: "update",
			want:       false,
		},
		{
			name:       "admin can approve users",
			ctx:        withRole(string(RoleAdmin)),
			resource:   ResourceUsers,
			permission: "approve",
			want:       true,
		},
		{
			name:       "teacher cannot approve users",
			ctx:        withRole(string(RoleTeacher)),
			resource:   ResourceUsers,
			permission: "approve",
			want:       false,
		},
		{
			name:       "super admin bypasses the table",
			ctx:        withRole(string(RoleSuperAdmin)),
			resource:   ResourceSettings,
			permission: "delete",
			want:       true,
		},
		{
			name:       "no claims denies",
			ctx:        context.Background(),
			resource:   ResourceCourses,
			permission: "read",
			want:       false,
		},
		{
			name:       "unknown permission denies",
			ctx:        withRole(string(RoleAdmin)),
			resource:   ResourceCourses,
			permission: "invalid",
			want:       false,
		},
		{
			name:       "unknown resource denies",
			ctx:        withRole(string(RoleAdmin)),
			resource:   "grades-export",
			permission: "read",
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.ctx, tt.resource, tt.permission))
		})
	}
}

func TestAuthorizeFromContext(t *testing.T) {
	t.Run("no claims yields unauthenticated", func(t *testing.T) {
		err := Authorize(context.Background(), ResourceCourses, ActionRead)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("insufficient role yields forbidden", func(t *testing.T) {
		claims := teacherClaims()
		claims.UserRole = string(RoleStudent)
		ctx := WithClaimsContext(context.Background(), claims)

		err := Authorize(ctx, ResourceUsers, ActionApprove)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("granted action passes", func(t *testing.T) {
		ctx := WithClaimsContext(context.Background(), teacherClaims())
		assert.NoError(t, Authorize(ctx, ResourceSubmissions, ActionGrade))
	})

	t.Run("ownership predicate layers on top", func(t *testing.T) {
		ctx := WithClaimsContext(context.Background(), teacherClaims())

		err := Authorize(ctx, ResourceSubmissions, ActionGrade, WithOwnership(
			func(_ context.Context, claims AuthClaims) error {
				if claims.UserID() != "someone-else" {
					return ErrForbidden
				}
				return nil
			},
		))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestGetRouterClaims(t *testing.T) {
	tests := []struct {
		name    string
		setupFn func() router.Context
		key     string
		wantOK  bool
	}{
		{
			name: "should return claims when present with default key",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock["user"] = teacherClaims()
				return ctx
			},
			key:    "", // use default key
			wantOK: true,
		},
		{
			name: "should return claims when present with custom key",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock["custom-claims"] = teacherClaims()
				return ctx
			},
			key:    "custom-claims",
			wantOK: true,
		},
		{
			name: "should return false when key not present",
			setupFn: func() router.Context {
				return router.NewMockContext()
			},
			key:    "user",
			wantOK: false,
		},
		{
			name: "should return false when value is wrong type",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock["user"] = "not-a-claims-object"
				return ctx
			},
			key:    "user",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupFn()
			gotClaims, gotOK := GetRouterClaims(ctx, tt.key)

			assert.Equal(t, tt.wantOK, gotOK)
			if tt.wantOK {
				assert.NotNil(t, gotClaims)
				assert.Equal(t, "user123", gotClaims.UserID())
				assert.Equal(t, string(RoleTeacher), gotClaims.Role())
			} else {
				assert.Nil(t, gotClaims)
			}
		})
	}
}

func TestCanFromRouter(t *testing.T) {
	tests := []struct {
		name       string
		setupFn    func() router.Context
		resource   string
		permission string
		want       bool
	}{
		{
			name: "teacher can read enrollments",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock["user"] = teacherClaims()
				return ctx
			},
			resource:   ResourceEnrollments,
			permission: "read",
			want:       true,
		},
		{
			name: "student cannot assign enrollments",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				claims := teacherClaims()
				claims.UserRole = string(RoleStudent)
				ctx.LocalsMock["user"] = claims
				return ctx
			},
			resource:   ResourceEnrollments,
			permission: "assign",
			want:       false,
		},
		{
			name: "no claims denies",
			setupFn: func() router.Context {
				return router.NewMockContext()
			},
			resource:   ResourceCourses,
			permission: "read",
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupFn()
			assert.Equal(t, tt.want, CanFromRouter(ctx, tt.resource, tt.permission))
		})
	}
}

func TestWithClaimsContext(t *testing.T) {
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UID:            "user123",
		UserRole:       string(RoleStudent),
		ApprovalStatus: string(ApprovalApproved),
		Resources: map[string]string{
			ResourceModules: string(RoleTeacher),
		},
	}

	ctx := WithClaimsContext(context.Background(), claims)

	retrieved, ok := GetClaims(ctx)
	require.True(t, ok)
	require.NotNil(t, retrieved)
	assert.Equal(t, "user123", retrieved.UserID())
	assert.Equal(t, string(RoleStudent), retrieved.Role())

	// the module-scoped teacher role wins for modules only
	assert.True(t, retrieved.CanCreate(ResourceModules))
	assert.False(t, retrieved.CanCreate(ResourceMaterials))
	assert.True(t, retrieved.CanCreate(ResourceSubmissions))
}
