package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/goliatone/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// integrationTracker narrows the repository surface to what the identity
// provider needs, same shape callers use in production wiring.
type integrationTracker struct {
	users auth.Users
}

func (a integrationTracker) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	return a.users.GetByIdentifier(ctx, identifier)
}

func (a integrationTracker) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	return a.users.TrackAttemptedLogin(ctx, user)
}

func (a integrationTracker) TrackSucccessfulLogin(ctx context.Context, user *auth.User) error {
	return a.users.TrackSucccessfulLogin(ctx, user)
}

func openTestDatabase(t *testing.T, name string) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	migrations, err := fs.Sub(auth.GetMigrationsFS(), "data/sql/migrations")
	require.NoError(t, err)

	entries, err := fs.ReadDir(migrations, ".")
	require.NoError(t, err)

	names := []string{}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	require.NotEmpty(t, names)

	for _, file := range names {
		contents, err := fs.ReadFile(migrations, file)
		require.NoError(t, err)

		_, err = db.ExecContext(context.Background(), string(contents))
		require.NoError(t, err, "migration %s", file)
	}

	return db
}

func TestAccountLifecycleIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	ctx := context.Background()
	db := openTestDatabase(t, "lifecycle_integration")

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	sink := &recordingSink{}
	tracker := integrationTracker{users: repo.Users()}

	authenticator := auth.NewAuthenticator(
		auth.NewUserProvider(tracker),
		repo.RefreshTokens(),
		testConfig{},
	).WithActivitySink(sink)

	const email = "newcomer@example.com"
	const password = "integration-pass-123"

	register := auth.NewRegisterUserHandler(repo)
	require.NoError(t, register.Execute(ctx, auth.RegisterUserMessage{
		FirstName: "New",
		LastName:  "Comer",
		Email:     email,
		Role:      string(auth.RoleStudent),
		Password:  password,
	}))

	created, err := repo.Users().GetByIdentifier(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, auth.ApprovalPending, created.ApprovalStatus)
	assert.Equal(t, auth.RoleStudent, created.Role)
	assert.Equal(t, "newcomer", created.Username)

	t.Run("pending account cannot log in", func(t *testing.T) {
		pair, err := authenticator.Login(ctx, email, password)
		require.Error(t, err)
		assert.Nil(t, pair)
		assert.True(t, auth.IsPendingApprovalError(err))
	})

	t.Run("wrong password does not reveal approval state", func(t *testing.T) {
		_, err := authenticator.Login(ctx, email, "not-the-password")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
		assert.False(t, auth.IsPendingApprovalError(err))
	})

	admin := &auth.User{
		Role:           auth.RoleAdmin,
		Username:       "admin",
		Email:          "admin@example.com",
		ApprovalStatus: auth.ApprovalApproved,
	}
	admin, err = repo.Users().GetOrCreate(ctx, admin)
	require.NoError(t, err)

	t.Run("approval decision is stamped", func(t *testing.T) {
		actor := auth.ActorRef{ID: admin.ID.String(), Type: "user"}
		approved, err := repo.Users().Approve(ctx, actor, created)
		require.NoError(t, err)
		assert.Equal(t, auth.ApprovalApproved, approved.ApprovalStatus)

		stored, err := repo.Users().GetByIdentifier(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, auth.ApprovalApproved, stored.ApprovalStatus)
		require.NotNil(t, stored.ApprovedBy)
		assert.Equal(t, admin.ID, *stored.ApprovedBy)
		assert.NotNil(t, stored.DecidedAt)
	})

	var pair *auth.TokenPair
	t.Run("approved account logs in", func(t *testing.T) {
		pair, err = authenticator.Login(ctx, email, password)
		require.NoError(t, err)
		require.NotNil(t, pair)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, "Bearer", pair.TokenType)

		session, err := authenticator.SessionFromToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, created.ID.String(), session.GetUserID())
	})

	var rotated *auth.TokenPair
	t.Run("refresh rotates the credential", func(t *testing.T) {
		rotated, err = authenticator.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, rotated)
		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	})

	t.Run("replaying a spent token burns the chain", func(t *testing.T) {
		_, err := authenticator.Refresh(ctx, pair.RefreshToken)
		require.Error(t, err)
		assert.True(t, auth.IsTokenReuseError(err))

		// the replacement issued from the same chain is gone too
		_, err = authenticator.Refresh(ctx, rotated.RefreshToken)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrTokenRevoked)
	})

	t.Run("logout revokes and stays idempotent", func(t *testing.T) {
		fresh, err := authenticator.Login(ctx, email, password)
		require.NoError(t, err)

		require.NoError(t, authenticator.Logout(ctx, fresh.RefreshToken))

		_, err = authenticator.Refresh(ctx, fresh.RefreshToken)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrTokenRevoked)

		require.NoError(t, authenticator.Logout(ctx, fresh.RefreshToken))
		require.NoError(t, authenticator.Logout(ctx, "never-issued-token"))
	})

	t.Run("activity trail covers the lifecycle", func(t *testing.T) {
		types := sink.eventTypes()
		assert.Contains(t, types, auth.ActivityEventLoginFailure)
		assert.Contains(t, types, auth.ActivityEventLoginSuccess)
		assert.Contains(t, types, auth.ActivityEventTokenRefreshed)
		assert.Contains(t, types, auth.ActivityEventTokenReuse)
		assert.Contains(t, types, auth.ActivityEventSessionRevoked)
	})
}

func TestApprovalRecheckIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	ctx := context.Background()
	db := openTestDatabase(t, "recheck_integration")

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	tracker := integrationTracker{users: repo.Users()}
	checker := auth.NewApprovalChecker(tracker)

	user, err := repo.Users().GetOrCreate(ctx, &auth.User{
		Role:           auth.RoleTeacher,
		Username:       "teacher",
		Email:          "teacher@example.com",
		ApprovalStatus: auth.ApprovalApproved,
	})
	require.NoError(t, err)

	status, err := checker.CheckApproval(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, auth.ApprovalApproved, status)

	actor := auth.ActorRef{ID: user.ID.String(), Type: "user"}
	_, err = repo.Users().Reject(ctx, actor, user, auth.WithTransitionReason("policy violation"))
	require.NoError(t, err)

	// cached snapshot still reports the pre-decision status
	status, err = checker.CheckApproval(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, auth.ApprovalApproved, status)

	// an explicit invalidation makes the change visible immediately
	checker.Invalidate(user.ID.String())
	status, err = checker.CheckApproval(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, auth.ApprovalRejected, status)
}
