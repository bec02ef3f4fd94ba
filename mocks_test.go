package auth_test

import (
	"context"
	"io"
	"mime/multipart"
	"sync"
	"time"

	"github.com/goliatone/go-lms-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// testConfig implements auth.Config with fixed values.
type testConfig struct{}

func (testConfig) GetSigningKey() string          { return "test-signing-key" }
func (testConfig) GetSigningMethod() string       { return "HS256" }
func (testConfig) GetContextKey() string          { return "user" }
func (testConfig) GetTokenExpiration() int        { return 15 }
func (testConfig) GetRefreshTokenExpiration() int { return 24 }
func (testConfig) GetTokenLookup() string         { return "header:Authorization" }
func (testConfig) GetAuthScheme() string          { return "Bearer" }
func (testConfig) GetIssuer() string              { return "test-issuer" }
func (testConfig) GetAudience() []string          { return []string{"test:audience"} }
func (testConfig) GetApprovalRecheckWindow() int  { return 30 }

// testIdentity carries an approval snapshot like the repository-backed one.
type testIdentity struct {
	id       string
	username string
	email    string
	role     string
	approval auth.ApprovalStatus
}

func (m *testIdentity) ID() string       { return m.id }
func (m *testIdentity) Username() string { return m.username }
func (m *testIdentity) Email() string    { return m.email }
func (m *testIdentity) Role() string     { return m.role }

func (m *testIdentity) ApprovalStatus() auth.ApprovalStatus {
	if m.approval == "" {
		return auth.ApprovalApproved
	}
	return m.approval
}

// stubIdentityProvider returns a fixed identity, or an error.
type stubIdentityProvider struct {
	identity auth.Identity
	err      error
}

func (p *stubIdentityProvider) VerifyIdentity(_ context.Context, _, _ string) (auth.Identity, error) {
	return p.identity, p.err
}

func (p *stubIdentityProvider) FindIdentityByIdentifier(_ context.Context, _ string) (auth.Identity, error) {
	return p.identity, p.err
}

// memoryRefreshStore implements the refresh token store in memory with the
// same consume/revoke semantics as the SQL-backed repository. The embedded
// interface panics on anything the tests do not exercise.
type memoryRefreshStore struct {
	auth.RefreshTokens

	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken
}

func newMemoryRefreshStore() *memoryRefreshStore {
	return &memoryRefreshStore{
		tokens: map[string]*auth.RefreshToken{},
	}
}

func (s *memoryRefreshStore) Create(_ context.Context, record *auth.RefreshToken, _ ...repository.InsertCriteria) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.ChainID == uuid.Nil {
		record.ChainID = uuid.New()
	}

	clone := *record
	s.tokens[record.TokenHash] = &clone
	return record, nil
}

func (s *memoryRefreshStore) GetByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[hash]
	if !ok {
		return nil, auth.ErrTokenMalformed
	}
	clone := *record
	return &clone, nil
}

func (s *memoryRefreshStore) Consume(_ context.Context, hash string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[hash]
	if !ok {
		return nil, auth.ErrTokenMalformed
	}

	switch {
	case record.ConsumedAt != nil:
		return nil, auth.ErrTokenReuse
	case record.RevokedAt != nil:
		return nil, auth.ErrTokenRevoked
	case !time.Now().Before(record.ExpiresAt):
		return nil, auth.ErrTokenExpired
	}

	now := time.Now()
	record.ConsumedAt = &now

	clone := *record
	return &clone, nil
}

func (s *memoryRefreshStore) RevokeChain(_ context.Context, chainID uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, record := range s.tokens {
		if record.ChainID == chainID && record.RevokedAt == nil {
			record.RevokedAt = &now
			record.RevokedReason = reason
		}
	}
	return nil
}

func (s *memoryRefreshStore) RevokeByHash(ctx context.Context, hash, reason string) (bool, error) {
	s.mu.Lock()
	record, ok := s.tokens[hash]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	alreadyRevoked := record.RevokedAt != nil
	chainID := record.ChainID
	s.mu.Unlock()

	if err := s.RevokeChain(ctx, chainID, reason); err != nil {
		return false, err
	}
	return !alreadyRevoked, nil
}

func (s *memoryRefreshStore) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, record := range s.tokens {
		if record.ConsumedAt == nil && record.RevokedAt == nil {
			n++
		}
	}
	return n
}

// recordingSink captures activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) eventTypes() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]auth.ActivityEventType, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.EventType)
	}
	return types
}

// MockAuthenticator implements auth.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, identifier, password string) (*auth.TokenPair, error) {
	args := m.Called(ctx, identifier, password)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *MockAuthenticator) Impersonate(ctx context.Context, identifier string) (*auth.TokenPair, error) {
	args := m.Called(ctx, identifier)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *MockAuthenticator) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *MockAuthenticator) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *MockAuthenticator) SessionFromToken(token string) (auth.Session, error) {
	args := m.Called(token)
	return args.Get(0).(auth.Session), args.Error(1)
}

func (m *MockAuthenticator) IdentityFromSession(ctx context.Context, session auth.Session) (auth.Identity, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(auth.Identity), args.Error(1)
}

// MockLoginPayload implements auth.LoginPayload
type MockLoginPayload struct {
	Identifier string
	Password   string
}

func (m MockLoginPayload) GetIdentifier() string {
	return m.Identifier
}

func (m MockLoginPayload) GetPassword() string {
	return m.Password
}

// MockSession mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	fh, _ := args.Get(0).(*multipart.FileHeader)
	return fh, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}
