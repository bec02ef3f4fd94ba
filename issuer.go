package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Revocation reasons recorded on refresh token chains.
const (
	RevokeReasonLogout      = "logout"
	RevokeReasonReuse       = "reuse_detected"
	RevokeReasonNotApproved = "account_not_approved"
	RevokeReasonAdmin       = "admin_revocation"
)

// DefaultRefreshTokenTTL is the refresh window granted on issue and on every
// rotation.
var DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// TokenIssuer pairs the access token service with the refresh token store.
// It owns the rotation invariant: every refresh consumes the presented token
// exactly once and binds the replacement to the same chain.
type TokenIssuer struct {
	tokens       TokenService
	store        RefreshTokens
	provider     IdentityProvider
	roleProvider ResourceRoleProvider
	generate     AccessTokenGenerator
	refreshTTL   time.Duration
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

// AccessTokenGenerator produces the signed access token for a pair. Lets the
// authenticator route minting through its claims decorator pipeline.
type AccessTokenGenerator func(ctx context.Context, identity Identity, resourceRoles map[string]string) (string, error)

// TokenIssuerOption customizes issuer construction.
type TokenIssuerOption func(*TokenIssuer)

// WithRefreshTokenTTL overrides the refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if ttl > 0 {
			ti.refreshTTL = ttl
		}
	}
}

// WithIssuerClock injects a custom clock (useful for tests).
func WithIssuerClock(clock func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if clock != nil {
			ti.now = clock
		}
	}
}

// WithIssuerLogger overrides the issuer logger.
func WithIssuerLogger(logger Logger) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if logger != nil {
			ti.logger = logger
		}
	}
}

// WithIssuerActivitySink sets the ActivitySink used to publish token events.
func WithIssuerActivitySink(sink ActivitySink) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		ti.activitySink = normalizeActivitySink(sink)
	}
}

// WithAccessTokenGenerator overrides how access tokens are minted.
func WithAccessTokenGenerator(generate AccessTokenGenerator) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if generate != nil {
			ti.generate = generate
		}
	}
}

// WithIssuerResourceRoleProvider enables resource-scoped roles on refreshed
// access tokens.
func WithIssuerResourceRoleProvider(provider ResourceRoleProvider) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if provider != nil {
			ti.roleProvider = provider
		}
	}
}

// NewTokenIssuer returns a TokenIssuer. The provider is consulted on refresh
// so rotated tokens always reflect current account state, never the snapshot
// in the spent token.
func NewTokenIssuer(tokens TokenService, store RefreshTokens, provider IdentityProvider, opts ...TokenIssuerOption) *TokenIssuer {
	ti := &TokenIssuer{
		tokens:       tokens,
		store:        store,
		provider:     provider,
		roleProvider: &noopResourceRoleProvider{},
		refreshTTL:   DefaultRefreshTokenTTL,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}

	if ti.generate == nil {
		ti.generate = func(_ context.Context, identity Identity, resourceRoles map[string]string) (string, error) {
			return ti.tokens.Generate(identity, resourceRoles)
		}
	}

	return ti
}

// Issue mints a fresh access/refresh pair for an authenticated identity,
// starting a new token chain.
func (ti *TokenIssuer) Issue(ctx context.Context, identity Identity, resourceRoles map[string]string) (*TokenPair, error) {
	if identity == nil {
		return nil, errors.New("identity is required", errors.CategoryBadInput)
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "identity has no parseable id")
	}

	return ti.mintPair(ctx, identity, userID, uuid.Nil, resourceRoles)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed atomically: of two concurrent calls with the same token one wins,
// the other sees ErrTokenReuse. Reuse of an already spent token revokes the
// whole chain.
func (ti *TokenIssuer) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	hash := HashRefreshToken(rawToken)

	record, err := ti.store.Consume(ctx, hash)
	if err != nil {
		if IsTokenReuseError(err) {
			ti.revokeChainForReuse(ctx, hash)
		}
		return nil, err
	}

	identity, err := ti.provider.FindIdentityByIdentifier(ctx, record.UserID.String())
	if err != nil {
		ti.logger.Error("Refresh could not resolve identity %s: %v", record.UserID, err)
		return nil, err
	}

	if err := ensureIdentityApproved(identity); err != nil {
		if revokeErr := ti.store.RevokeChain(ctx, record.ChainID, RevokeReasonNotApproved); revokeErr != nil {
			ti.logger.Error("Refresh failed to revoke chain for unapproved account: %v", revokeErr)
		}
		return nil, err
	}

	pair, err := ti.mintPair(ctx, identity, record.UserID, record.ChainID, nil)
	if err != nil {
		return nil, err
	}

	ti.emit(ctx, ActivityEventTokenRefreshed, record.UserID.String(), map[string]any{
		"chain_id": record.ChainID.String(),
	})

	return pair, nil
}

// Revoke invalidates the chain the presented refresh token belongs to.
// Idempotent: revoking an unknown or already revoked token is not an error.
func (ti *TokenIssuer) Revoke(ctx context.Context, rawToken string) error {
	hash := HashRefreshToken(rawToken)

	revoked, err := ti.store.RevokeByHash(ctx, hash, RevokeReasonLogout)
	if err != nil {
		return err
	}

	if revoked {
		ti.emit(ctx, ActivityEventSessionRevoked, "", nil)
	}

	return nil
}

func (ti *TokenIssuer) mintPair(ctx context.Context, identity Identity, userID, chainID uuid.UUID, resourceRoles map[string]string) (*TokenPair, error) {
	if resourceRoles == nil {
		roles, err := ti.roleProvider.FindResourceRoles(ctx, identity)
		if err != nil {
			return nil, err
		}
		resourceRoles = roles
	}

	access, err := ti.generate(ctx, identity, resourceRoles)
	if err != nil {
		return nil, err
	}

	raw, err := NewRefreshTokenValue()
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		UserID:    userID,
		ChainID:   chainID,
		TokenHash: HashRefreshToken(raw),
		ExpiresAt: ti.now().Add(ti.refreshTTL),
	}

	if _, err := ti.store.Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh token")
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ti.accessTTLSeconds(),
	}, nil
}

// revokeChainForReuse is the theft defense: a spent token came back, so the
// whole chain is burned, not just the one call.
func (ti *TokenIssuer) revokeChainForReuse(ctx context.Context, hash string) {
	record, err := ti.store.GetByHash(ctx, hash)
	if err != nil {
		ti.logger.Error("Reuse detected but token lookup failed: %v", err)
		return
	}

	if err := ti.store.RevokeChain(ctx, record.ChainID, RevokeReasonReuse); err != nil {
		ti.logger.Error("Reuse detected but chain revocation failed: %v", err)
		return
	}

	ti.logger.Warn("Refresh token reuse detected, chain %s revoked for user %s", record.ChainID, record.UserID)

	ti.emit(ctx, ActivityEventTokenReuse, record.UserID.String(), map[string]any{
		"chain_id": record.ChainID.String(),
	})
}

func (ti *TokenIssuer) accessTTLSeconds() int64 {
	if provider, ok := ti.tokens.(tokenDefaultsProvider); ok {
		return int64(provider.tokenDefaults().ttl.Seconds())
	}
	return 0
}

func (ti *TokenIssuer) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(ti.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{Type: "system"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: ti.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		ti.logger.Warn("activity sink record error: %v", err)
	}
}
