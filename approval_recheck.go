package auth

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultRecheckWindow bounds how stale an approval answer may be. Tokens
// carry an approval snapshot from mint time, the checker closes the gap
// between that snapshot and a later rejection.
var DefaultRecheckWindow = 30 * time.Second

// ApprovalChecker answers whether an account is still approved, with bounded
// staleness.
type ApprovalChecker interface {
	CheckApproval(ctx context.Context, userID string) (ApprovalStatus, error)
}

// ApprovalCheckerFunc adapts a function to the ApprovalChecker interface.
type ApprovalCheckerFunc func(ctx context.Context, userID string) (ApprovalStatus, error)

// CheckApproval implements ApprovalChecker.
func (f ApprovalCheckerFunc) CheckApproval(ctx context.Context, userID string) (ApprovalStatus, error) {
	return f(ctx, userID)
}

type approvalCacheEntry struct {
	status    ApprovalStatus
	checkedAt time.Time
}

// CachedApprovalChecker caches approval lookups for a bounded window so hot
// endpoints do not hit the store on every request.
type CachedApprovalChecker struct {
	store  UserTracker
	window time.Duration
	now    func() time.Time
	logger Logger

	mu    sync.RWMutex
	cache map[string]approvalCacheEntry
}

// ApprovalCheckerOption customizes checker construction.
type ApprovalCheckerOption func(*CachedApprovalChecker)

// WithRecheckWindow overrides the staleness bound.
func WithRecheckWindow(window time.Duration) ApprovalCheckerOption {
	return func(c *CachedApprovalChecker) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithRecheckClock injects a custom clock (useful for tests).
func WithRecheckClock(clock func() time.Time) ApprovalCheckerOption {
	return func(c *CachedApprovalChecker) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithRecheckLogger overrides the checker logger.
func WithRecheckLogger(logger Logger) ApprovalCheckerOption {
	return func(c *CachedApprovalChecker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewApprovalChecker returns a CachedApprovalChecker backed by the user store.
func NewApprovalChecker(store UserTracker, opts ...ApprovalCheckerOption) *CachedApprovalChecker {
	checker := &CachedApprovalChecker{
		store:  store,
		window: DefaultRecheckWindow,
		now:    time.Now,
		logger: defLogger{},
		cache:  map[string]approvalCacheEntry{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(checker)
		}
	}

	return checker
}

// CheckApproval returns the account's approval status, at most window stale.
// Lookup failures do not fall back to the cached answer, callers fail closed.
func (c *CachedApprovalChecker) CheckApproval(ctx context.Context, userID string) (ApprovalStatus, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.cache[userID]
	c.mu.RUnlock()

	if ok && now.Sub(entry.checkedAt) < c.window {
		return entry.status, nil
	}

	user, err := c.store.GetByIdentifier(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", ErrIdentityNotFound
		}
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to re-check approval status")
	}

	user.EnsureApprovalStatus()
	status := user.ApprovalStatus

	c.mu.Lock()
	c.cache[userID] = approvalCacheEntry{status: status, checkedAt: now}
	c.mu.Unlock()

	return status, nil
}

// Invalidate drops the cached answer for a user, forcing the next check to
// hit the store. Call after an approval decision lands.
func (c *CachedApprovalChecker) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()
}

// EnsureApproved combines the token's approval snapshot with a live re-check.
// A nil checker falls back to the snapshot alone.
func EnsureApproved(ctx context.Context, checker ApprovalChecker, claims AuthClaims) error {
	if claims == nil {
		return ErrUnauthenticated
	}

	if err := approvalAuthError(claims.Approval()); err != nil {
		return err
	}

	if checker == nil {
		return nil
	}

	status, err := checker.CheckApproval(ctx, claims.UserID())
	if err != nil {
		return err
	}

	return approvalAuthError(status)
}
