package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	TextCodeAccountPending     = "AUTH_ACCOUNT_PENDING"
	TextCodeAccountRejected    = "AUTH_ACCOUNT_REJECTED"
	TextCodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "AUTH_TOKEN_MALFORMED"
	TextCodeTokenBadSignature  = "AUTH_TOKEN_BAD_SIGNATURE"
	TextCodeTokenReuse         = "AUTH_TOKEN_REUSE"
	TextCodeTokenRevoked       = "AUTH_TOKEN_REVOKED"
	TextCodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	TextCodeForbidden          = "AUTH_FORBIDDEN"
	TextCodeTooManyAttempts    = "AUTH_TOO_MANY_ATTEMPTS"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned when the password check fails. It
// deliberately carries the same text code as an unknown identity so callers
// cannot probe which accounts exist.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotApproved is returned when a pending account attempts to log in.
// Distinguishable from a credential failure so clients can surface the
// approval state instead of a generic auth error.
var ErrAccountNotApproved = errors.New("account pending administrator approval", errors.CategoryAuth).
	WithTextCode(TextCodeAccountPending).
	WithCode(errors.CodeUnauthorized)

// ErrAccountRejected is returned when a rejected account attempts to log in.
var ErrAccountRejected = errors.New("account registration was rejected", errors.CategoryAuth).
	WithTextCode(TextCodeAccountRejected).
	WithCode(errors.CodeForbidden)

// ErrTokenExpired is returned for access or refresh tokens past their expiry.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token cannot be parsed.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalidSignature is returned when signature verification fails.
var ErrTokenInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenBadSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenReuse is returned when a spent refresh token is presented again.
// Treated as a security signal: the whole token chain gets revoked.
var ErrTokenReuse = errors.New("refresh token already used", errors.CategoryAuth).
	WithTextCode(TextCodeTokenReuse).
	WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked is returned when a revoked refresh token is presented.
var ErrTokenRevoked = errors.New("refresh token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated is the 401 half of the authorization contract: no
// session, or a session we could not validate.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is the 403 half: a valid session without enough privilege.
var ErrForbidden = errors.New("insufficient privileges", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrTooManyLoginAttempts is returned when the cooldown window is active.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrImmutableClaimMutation is returned when a claims decorator touches a
// protected claim.
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
	WithTextCode("AUTH_IMMUTABLE_CLAIM")

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrUnableToDecodeSession unable to decode JWT claims into a session
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToParseData is returned when claims are missing or of the wrong shape
var ErrUnableToParseData = errors.New("unable to parse claims data", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens, including the error
// strings produced by the jwt library before we wrap them.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for unparseable token errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsPendingApprovalError reports whether err is the pending-approval gate.
func IsPendingApprovalError(err error) bool {
	return errors.Is(err, ErrAccountNotApproved)
}

// IsTokenReuseError reports whether err is the refresh rotation conflict.
func IsTokenReuseError(err error) bool {
	return errors.Is(err, ErrTokenReuse)
}
