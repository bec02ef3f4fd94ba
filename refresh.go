package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

// TokenPair is what login and refresh hand back: a short-lived access token
// plus the opaque refresh token that can be exchanged for the next pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    int64  `json:"expires_in,omitempty"` // seconds until access token expiry
}

const refreshTokenBytes = 32

// NewRefreshTokenValue mints an opaque, unguessable refresh token value.
// The raw value goes to the client; only its fingerprint is stored.
func NewRefreshTokenValue() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshToken returns the sha256 hex fingerprint stored at rest.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
