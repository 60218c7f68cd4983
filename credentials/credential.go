package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the backend-issued token pair obtained from a verify exchange.
// The client only ever holds one, under StorageKey.
type Credential struct {
	AccessToken  string    `json:"access_token"`  // Sent as "Authorization: Bearer <access_token>"
	RefreshToken string    `json:"refresh_token"` // Opaque to the client
	IssuedAt     time.Time `json:"timestamp"`     // When the pair was persisted locally
}

// ExpiresAt reads the exp claim of the access token without verifying its
// signature; the backend remains the authority. Returns the zero time when the
// token is not a JWT or carries no exp.
func (c Credential) ExpiresAt() time.Time {
	return TokenExpiry(c.AccessToken)
}

// Expired reports whether the access token has a known expiry at or before now.
func (c Credential) Expired(now time.Time) bool {
	exp := c.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// TokenExpiry extracts the exp claim from an unverified JWT.
func TokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
