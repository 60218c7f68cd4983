// Package identity describes the third-party identity provider the session
// bridge sits on top of. Providers are injected; nothing in this module reaches
// for a global client.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too weak")
)

// User is the provider-side identity carried by a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the provider's short-lived session. The bridge only reads it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the session expires within leeway of now. Sessions
// without an expiry never expire.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

type EventType int

const (
	SessionCreated EventType = iota + 1
	SessionRefreshed
	SignedOut
)

func (t EventType) String() string {
	switch t {
	case SessionCreated:
		return "SESSION_CREATED"
	case SessionRefreshed:
		return "SESSION_REFRESHED"
	case SignedOut:
		return "SIGNED_OUT"
	}
	return "UNKNOWN"
}

// Event is an auth-state change. Session is nil for SignedOut.
type Event struct {
	Type    EventType
	Session *Session
}

// Provider is the minimal surface the session bridge needs.
type Provider interface {
	// Session returns the current session, or nil when signed out.
	Session(ctx context.Context) (*Session, error)
	// Subscribe delivers auth-state changes until unsubscribe is called.
	Subscribe() (events <-chan Event, unsubscribe func())
	SignOut(ctx context.Context) error
}

// PasswordAuthenticator is implemented by providers that support email and
// password accounts.
type PasswordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) error
	ResetPassword(ctx context.Context, email string) error
}
