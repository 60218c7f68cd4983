package session

import (
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/jrsteele09/go-dashboard-client/api"
	"github.com/jrsteele09/go-dashboard-client/identity"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// VerifyError reports that the backend refused, or could not be reached for,
// the identity exchange. The bridge logs it and settles Unauthenticated.
type VerifyError struct {
	Err error
}

func (e *VerifyError) Error() string {
	return "verify identity session: " + api.Message(e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Is matches ErrVerifyRejected when the backend refused the token, as opposed
// to failing or being unreachable.
func (e *VerifyError) Is(target error) bool {
	if target != interrors.ErrVerifyRejected {
		return false
	}
	status := api.StatusCode(e.Err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

type AuthErrorCode string

const (
	CodeInvalidEmail      AuthErrorCode = "INVALID_EMAIL"
	CodeInvalidPassword   AuthErrorCode = "INVALID_PASSWORD"
	CodePasswordMismatch  AuthErrorCode = "PASSWORD_MISMATCH"
	CodePasswordWeak      AuthErrorCode = "PASSWORD_WEAK"
	CodeEmailNotConfirmed AuthErrorCode = "EMAIL_NOT_CONFIRMED"
	CodeOAuthError        AuthErrorCode = "OAUTH_ERROR"
	CodeRateLimit         AuthErrorCode = "RATE_LIMIT"
	CodeNetwork           AuthErrorCode = "NETWORK"
	CodeUnknown           AuthErrorCode = "UNKNOWN"
)

var codeMessage = map[AuthErrorCode]string{
	CodeInvalidEmail:      "The email address is invalid or not registered",
	CodeInvalidPassword:   "Incorrect password",
	CodePasswordMismatch:  "The password confirmation does not match",
	CodePasswordWeak:      "The password does not meet the requirements",
	CodeEmailNotConfirmed: "Email not confirmed yet. Please check your inbox",
	CodeOAuthError:        "Sign-in with the identity provider failed. Try again",
	CodeRateLimit:         "Too many attempts. Try again in a moment",
	CodeNetwork:           "Network problem. Check your connection",
	CodeUnknown:           "An unexpected error occurred",
}

// AuthError is a classified account operation failure. Message is meant for
// display; Details carries the provider's own text.
type AuthError struct {
	Code    AuthErrorCode
	Message string
	Details string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(code AuthErrorCode, details string, err error) *AuthError {
	return &AuthError{Code: code, Message: codeMessage[code], Details: details, Err: err}
}

var messageCodes = []struct {
	pattern *regexp.Regexp
	code    AuthErrorCode
}{
	{regexp.MustCompile(`(?i)invalid login credentials`), CodeInvalidPassword},
	{regexp.MustCompile(`(?i)email not confirmed`), CodeEmailNotConfirmed},
	{regexp.MustCompile(`(?i)rate limit`), CodeRateLimit},
	{regexp.MustCompile(`(?i)network`), CodeNetwork},
}

// classifyAuthError maps provider failures onto AuthError codes: the identity
// sentinels first, then transport failures, then the provider's message text.
func classifyAuthError(err error) *AuthError {
	if err == nil {
		return newAuthError(CodeUnknown, "", nil)
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	details := err.Error()
	switch {
	case errors.Is(err, identity.ErrInvalidEmail):
		return newAuthError(CodeInvalidEmail, details, err)
	case errors.Is(err, identity.ErrInvalidCredentials):
		return newAuthError(CodeInvalidPassword, details, err)
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return newAuthError(CodeEmailNotConfirmed, details, err)
	case errors.Is(err, identity.ErrWeakPassword):
		return newAuthError(CodePasswordWeak, details, err)
	case errors.Is(err, identity.ErrRateLimited):
		return newAuthError(CodeRateLimit, details, err)
	case isNetworkError(err):
		return newAuthError(CodeNetwork, details, err)
	}

	for _, mc := range messageCodes {
		if mc.pattern.MatchString(details) {
			return newAuthError(mc.code, details, err)
		}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return newAuthError(CodeOAuthError, details, err)
	}
	return newAuthError(CodeUnknown, details, err)
}

func isNetworkError(err error) bool {
	if api.IsNetworkError(err) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
