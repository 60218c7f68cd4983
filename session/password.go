package session

import (
	"context"
	"regexp"
	"strings"

	"github.com/jrsteele09/go-dashboard-client/adapters"
	"github.com/jrsteele09/go-dashboard-client/identity"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
)

const minPasswordLength = 8

var (
	hasUpper  = regexp.MustCompile(`[A-Z]`)
	hasLower  = regexp.MustCompile(`[a-z]`)
	hasNumber = regexp.MustCompile(`\d`)
)

// SignUpRequest carries the registration form.
type SignUpRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// SignInWithPassword signs in through the provider and verifies the new
// session before returning, so the user is available on success. Provider
// failures come back as *AuthError, a rejected exchange as *VerifyError.
func (b *Bridge) SignInWithPassword(ctx context.Context, email, password string) (*adapters.User, error) {
	auth, err := b.passwordAuthenticator()
	if err != nil {
		return nil, err
	}
	if !validEmail(email) {
		return nil, newAuthError(CodeInvalidEmail, "", nil)
	}

	session, err := auth.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, classifyAuthError(err)
	}
	if err := b.verify(ctx, session.AccessToken, true); err != nil {
		return nil, err
	}
	return b.User(), nil
}

// SignUp validates the form and registers the account with the provider. The
// account usually needs its email confirmed before the first sign-in.
func (b *Bridge) SignUp(ctx context.Context, req SignUpRequest) error {
	auth, err := b.passwordAuthenticator()
	if err != nil {
		return err
	}
	if !validEmail(req.Email) {
		return newAuthError(CodeInvalidEmail, "", nil)
	}
	if req.Password != req.ConfirmPassword {
		return newAuthError(CodePasswordMismatch, "", nil)
	}
	if !strongPassword(req.Password) {
		return newAuthError(CodePasswordWeak, "at least 8 characters with upper and lower case letters and a number", nil)
	}

	metadata := map[string]any{}
	if req.FullName != "" {
		metadata["full_name"] = req.FullName
	}
	if err := auth.SignUp(ctx, strings.TrimSpace(req.Email), req.Password, metadata); err != nil {
		return classifyAuthError(err)
	}
	return nil
}

// ResetPassword asks the provider to send a password reset email.
func (b *Bridge) ResetPassword(ctx context.Context, email string) error {
	auth, err := b.passwordAuthenticator()
	if err != nil {
		return err
	}
	if !validEmail(email) {
		return newAuthError(CodeInvalidEmail, "", nil)
	}
	if err := auth.ResetPassword(ctx, strings.TrimSpace(email)); err != nil {
		return classifyAuthError(err)
	}
	return nil
}

func (b *Bridge) passwordAuthenticator() (identity.PasswordAuthenticator, error) {
	auth, ok := b.provider.(identity.PasswordAuthenticator)
	if !ok {
		return nil, newAuthError(CodeOAuthError, "identity provider does not support password accounts", interrors.ErrUnsupported)
	}
	return auth, nil
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

func strongPassword(password string) bool {
	return len(password) >= minPasswordLength &&
		hasUpper.MatchString(password) &&
		hasLower.MatchString(password) &&
		hasNumber.MatchString(password)
}
