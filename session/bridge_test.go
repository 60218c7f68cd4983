package session_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-client/adapters"
	"github.com/jrsteele09/go-dashboard-client/api"
	"github.com/jrsteele09/go-dashboard-client/credentials"
	"github.com/jrsteele09/go-dashboard-client/identity"
	"github.com/jrsteele09/go-dashboard-client/identity/identityfake"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/internal/fakeapi"
	"github.com/jrsteele09/go-dashboard-client/session"
	"github.com/jrsteele09/go-dashboard-client/storage/memstore"
	"github.com/stretchr/testify/require"
)

const (
	tokenA = "external-a"
	tokenB = "external-b"
)

type fixture struct {
	backend  *fakeapi.Server
	provider *identityfake.Provider
	creds    *credentials.Store
	client   *api.Client
	bridge   *session.Bridge
}

func setup(t *testing.T) *fixture {
	t.Helper()
	backend := fakeapi.New()
	t.Cleanup(backend.Close)
	backend.AddIdentity(tokenA, fakeapi.Identity{ID: "user-a", Email: "a@example.com", Name: "Ann"})
	backend.AddIdentity(tokenB, fakeapi.Identity{ID: "user-b", Email: "b@example.com", Name: "Ben"})

	creds, err := credentials.New(memstore.New())
	require.NoError(t, err)
	client := api.New(backend.URL, creds)
	provider := identityfake.New()

	bridge := session.New(provider, client.Auth, creds)
	t.Cleanup(bridge.Close)

	return &fixture{backend: backend, provider: provider, creds: creds, client: client, bridge: bridge}
}

func sessionFor(token string) *identity.Session {
	return &identity.Session{AccessToken: token, ExpiresAt: time.Now().Add(time.Hour)}
}

func (f *fixture) verifyCalls() int {
	n := 0
	for _, req := range f.backend.Requests() {
		if req.Path == api.RouteAuthVerify {
			n++
		}
	}
	return n
}

func (f *fixture) waitForState(t *testing.T, state session.State) {
	t.Helper()
	require.Eventually(t, func() bool { return f.bridge.State() == state }, 5*time.Second, 5*time.Millisecond)
}

func TestStart(t *testing.T) {
	t.Run("no provider session", func(t *testing.T) {
		f := setup(t)
		f.creds.Save("left-over", "")

		require.NoError(t, f.bridge.Start(context.Background()))
		require.Equal(t, session.Unauthenticated, f.bridge.State())
		require.False(t, f.bridge.Loading())
		require.Nil(t, f.bridge.User())
		require.Nil(t, f.creds.Load())
		require.Zero(t, f.verifyCalls())
	})

	t.Run("existing provider session is verified", func(t *testing.T) {
		f := setup(t)
		f.provider.SetSession(sessionFor(tokenA))

		require.NoError(t, f.bridge.Start(context.Background()))
		require.Equal(t, session.Authenticated, f.bridge.State())
		require.Equal(t, "a@example.com", f.bridge.User().Email)
		require.Equal(t, fakeapi.AccessTokenFor(tokenA), f.creds.Load().AccessToken)
		require.Equal(t, "refresh-"+tokenA, f.creds.Load().RefreshToken)

		// subsequent requests carry the internal credential
		_, err := f.client.User.Profile(context.Background())
		require.NoError(t, err)
		req, ok := f.backend.LastRequest(api.RouteUserProfile)
		require.True(t, ok)
		require.Equal(t, "Bearer "+fakeapi.AccessTokenFor(tokenA), req.Authorization)
	})

	t.Run("rejected verify settles unauthenticated", func(t *testing.T) {
		f := setup(t)
		f.provider.SetSession(sessionFor("unknown-token"))

		require.NoError(t, f.bridge.Start(context.Background()))
		require.Equal(t, session.Unauthenticated, f.bridge.State())
		require.Nil(t, f.bridge.User())
		require.Nil(t, f.creds.Load())
	})

	t.Run("provider failure settles unauthenticated", func(t *testing.T) {
		f := setup(t)
		f.provider.FailSession(errors.New("storage unavailable"))
		f.creds.Save("still-valid", "")

		require.NoError(t, f.bridge.Start(context.Background()))
		require.Equal(t, session.Unauthenticated, f.bridge.State())
		// an unreadable provider is not a sign-out
		require.Equal(t, "still-valid", f.creds.AccessToken())
	})

	t.Run("second start is rejected", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.bridge.Start(context.Background()))
		require.Error(t, f.bridge.Start(context.Background()))
	})
}

func TestEvents(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.bridge.Start(context.Background()))
	require.Equal(t, session.Unauthenticated, f.bridge.State())

	f.provider.Emit(identity.Event{Type: identity.SessionCreated, Session: sessionFor(tokenA)})
	f.waitForState(t, session.Authenticated)
	require.Equal(t, "user-a", f.bridge.User().ID)

	f.provider.Emit(identity.Event{Type: identity.SessionRefreshed, Session: sessionFor(tokenB)})
	require.Eventually(t, func() bool {
		u := f.bridge.User()
		return u != nil && u.ID == "user-b"
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, fakeapi.AccessTokenFor(tokenB), f.creds.AccessToken())

	f.provider.Emit(identity.Event{Type: identity.SignedOut})
	f.waitForState(t, session.Unauthenticated)
	require.Nil(t, f.bridge.User())
	require.Nil(t, f.creds.Load())
}

func TestEvents_SameSessionIsNotReverified(t *testing.T) {
	f := setup(t)
	f.provider.SetSession(sessionFor(tokenA))
	require.NoError(t, f.bridge.Start(context.Background()))
	require.Equal(t, 1, f.verifyCalls())

	f.provider.Emit(identity.Event{Type: identity.SessionCreated, Session: sessionFor(tokenA)})
	require.Never(t, func() bool { return f.verifyCalls() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, session.Authenticated, f.bridge.State())
}

func TestEvents_StaleVerifyIsDiscarded(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.bridge.Start(context.Background()))
	release := f.backend.HoldVerify(tokenA)
	defer release()

	// the first verify hangs while a newer session overtakes it
	f.provider.Emit(identity.Event{Type: identity.SessionCreated, Session: sessionFor(tokenA)})
	require.Eventually(t, func() bool { return f.verifyCalls() == 1 }, 5*time.Second, 5*time.Millisecond)

	f.provider.Emit(identity.Event{Type: identity.SessionRefreshed, Session: sessionFor(tokenB)})
	f.waitForState(t, session.Authenticated)
	require.Equal(t, "user-b", f.bridge.User().ID)

	release()
	require.Eventually(t, func() bool { return f.backend.Issued(tokenA) }, 5*time.Second, 5*time.Millisecond)
	require.Never(t, func() bool {
		u := f.bridge.User()
		return u == nil || u.ID != "user-b"
	}, 200*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, fakeapi.AccessTokenFor(tokenB), f.creds.AccessToken())
}

func TestClose_VerifyInFlightKeepsCredential(t *testing.T) {
	f := setup(t)
	f.provider.SetSession(sessionFor(tokenA))
	require.NoError(t, f.bridge.Start(context.Background()))
	require.Equal(t, session.Authenticated, f.bridge.State())

	release := f.backend.HoldVerify(tokenB)
	defer release()
	f.provider.Emit(identity.Event{Type: identity.SessionRefreshed, Session: sessionFor(tokenB)})
	require.Eventually(t, func() bool { return f.verifyCalls() == 2 }, 5*time.Second, 5*time.Millisecond)

	f.bridge.Close()

	require.Equal(t, session.Authenticated, f.bridge.State())
	require.Equal(t, "user-a", f.bridge.User().ID)
	cred := f.creds.Load()
	require.NotNil(t, cred)
	require.Equal(t, fakeapi.AccessTokenFor(tokenA), cred.AccessToken)
}

func TestSignOut(t *testing.T) {
	t.Run("clears credential and user", func(t *testing.T) {
		f := setup(t)
		f.provider.SetSession(sessionFor(tokenA))
		require.NoError(t, f.bridge.Start(context.Background()))

		require.NoError(t, f.bridge.SignOut(context.Background()))
		require.Equal(t, session.Unauthenticated, f.bridge.State())
		require.Nil(t, f.bridge.User())

		// no bearer header once signed out
		_, err := f.client.User.Profile(context.Background())
		require.Equal(t, 401, api.StatusCode(err))
		req, ok := f.backend.LastRequest(api.RouteUserProfile)
		require.True(t, ok)
		require.Empty(t, req.Authorization)
	})

	t.Run("provider failure still clears", func(t *testing.T) {
		f := setup(t)
		f.provider.SetSession(sessionFor(tokenA))
		require.NoError(t, f.bridge.Start(context.Background()))
		f.provider.FailSignOut(errors.New("provider offline"))

		err := f.bridge.SignOut(context.Background())
		require.ErrorContains(t, err, "provider offline")
		require.Equal(t, session.Unauthenticated, f.bridge.State())
		require.Nil(t, f.bridge.User())
		require.Empty(t, f.creds.AccessToken())
	})

	t.Run("in-flight verify is discarded", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.bridge.Start(context.Background()))
		release := f.backend.HoldVerify(tokenA)

		f.provider.Emit(identity.Event{Type: identity.SessionCreated, Session: sessionFor(tokenA)})
		require.Eventually(t, func() bool { return f.verifyCalls() == 1 }, 5*time.Second, 5*time.Millisecond)

		require.NoError(t, f.bridge.SignOut(context.Background()))
		release()
		require.Eventually(t, func() bool { return f.backend.Issued(tokenA) }, 5*time.Second, 5*time.Millisecond)
		require.Never(t, func() bool { return f.bridge.State() == session.Authenticated }, 200*time.Millisecond, 10*time.Millisecond)
		require.Nil(t, f.creds.Load())
	})
}

func TestRefreshUser(t *testing.T) {
	f := setup(t)

	// no session is a no-op
	require.NoError(t, f.bridge.RefreshUser(context.Background()))
	require.Zero(t, f.verifyCalls())

	f.provider.SetSession(sessionFor(tokenA))
	require.NoError(t, f.bridge.Start(context.Background()))
	require.NoError(t, f.bridge.RefreshUser(context.Background()))
	require.Equal(t, 2, f.verifyCalls())
	require.Equal(t, session.Authenticated, f.bridge.State())

	f.provider.SetSession(sessionFor("revoked"))
	err := f.bridge.RefreshUser(context.Background())
	var verifyErr *session.VerifyError
	require.ErrorAs(t, err, &verifyErr)
	require.Equal(t, 401, api.StatusCode(err))
	require.ErrorIs(t, err, interrors.ErrVerifyRejected)
	require.Equal(t, session.Unauthenticated, f.bridge.State())
}

type verifierFunc func(ctx context.Context, token string) (adapters.VerifyResponse, error)

func (fn verifierFunc) Verify(ctx context.Context, token string) (adapters.VerifyResponse, error) {
	return fn(ctx, token)
}

func TestStart_VerifyWithoutAccessToken(t *testing.T) {
	creds, err := credentials.New(memstore.New())
	require.NoError(t, err)
	creds.Save("old", "")
	provider := identityfake.New()
	provider.SetSession(sessionFor(tokenA))
	bridge := session.New(provider, verifierFunc(func(context.Context, string) (adapters.VerifyResponse, error) {
		return adapters.VerifyResponse{User: &adapters.User{ID: "user-a"}}, nil
	}), creds)
	defer bridge.Close()

	err = bridge.RefreshUser(context.Background())
	var verifyErr *session.VerifyError
	require.ErrorAs(t, err, &verifyErr)
	require.ErrorIs(t, err, interrors.ErrNoAccessToken)
	require.NotErrorIs(t, err, interrors.ErrVerifyRejected)
	require.Equal(t, session.Unauthenticated, bridge.State())
	require.Empty(t, creds.AccessToken())
}

func TestWatch(t *testing.T) {
	f := setup(t)
	updates, stop := f.bridge.Watch()
	defer stop()

	first := <-updates
	require.Equal(t, session.Uninitialized, first.State)

	f.provider.SetSession(sessionFor(tokenA))
	require.NoError(t, f.bridge.Start(context.Background()))

	// slow readers only see the latest snapshot
	latest := <-updates
	require.Equal(t, session.Authenticated, latest.State)
	require.Equal(t, "a@example.com", latest.User.Email)

	stop()
	_, open := <-updates
	require.False(t, open)
}

func TestSignInWithPassword(t *testing.T) {
	f := setup(t)
	f.provider.AddAccount(identityfake.Account{
		Email:       "a@example.com",
		Password:    "Secret123",
		AccessToken: tokenA,
		Confirmed:   true,
	})
	f.provider.AddAccount(identityfake.Account{Email: "new@example.com", Password: "Secret123"})
	require.NoError(t, f.bridge.Start(context.Background()))

	tests := []struct {
		name     string
		email    string
		password string
		signIn   error
		code     session.AuthErrorCode
	}{
		{"malformed email", "not-an-email", "Secret123", nil, session.CodeInvalidEmail},
		{"wrong password", "a@example.com", "wrong", nil, session.CodeInvalidPassword},
		{"unconfirmed", "new@example.com", "Secret123", nil, session.CodeEmailNotConfirmed},
		{"rate limit message", "a@example.com", "Secret123", errors.New("Request rate limit reached"), session.CodeRateLimit},
		{"transport failure", "a@example.com", "Secret123", &url.Error{Op: "Post", URL: "https://id.example.com", Err: errors.New("connection refused")}, session.CodeNetwork},
		{"anything else", "a@example.com", "Secret123", errors.New("boom"), session.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.provider.FailSignIn(tt.signIn)
			defer f.provider.FailSignIn(nil)

			_, err := f.bridge.SignInWithPassword(context.Background(), tt.email, tt.password)
			var authErr *session.AuthError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, tt.code, authErr.Code)
			require.NotEmpty(t, authErr.Message)
		})
	}

	t.Run("success", func(t *testing.T) {
		user, err := f.bridge.SignInWithPassword(context.Background(), "a@example.com", "Secret123")
		require.NoError(t, err)
		require.Equal(t, "user-a", user.ID)
		require.Equal(t, session.Authenticated, f.bridge.State())
		require.Equal(t, fakeapi.AccessTokenFor(tokenA), f.creds.AccessToken())
	})
}

func TestSignUp(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		req  session.SignUpRequest
		code session.AuthErrorCode
	}{
		{"invalid email", session.SignUpRequest{Email: "nope", Password: "Secret123", ConfirmPassword: "Secret123"}, session.CodeInvalidEmail},
		{"mismatch", session.SignUpRequest{Email: "c@example.com", Password: "Secret123", ConfirmPassword: "Secret124"}, session.CodePasswordMismatch},
		{"too short", session.SignUpRequest{Email: "c@example.com", Password: "Sec1", ConfirmPassword: "Sec1"}, session.CodePasswordWeak},
		{"no digit", session.SignUpRequest{Email: "c@example.com", Password: "SecretPass", ConfirmPassword: "SecretPass"}, session.CodePasswordWeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.bridge.SignUp(context.Background(), tt.req)
			var authErr *session.AuthError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, tt.code, authErr.Code)
		})
	}

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.bridge.SignUp(context.Background(), session.SignUpRequest{
			Email: "c@example.com", Password: "Secret123", ConfirmPassword: "Secret123", FullName: "Cat",
		}))
		// new accounts must confirm their email first
		_, err := f.bridge.SignInWithPassword(context.Background(), "c@example.com", "Secret123")
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, session.CodeEmailNotConfirmed, authErr.Code)
	})
}

func TestResetPassword(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.bridge.ResetPassword(context.Background(), "a@example.com"))
	require.Equal(t, []string{"a@example.com"}, f.provider.ResetRequests())

	err := f.bridge.ResetPassword(context.Background(), "")
	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, session.CodeInvalidEmail, authErr.Code)
}

// sessionOnly hides the fake's password support.
type sessionOnly struct {
	identity.Provider
}

func TestPasswordOperationsUnsupported(t *testing.T) {
	creds, err := credentials.New(memstore.New())
	require.NoError(t, err)
	bridge := session.New(sessionOnly{identityfake.New()}, api.New("http://127.0.0.1:0", creds).Auth, creds)
	defer bridge.Close()

	_, err = bridge.SignInWithPassword(context.Background(), "a@example.com", "Secret123")
	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, session.CodeOAuthError, authErr.Code)
	require.ErrorIs(t, err, interrors.ErrUnsupported)
}
