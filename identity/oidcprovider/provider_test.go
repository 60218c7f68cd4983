package oidcprovider_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-client/identity"
	"github.com/jrsteele09/go-dashboard-client/identity/oidcprovider"
	"github.com/jrsteele09/go-dashboard-client/internal/fakeidp"
	"github.com/jrsteele09/go-dashboard-client/storage"
	"github.com/jrsteele09/go-dashboard-client/storage/memstore"
	"github.com/stretchr/testify/require"
)

const (
	clientID = "dashboard-cli"
	email    = "jane@example.com"
	password = "correct horse"
)

func setupIssuer(t *testing.T) *fakeidp.Issuer {
	t.Helper()
	iss, err := fakeidp.New(clientID)
	require.NoError(t, err)
	t.Cleanup(iss.Close)
	return iss
}

func newProvider(t *testing.T, iss *fakeidp.Issuer, store storage.Store, opts ...oidcprovider.Option) *oidcprovider.Provider {
	t.Helper()
	opts = append([]oidcprovider.Option{oidcprovider.WithStore(store)}, opts...)
	p, err := oidcprovider.New(context.Background(), iss.URL, clientID, "", nil, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func nextEvent(t *testing.T, events <-chan identity.Event) identity.Event {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for identity event")
		return identity.Event{}
	}
}

func TestNew_DiscoveryFailure(t *testing.T) {
	iss := setupIssuer(t)
	url := iss.URL
	iss.Close()

	_, err := oidcprovider.New(context.Background(), url, clientID, "", nil)
	require.Error(t, err)
}

func TestSignInWithPassword(t *testing.T) {
	iss := setupIssuer(t)
	sub := iss.AddUser(email, password, true)
	iss.AddUser("pending@example.com", password, false)

	store := memstore.New()
	p := newProvider(t, iss, store)
	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	t.Run("wrong password", func(t *testing.T) {
		_, err := p.SignInWithPassword(context.Background(), email, "nope")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	})

	t.Run("unconfirmed email", func(t *testing.T) {
		_, err := p.SignInWithPassword(context.Background(), "pending@example.com", password)
		require.ErrorIs(t, err, identity.ErrEmailNotConfirmed)
	})

	t.Run("rate limited", func(t *testing.T) {
		iss.SetRateLimited(true)
		defer iss.SetRateLimited(false)
		_, err := p.SignInWithPassword(context.Background(), email, password)
		require.ErrorIs(t, err, identity.ErrRateLimited)
	})

	t.Run("success", func(t *testing.T) {
		session, err := p.SignInWithPassword(context.Background(), email, password)
		require.NoError(t, err)
		require.NotEmpty(t, session.AccessToken)
		require.NotEmpty(t, session.RefreshToken)
		require.Equal(t, identity.User{ID: sub, Email: email}, session.User)
		require.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

		evt := nextEvent(t, events)
		require.Equal(t, identity.SessionCreated, evt.Type)
		require.Equal(t, session.AccessToken, evt.Session.AccessToken)

		data, err := store.Get(oidcprovider.SessionStorageKey)
		require.NoError(t, err)
		var persisted identity.Session
		require.NoError(t, json.Unmarshal(data, &persisted))
		require.Equal(t, session.AccessToken, persisted.AccessToken)
	})
}

func TestSession_RestoredByNewProvider(t *testing.T) {
	iss := setupIssuer(t)
	iss.AddUser(email, password, true)
	store := memstore.New()

	first := newProvider(t, iss, store)
	signedIn, err := first.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)

	second := newProvider(t, iss, store)
	restored, err := second.Session(context.Background())
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, signedIn.AccessToken, restored.AccessToken)
	require.Equal(t, 0, iss.Grants("refresh_token"))
}

func TestSession_NoSession(t *testing.T) {
	iss := setupIssuer(t)
	p := newProvider(t, iss, memstore.New())

	session, err := p.Session(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestSession_RefreshesNearExpiry(t *testing.T) {
	iss := setupIssuer(t)
	iss.AddUser(email, password, true)
	// every token is inside the one minute leeway as soon as it is issued
	iss.SetTokenLifetime(30 * time.Second)

	p := newProvider(t, iss, memstore.New())
	original, err := p.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	refreshed, err := p.Session(context.Background())
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	require.NotEqual(t, original.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, original.User, refreshed.User)
	require.Equal(t, 1, iss.Grants("refresh_token"))

	evt := nextEvent(t, events)
	require.Equal(t, identity.SessionRefreshed, evt.Type)
	require.Equal(t, refreshed.AccessToken, evt.Session.AccessToken)
}

// shiftedClock points the provider and the issuer at the same adjustable clock.
func shiftedClock(t *testing.T) func(time.Duration) {
	t.Helper()
	base := time.Now()
	var offset atomic.Int64
	now := func() time.Time { return base.Add(time.Duration(offset.Load())) }

	prevProvider, prevIssuer := oidcprovider.NowTimeFunc, fakeidp.NowTimeFunc
	oidcprovider.NowTimeFunc, fakeidp.NowTimeFunc = now, now
	t.Cleanup(func() {
		oidcprovider.NowTimeFunc, fakeidp.NowTimeFunc = prevProvider, prevIssuer
	})
	return func(d time.Duration) { offset.Add(int64(d)) }
}

func TestSession_ConcurrentCallersShareOneRefresh(t *testing.T) {
	advance := shiftedClock(t)
	iss := setupIssuer(t)
	iss.AddUser(email, password, true)

	p := newProvider(t, iss, memstore.New())
	_, err := p.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	const rounds = 5
	for round := 0; round < rounds; round++ {
		// thirty seconds before expiry, well inside the one minute leeway
		advance(time.Hour - 30*time.Second)

		var wg sync.WaitGroup
		start := make(chan struct{})
		sessions := make([]*identity.Session, 2)
		errs := make([]error, 2)
		for i := range sessions {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				sessions[i], errs[i] = p.Session(context.Background())
			}(i)
		}
		close(start)
		wg.Wait()

		for i := range sessions {
			require.NoError(t, errs[i])
			require.NotNil(t, sessions[i], "round %d caller %d was signed out", round, i)
		}
	}
	require.GreaterOrEqual(t, iss.Grants("refresh_token"), rounds)

	for {
		select {
		case evt := <-events:
			require.Equal(t, identity.SessionRefreshed, evt.Type)
		default:
			return
		}
	}
}

func TestSession_RejectedRefreshSignsOut(t *testing.T) {
	iss := setupIssuer(t)
	iss.AddUser(email, password, true)
	iss.SetTokenLifetime(30 * time.Second)

	store := memstore.New()
	p := newProvider(t, iss, store)
	_, err := p.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()
	iss.RevokeAllRefreshTokens()

	session, err := p.Session(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)
	require.Equal(t, identity.SignedOut, nextEvent(t, events).Type)

	_, err = store.Get(oidcprovider.SessionStorageKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignOut(t *testing.T) {
	iss := setupIssuer(t)
	iss.AddUser(email, password, true)
	p := newProvider(t, iss, memstore.New())

	session, err := p.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	require.NoError(t, p.SignOut(context.Background()))
	require.Equal(t, identity.SignedOut, nextEvent(t, events).Type)
	require.Equal(t, []string{session.RefreshToken}, iss.Revoked())

	current, err := p.Session(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)

	// signing out again is a no-op
	require.NoError(t, p.SignOut(context.Background()))
	require.Len(t, iss.Revoked(), 1)
}

func TestSignUpAndResetPassword(t *testing.T) {
	iss := setupIssuer(t)
	p := newProvider(t, iss, memstore.New())

	t.Run("sign up", func(t *testing.T) {
		require.NoError(t, p.SignUp(context.Background(), "new@example.com", "Correct-Horse-9", map[string]any{"name": "New"}))
		require.Equal(t, []string{"new@example.com"}, iss.SignUps())
	})

	t.Run("sign up weak password", func(t *testing.T) {
		err := p.SignUp(context.Background(), "weak@example.com", password, nil)
		require.ErrorIs(t, err, identity.ErrWeakPassword)
		require.Len(t, iss.SignUps(), 1)
	})

	t.Run("sign up invalid email", func(t *testing.T) {
		err := p.SignUp(context.Background(), "not-an-email", "Correct-Horse-9", nil)
		require.ErrorIs(t, err, identity.ErrInvalidEmail)
	})

	t.Run("reset password", func(t *testing.T) {
		require.NoError(t, p.ResetPassword(context.Background(), email))
		require.Equal(t, []string{email}, iss.Recoveries())
	})

	t.Run("reset password rate limited", func(t *testing.T) {
		iss.SetRateLimited(true)
		defer iss.SetRateLimited(false)
		err := p.ResetPassword(context.Background(), email)
		require.ErrorIs(t, err, identity.ErrRateLimited)
	})
}

func TestStartAutoRefresh(t *testing.T) {
	iss := setupIssuer(t)
	iss.AddUser(email, password, true)
	iss.SetTokenLifetime(30 * time.Second)

	p := newProvider(t, iss, memstore.New())
	_, err := p.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	p.StartAutoRefresh(context.Background())
	require.Equal(t, identity.SessionRefreshed, nextEvent(t, events).Type)
	require.Equal(t, 1, iss.Grants("refresh_token"))
}
