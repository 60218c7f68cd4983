// Package oidcprovider implements identity.Provider over an OpenID Connect
// issuer. Sign-in uses the resource owner password grant, sessions are kept
// fresh through the refresh_token grant and persisted so a later process can
// pick them up.
package oidcprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-dashboard-client/api"
	"github.com/jrsteele09/go-dashboard-client/identity"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// SessionStorageKey is where the provider session is persisted.
const SessionStorageKey = "dashboard.identity.session"

const minRefreshInterval = 30 * time.Second

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Provider struct {
	identity.Hub

	oidcProvider *oidc.Provider
	oauthConfig  *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	accounts     *api.Client

	store       storage.Store
	httpClient  *http.Client
	leeway      time.Duration
	signUpPath  string
	recoverPath string

	revocationURL string

	mu      sync.Mutex
	session *identity.Session
	loaded  bool

	// refreshMu serialises refreshes; refresh tokens rotate, so a second
	// request with the same token would be rejected
	refreshMu sync.Mutex

	stop   context.CancelFunc
	stopMu sync.Mutex
	wg     sync.WaitGroup
}

var (
	_ identity.Provider              = (*Provider)(nil)
	_ identity.PasswordAuthenticator = (*Provider)(nil)
)

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithStore persists the session under SessionStorageKey.
func WithStore(store storage.Store) Option {
	return func(p *Provider) {
		p.store = store
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithRefreshLeeway sets how long before expiry a session is refreshed.
func WithRefreshLeeway(leeway time.Duration) Option {
	return func(p *Provider) {
		p.leeway = leeway
	}
}

// WithAccountPaths overrides the sign-up and password recovery paths, relative
// to the issuer. They default to /signup and /recover.
func WithAccountPaths(signUp, recover string) Option {
	return func(p *Provider) {
		p.signUpPath = signUp
		p.recoverPath = recover
	}
}

// New discovers issuer and returns a provider for clientID.
func New(ctx context.Context, issuer, clientID, clientSecret string, scopes []string, options ...Option) (*Provider, error) {
	p := &Provider{
		leeway:      time.Minute,
		signUpPath:  "/signup",
		recoverPath: "/recover",
	}
	for _, opt := range options {
		opt(p)
	}

	ctx = p.clientContext(ctx)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider New] failed to create OIDC provider")
	}
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		log.Warn().Err(err).Str("issuer", issuer).Msg("Unable to read discovery claims")
	}

	var accountOpts []api.Option
	if p.httpClient != nil {
		accountOpts = append(accountOpts, api.WithHTTPClient(p.httpClient))
	}

	p.oidcProvider = provider
	p.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}
	p.verifier = provider.Verifier(&oidc.Config{
		ClientID: clientID,
		Now:      NowTimeFunc,
	})
	p.revocationURL = discovery.RevocationEndpoint
	p.accounts = api.New(issuer, nil, accountOpts...)
	return p, nil
}

// Session returns the current session, refreshing it first when it is within
// the refresh leeway of expiring. A refresh the issuer rejects signs the user
// out.
func (p *Provider) Session(ctx context.Context) (*identity.Session, error) {
	current := p.current()
	if current == nil {
		return nil, nil
	}
	if !current.Expired(NowTimeFunc(), p.leeway) {
		return current, nil
	}
	if current.RefreshToken == "" {
		p.signOutLocally()
		return nil, nil
	}

	refreshed, err := p.refreshIfStale(ctx, current)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			log.Warn().Err(err).Msg("Identity session refresh rejected, signing out")
			p.signOutLocally()
			return nil, nil
		}
		return nil, errors.Wrap(err, "[oidcprovider Session]")
	}
	return refreshed, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	tok, err := p.oauthConfig.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	session, err := p.sessionFromToken(ctx, tok, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider SignInWithPassword]")
	}
	p.replace(session)
	p.Publish(identity.Event{Type: identity.SessionCreated, Session: copySession(session)})
	return copySession(session), nil
}

// SignOut revokes the refresh token when the issuer supports revocation. The
// local session is cleared even when revocation fails.
func (p *Provider) SignOut(ctx context.Context) error {
	current := p.current()
	p.signOutLocally()

	if current == nil || current.RefreshToken == "" || p.revocationURL == "" {
		return nil
	}
	form := url.Values{
		"token":           {current.RefreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {p.oauthConfig.ClientID},
	}
	_, err := p.accounts.Request(ctx, p.revocationURL, api.RequestOptions{
		Method:  http.MethodPost,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    form.Encode(),
	})
	if err != nil {
		return errors.Wrap(err, "[oidcprovider SignOut] revoke refresh token")
	}
	return nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := p.accounts.Request(ctx, p.signUpPath, api.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"email": email, "password": password, "data": metadata},
	})
	return classifyAccountError(err)
}

func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	_, err := p.accounts.Request(ctx, p.recoverPath, api.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email},
	})
	return classifyAccountError(err)
}

// StartAutoRefresh refreshes the session shortly before it expires, emitting
// SessionRefreshed, until ctx is done or Close is called.
func (p *Provider) StartAutoRefresh(ctx context.Context) {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()
	if p.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.refreshLoop(ctx)
	}()
}

// Close stops auto refresh and ends every subscription.
func (p *Provider) Close() {
	p.stopMu.Lock()
	if p.stop != nil {
		p.stop()
	}
	p.stopMu.Unlock()
	p.wg.Wait()
	p.Hub.Close()
}

func (p *Provider) refreshLoop(ctx context.Context) {
	first := true
	for {
		wait := minRefreshInterval
		if current := p.current(); current != nil && !current.ExpiresAt.IsZero() {
			wait = current.ExpiresAt.Add(-p.leeway).Sub(NowTimeFunc())
			if wait < 0 {
				wait = 0
			}
			if !first && wait < minRefreshInterval {
				wait = minRefreshInterval
			}
		}
		first = false

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := p.Session(ctx); err != nil {
			log.Err(err).Msg("Scheduled identity session refresh failed")
		}
	}
}

// refreshIfStale refreshes seen unless another caller already replaced it
// while this one waited for the refresh lock.
func (p *Provider) refreshIfStale(ctx context.Context, seen *identity.Session) (*identity.Session, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	latest := p.current()
	if latest == nil || latest.RefreshToken != seen.RefreshToken {
		return latest, nil
	}
	return p.refresh(ctx, latest)
}

func (p *Provider) refresh(ctx context.Context, current *identity.Session) (*identity.Session, error) {
	expired := &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       NowTimeFunc().Add(-time.Second),
	}
	tok, err := p.oauthConfig.TokenSource(p.clientContext(ctx), expired).Token()
	if err != nil {
		return nil, err
	}
	session, err := p.sessionFromToken(ctx, tok, &current.User)
	if err != nil {
		return nil, err
	}
	p.replace(session)
	p.Publish(identity.Event{Type: identity.SessionRefreshed, Session: copySession(session)})
	return copySession(session), nil
}

// sessionFromToken reads the user from the verified ID token, falling back to
// the access token's claims and then to previous.
func (p *Provider) sessionFromToken(ctx context.Context, tok *oauth2.Token, previous *identity.User) (*identity.Session, error) {
	session := &identity.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if previous != nil {
		session.User = *previous
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "ID token verification failed")
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "failed to extract claims")
		}
	} else if mapClaims, ok := unverifiedClaims(tok.AccessToken); ok {
		claims.Sub, _ = mapClaims["sub"].(string)
		claims.Email, _ = mapClaims["email"].(string)
		if session.ExpiresAt.IsZero() {
			if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
				session.ExpiresAt = exp.Time
			}
		}
	}
	if claims.Sub != "" {
		session.User = identity.User{ID: claims.Sub, Email: claims.Email}
	}
	return session, nil
}

func unverifiedClaims(token string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.httpClient)
}

func (p *Provider) current() *identity.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.session = p.loadLocked()
		p.loaded = true
	}
	return copySession(p.session)
}

func (p *Provider) replace(session *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = copySession(session)
	p.loaded = true
	p.persistLocked()
}

func (p *Provider) signOutLocally() {
	p.mu.Lock()
	had := p.session != nil
	p.session = nil
	p.loaded = true
	p.persistLocked()
	p.mu.Unlock()

	if had {
		p.Publish(identity.Event{Type: identity.SignedOut})
	}
}

func (p *Provider) loadLocked() *identity.Session {
	if p.store == nil {
		return nil
	}
	data, err := p.store.Get(SessionStorageKey)
	if err != nil {
		if !interrors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("Unable to read stored identity session")
		}
		return nil
	}
	var session identity.Session
	if err := json.Unmarshal(data, &session); err != nil || session.AccessToken == "" {
		log.Warn().Msg("Discarding unreadable stored identity session")
		return nil
	}
	return &session
}

func (p *Provider) persistLocked() {
	if p.store == nil {
		return
	}
	var err error
	if p.session == nil {
		err = p.store.Remove(SessionStorageKey)
	} else {
		var data []byte
		if data, err = json.Marshal(p.session); err == nil {
			err = p.store.Set(SessionStorageKey, data)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("Unable to persist identity session")
	}
}

func copySession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// classifyTokenError maps token endpoint failures onto the identity sentinels.
func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return errors.Wrap(err, "[oidcprovider] token request failed")
	}
	desc := retrieveErr.ErrorDescription
	if desc == "" {
		desc = retrieveErr.ErrorCode
	}
	switch {
	case retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(identity.ErrRateLimited, desc)
	case strings.Contains(strings.ToLower(desc), "not confirmed"):
		return errors.Wrap(identity.ErrEmailNotConfirmed, desc)
	case retrieveErr.ErrorCode == "invalid_grant":
		return errors.Wrap(identity.ErrInvalidCredentials, desc)
	}
	return errors.Wrap(err, "[oidcprovider] token request failed")
}

func classifyAccountError(err error) error {
	if err == nil {
		return nil
	}
	msg := api.Message(err)
	switch status := api.StatusCode(err); {
	case status == http.StatusTooManyRequests:
		return errors.Wrap(identity.ErrRateLimited, msg)
	case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "email"):
		return errors.Wrap(identity.ErrInvalidEmail, msg)
	case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "password"):
		return errors.Wrap(identity.ErrWeakPassword, msg)
	}
	return err
}
