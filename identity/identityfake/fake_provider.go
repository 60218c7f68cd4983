// Package identityfake is an in-memory identity provider for tests and the
// CLI's offline mode.
package identityfake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-dashboard-client/identity"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const sessionLifetime = time.Hour

// Account is a password account known to the fake. AccessToken is what the
// session will carry after sign-in; empty means a random token.
type Account struct {
	Email       string
	Password    string
	User        identity.User
	AccessToken string
	Confirmed   bool
}

type Provider struct {
	identity.Hub

	mu         sync.Mutex
	session    *identity.Session
	sessionErr error
	signOutErr error
	signInErr  error
	accounts   map[string]Account
	resets     []string
}

var (
	_ identity.Provider              = (*Provider)(nil)
	_ identity.PasswordAuthenticator = (*Provider)(nil)
)

func New() *Provider {
	return &Provider{accounts: make(map[string]Account)}
}

// SetSession replaces the current session without publishing an event, as if
// it had been restored from the provider's own storage.
func (p *Provider) SetSession(session *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = session
}

// Emit updates the current session from evt and publishes it.
func (p *Provider) Emit(evt identity.Event) {
	p.mu.Lock()
	if evt.Type == identity.SignedOut {
		p.session = nil
	} else {
		p.session = evt.Session
	}
	p.mu.Unlock()
	p.Publish(evt)
}

func (p *Provider) FailSession(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionErr = err
}

func (p *Provider) FailSignOut(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutErr = err
}

func (p *Provider) FailSignIn(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signInErr = err
}

func (p *Provider) AddAccount(account Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[strings.ToLower(account.Email)] = account
}

// ResetRequests lists the emails password resets were requested for.
func (p *Provider) ResetRequests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resets...)
}

func (p *Provider) Session(ctx context.Context) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	if p.session == nil {
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if p.signOutErr != nil {
		err := p.signOutErr
		p.mu.Unlock()
		return err
	}
	p.session = nil
	p.mu.Unlock()

	p.Publish(identity.Event{Type: identity.SignedOut})
	return nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	if p.signInErr != nil {
		err := p.signInErr
		p.mu.Unlock()
		return nil, err
	}
	account, ok := p.accounts[strings.ToLower(email)]
	if !ok || account.Password != password {
		p.mu.Unlock()
		return nil, identity.ErrInvalidCredentials
	}
	if !account.Confirmed {
		p.mu.Unlock()
		return nil, identity.ErrEmailNotConfirmed
	}

	token := account.AccessToken
	if token == "" {
		token = uuid.NewString()
	}
	session := &identity.Session{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    NowTimeFunc().Add(sessionLifetime),
		User:         account.User,
	}
	p.session = session
	p.mu.Unlock()

	p.Publish(identity.Event{Type: identity.SessionCreated, Session: session})
	s := *session
	return &s, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	if !strings.Contains(email, "@") {
		return identity.ErrInvalidEmail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[strings.ToLower(email)] = Account{
		Email:    email,
		Password: password,
		User:     identity.User{ID: uuid.NewString(), Email: email},
	}
	return nil
}

func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	if !strings.Contains(email, "@") {
		return identity.ErrInvalidEmail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, email)
	return nil
}
