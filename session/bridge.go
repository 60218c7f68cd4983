// Package session bridges the identity provider's short-lived session and the
// backend's own credential. Every provider session is exchanged through the
// verify endpoint; the resulting credential is stored and the user published
// to watchers.
package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-dashboard-client/adapters"
	"github.com/jrsteele09/go-dashboard-client/identity"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Snapshot is the bridge state published to watchers.
type Snapshot struct {
	State State
	User  *adapters.User
}

// Verifier trades an external session token for the internal credential.
// *api.AuthEndpoints satisfies it.
type Verifier interface {
	Verify(ctx context.Context, externalToken string) (adapters.VerifyResponse, error)
}

// CredentialStore receives the internal credential. *credentials.Store
// satisfies it.
type CredentialStore interface {
	Save(accessToken, refreshToken string)
	Clear()
}

type Bridge struct {
	provider identity.Provider
	verifier Verifier
	creds    CredentialStore

	mu         sync.Mutex
	state      State
	user       *adapters.User
	generation uint64
	token      string // external token of the latest generation
	watchers   map[int]chan Snapshot
	nextWatch  int

	started     bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

func New(provider identity.Provider, verifier Verifier, creds CredentialStore) *Bridge {
	return &Bridge{
		provider: provider,
		verifier: verifier,
		creds:    creds,
		watchers: make(map[int]chan Snapshot),
	}
}

// Start resolves the provider's current session and then follows its events
// until ctx is done or Close is called. A failed verify is not returned: the
// bridge settles Unauthenticated instead.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.Wrap(interrors.ErrInvalidRequest, "[session Start] bridge already started")
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.state = Loading
	b.publishLocked()
	b.mu.Unlock()

	// subscribe before reading the session so no change is missed in between
	events, unsubscribe := b.provider.Subscribe()
	b.mu.Lock()
	b.unsubscribe = unsubscribe
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.listen(ctx, events)
	}()

	current, err := b.provider.Session(ctx)
	if err != nil {
		log.Err(err).Msg("Unable to read identity session")
		b.settleSignedOut(false)
		return nil
	}
	if current == nil {
		b.settleSignedOut(true)
		return nil
	}
	_ = b.verify(ctx, current.AccessToken, false)
	return nil
}

// Close stops following provider events and ends every watch.
func (b *Bridge) Close() {
	b.mu.Lock()
	cancel, unsubscribe := b.cancel, b.unsubscribe
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.watchers {
		delete(b.watchers, id)
		close(ch)
	}
}

// SignOut signs out of the provider, then clears the credential and the user
// whatever the provider answered. The provider's error is still returned.
func (b *Bridge) SignOut(ctx context.Context) error {
	err := b.provider.SignOut(ctx)
	b.settleSignedOut(true)
	if err != nil {
		return errors.Wrap(err, "[session SignOut] provider sign-out failed")
	}
	return nil
}

// RefreshUser re-verifies the current provider session. It does nothing when
// there is no session.
func (b *Bridge) RefreshUser(ctx context.Context) error {
	current, err := b.provider.Session(ctx)
	if err != nil {
		return errors.Wrap(err, "[session RefreshUser]")
	}
	if current == nil {
		return nil
	}
	return b.verify(ctx, current.AccessToken, true)
}

// Watch returns a channel that receives the current snapshot and then every
// change. Slow readers only see the latest snapshot.
func (b *Bridge) Watch() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- b.snapshotLocked()
	id := b.nextWatch
	b.nextWatch++
	b.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if w, ok := b.watchers[id]; ok {
				delete(b.watchers, id)
				close(w)
			}
		})
	}
}

func (b *Bridge) User() *adapters.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyUser(b.user)
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) Loading() bool {
	return b.State() == Loading
}

func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bridge) listen(ctx context.Context, events <-chan identity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.handle(ctx, evt)
		}
	}
}

// handle applies one provider event. Verifies run concurrently; the generation
// ticket decides which response wins.
func (b *Bridge) handle(ctx context.Context, evt identity.Event) {
	log.Debug().Str("event", evt.Type.String()).Msg("Identity event")
	if evt.Session == nil {
		b.settleSignedOut(true)
		return
	}
	token := evt.Session.AccessToken
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = b.verify(ctx, token, false)
	}()
}

// verify exchanges token for the internal credential. Unless force is set, a
// token that is already verified or in flight is not sent again. Only the
// response for the latest generation is applied.
func (b *Bridge) verify(ctx context.Context, token string, force bool) error {
	b.mu.Lock()
	if !force && token == b.token && b.state != Unauthenticated {
		b.mu.Unlock()
		return nil
	}
	b.generation++
	ticket := b.generation
	prevState, prevToken := b.state, b.token
	b.token = token
	b.state = Loading
	b.publishLocked()
	b.mu.Unlock()

	resp, err := b.verifier.Verify(ctx, token)
	switch {
	case err != nil:
	case resp.AccessToken == "":
		err = interrors.ErrNoAccessToken
	case resp.User == nil:
		err = errors.Wrap(interrors.ErrMalformedPayload, "verify response carried no user")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ticket != b.generation {
		log.Debug().Uint64("ticket", ticket).Uint64("current", b.generation).Msg("Discarding stale verify response")
		return nil
	}
	if err != nil && ctx.Err() != nil {
		// abandoned, not rejected: the credential and user stay as they were
		log.Debug().Err(err).Msg("Verify abandoned")
		b.state, b.token = prevState, prevToken
		b.publishLocked()
		return errors.Wrap(ctx.Err(), "[session verify] abandoned")
	}
	if err != nil {
		verifyErr := &VerifyError{Err: err}
		log.Err(verifyErr).Msg("Identity verification failed, continuing signed out")
		b.creds.Clear()
		b.user = nil
		b.token = ""
		b.state = Unauthenticated
		b.publishLocked()
		return verifyErr
	}

	b.creds.Save(resp.AccessToken, resp.RefreshToken)
	b.user = copyUser(resp.User)
	b.state = Authenticated
	b.publishLocked()
	return nil
}

// settleSignedOut invalidates any verify in flight and settles Unauthenticated.
func (b *Bridge) settleSignedOut(clearCredential bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.token = ""
	if clearCredential {
		b.creds.Clear()
	}
	changed := b.state != Unauthenticated || b.user != nil
	b.user = nil
	b.state = Unauthenticated
	if changed {
		b.publishLocked()
	}
}

func (b *Bridge) snapshotLocked() Snapshot {
	return Snapshot{State: b.state, User: copyUser(b.user)}
}

func (b *Bridge) publishLocked() {
	snap := b.snapshotLocked()
	for _, ch := range b.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func copyUser(u *adapters.User) *adapters.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
