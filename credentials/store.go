package credentials

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/nacl/secretbox"
)

// StorageKey is the fixed key the credential is persisted under.
const StorageKey = "dashboard.auth.credential"

const nonceLength = 24

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Store persists the internal credential. Storage failures never reach the
// caller: they are logged and the store carries on with its in-memory copy for
// the rest of the process lifetime.
type Store struct {
	storage storage.Store
	sealKey *[32]byte

	mu      sync.RWMutex
	current *Credential
	memOnly bool // set once storage has failed; memory is then authoritative
}

// Option configures a Store.
type Option func(*Store) error

// WithSealKey seals the persisted credential with NaCl secretbox under key,
// which must be 32 bytes.
func WithSealKey(key []byte) Option {
	return func(s *Store) error {
		if len(key) == 0 {
			return nil
		}
		if len(key) != 32 {
			return interrors.ErrSealKeyLength
		}
		s.sealKey = new([32]byte)
		copy(s.sealKey[:], key)
		return nil
	}
}

// New creates a credential store over the given durable storage.
func New(store storage.Store, options ...Option) (*Store, error) {
	s := &Store{storage: store}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, interrors.Wrapf(err, "[credentials New]")
		}
	}
	return s, nil
}

// Load returns the last persisted credential, or nil when there is none.
func (s *Store) Load() *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memOnly || s.storage == nil {
		return s.copyCurrent()
	}

	data, err := s.storage.Get(StorageKey)
	if interrors.Is(err, storage.ErrNotFound) {
		s.current = nil
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("Credential storage unavailable, continuing in memory")
		s.memOnly = true
		return s.copyCurrent()
	}

	cred, err := s.decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable stored credential")
		s.current = nil
		return nil
	}
	s.current = cred
	return s.copyCurrent()
}

// Save replaces the credential with the given token pair, stamped with the
// current time.
func (s *Store) Save(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     NowTimeFunc().UTC(),
	}
	if s.memOnly || s.storage == nil {
		return
	}

	data, err := s.encode(s.current)
	if err == nil {
		err = s.storage.Set(StorageKey, data)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to persist credential, continuing in memory")
		s.memOnly = true
	}
}

// Clear forgets the credential.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if s.memOnly || s.storage == nil {
		return
	}
	if err := s.storage.Remove(StorageKey); err != nil {
		log.Warn().Err(err).Msg("Failed to remove stored credential, continuing in memory")
		s.memOnly = true
	}
}

// AccessToken returns the current access token, or "" when signed out.
func (s *Store) AccessToken() string {
	cred := s.Load()
	if cred == nil {
		return ""
	}
	return cred.AccessToken
}

func (s *Store) copyCurrent() *Credential {
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

func (s *Store) encode(cred *Credential) ([]byte, error) {
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, err
	}
	if s.sealKey == nil {
		return data, nil
	}
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], data, &nonce, s.sealKey), nil
}

func (s *Store) decode(data []byte) (*Credential, error) {
	if s.sealKey != nil {
		if len(data) < nonceLength {
			return nil, interrors.ErrCorruptPayload
		}
		var nonce [nonceLength]byte
		copy(nonce[:], data[:nonceLength])
		opened, ok := secretbox.Open(nil, data[nonceLength:], &nonce, s.sealKey)
		if !ok {
			return nil, interrors.ErrCorruptPayload
		}
		data = opened
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, interrors.Wrapf(interrors.ErrCorruptPayload, "%v", err)
	}
	if cred.AccessToken == "" {
		return nil, interrors.ErrCorruptPayload
	}
	return &cred, nil
}
