package main

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/jrsteele09/go-dashboard-client/api"
	"github.com/jrsteele09/go-dashboard-client/calcsync"
	"github.com/jrsteele09/go-dashboard-client/credentials"
	"github.com/jrsteele09/go-dashboard-client/identity/oidcprovider"
	"github.com/jrsteele09/go-dashboard-client/internal/config"
	"github.com/jrsteele09/go-dashboard-client/session"
	"github.com/jrsteele09/go-dashboard-client/storage"
	"github.com/jrsteele09/go-dashboard-client/storage/filestore"
	"github.com/jrsteele09/go-dashboard-client/storage/memstore"
	"github.com/jrsteele09/go-dashboard-client/storage/sqlitestore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sqliteFile = "dashboard.db"

// app wires the client library for one profile.
type app struct {
	cfg        config.Config
	store      storage.Store
	creds      *credentials.Store
	httpClient *http.Client
	client     *api.Client
	engine     *calcsync.Engine

	provider *oidcprovider.Provider
	bridge   *session.Bridge
	closers  []func() error
}

func newApp(cfg config.Config) (*app, error) {
	a := &app{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.GetHTTPTimeout()},
	}

	store, err := a.openStorage()
	if err != nil {
		return nil, err
	}
	a.store = store

	key, err := cfg.GetCredentialKey()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.creds, err = credentials.New(store, credentials.WithSealKey(key))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.client = api.New(cfg.GetAPIBaseURL(), a.creds,
		api.WithHTTPClient(a.httpClient),
		api.WithStrictDecoding(cfg.GetStrictDecoding()),
	)
	a.engine = calcsync.New(a.client.Emissions, store, calcsync.WithCapacity(cfg.GetHistoryCapacity()))
	return a, nil
}

func (a *app) openStorage() (storage.Store, error) {
	dir := a.cfg.GetProfileDir()
	switch a.cfg.GetStorageBackend() {
	case config.StorageMemory:
		log.Warn().Msg("Memory storage selected, nothing will outlive this process")
		return memstore.New(), nil
	case config.StorageSQLite:
		// filestore creates the profile directory the database lives in
		if _, err := filestore.New(dir); err != nil {
			return nil, err
		}
		s, err := sqlitestore.Open(filepath.Join(dir, sqliteFile))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return filestore.New(dir)
	}
}

// session starts the session bridge over the configured OIDC provider. It is
// only built for commands that need the identity provider.
func (a *app) session(ctx context.Context) (*session.Bridge, error) {
	if a.bridge != nil {
		return a.bridge, nil
	}
	issuer := a.cfg.GetOIDCIssuer()
	if issuer == "" {
		return nil, errors.New("no identity provider configured, set DASHBOARD_OIDC_ISSUER")
	}

	provider, err := oidcprovider.New(ctx, issuer,
		a.cfg.GetOIDCClientID(),
		a.cfg.GetOIDCClientSecret(),
		a.cfg.GetOIDCScopes(),
		oidcprovider.WithStore(a.store),
		oidcprovider.WithHTTPClient(a.httpClient),
		oidcprovider.WithRefreshLeeway(a.cfg.GetRefreshLeeway()),
	)
	if err != nil {
		return nil, err
	}
	bridge := session.New(provider, a.client.Auth, a.creds)
	if err := bridge.Start(ctx); err != nil {
		provider.Close()
		return nil, err
	}

	a.provider, a.bridge = provider, bridge
	a.closers = append(a.closers, func() error {
		bridge.Close()
		provider.Close()
		return nil
	})
	return bridge, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Err(err).Msg("Error closing")
		}
	}
	a.closers = nil
}
