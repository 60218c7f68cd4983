package config

import "time"

type IdentityConfig interface {
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCScopes() []string
	GetRefreshLeeway() time.Duration
}

func (v *Values) GetOIDCIssuer() string {
	return v.OIDCIssuer
}

func (v *Values) GetOIDCClientID() string {
	return v.OIDCClientID
}

func (v *Values) GetOIDCClientSecret() string {
	return v.OIDCClientSecret
}

func (v *Values) GetOIDCScopes() []string {
	return v.OIDCScopes
}

// GetRefreshLeeway is how long before expiry the identity session is refreshed.
func (v *Values) GetRefreshLeeway() time.Duration {
	return v.RefreshLeeway
}
