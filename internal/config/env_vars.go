package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

const (
	defaultAppName      = "Dashboard"
	defaultEnv          = "DEV"
	defaultAPIBaseURL   = "http://localhost:8000"
	defaultProfileDir   = ".dashboard"
	defaultLogLevel     = "info"
	defaultSyncSchedule = "@every 5m"
	defaultHistoryCap   = 50
)

// Values holds every setting. Field tags cover both the YAML overlay file and
// the environment; the environment wins when both are set.
type Values struct {
	AppName        string         `yaml:"app_name" env:"DASHBOARD_APP_NAME"`
	Env            string         `yaml:"env" env:"DASHBOARD_ENV"`
	APIBaseURL     string         `yaml:"api_base_url" env:"DASHBOARD_API_BASE_URL"`
	HTTPTimeout    time.Duration  `yaml:"http_timeout" env:"DASHBOARD_HTTP_TIMEOUT"`
	StrictDecoding *bool          `yaml:"strict_decoding" env:"DASHBOARD_STRICT_DECODING"`
	ProfileDir     string         `yaml:"profile_dir" env:"DASHBOARD_PROFILE_DIR"`
	Storage        StorageBackend `yaml:"storage" env:"DASHBOARD_STORAGE"`
	LogLevel       string         `yaml:"log_level" env:"DASHBOARD_LOG_LEVEL"`

	OIDCIssuer       string        `yaml:"oidc_issuer" env:"DASHBOARD_OIDC_ISSUER"`
	OIDCClientID     string        `yaml:"oidc_client_id" env:"DASHBOARD_OIDC_CLIENT_ID"`
	OIDCClientSecret string        `yaml:"oidc_client_secret" env:"DASHBOARD_OIDC_CLIENT_SECRET"`
	OIDCScopes       []string      `yaml:"oidc_scopes" env:"DASHBOARD_OIDC_SCOPES" envSeparator:","`
	RefreshLeeway    time.Duration `yaml:"refresh_leeway" env:"DASHBOARD_REFRESH_LEEWAY"`

	SyncSchedule    string `yaml:"sync_schedule" env:"DASHBOARD_SYNC_SCHEDULE"`
	HistoryCapacity int    `yaml:"history_capacity" env:"DASHBOARD_HISTORY_CAPACITY"`
	CredentialKey   string `yaml:"credential_key" env:"DASHBOARD_CREDENTIAL_KEY"`
}

func (v *Values) applyDefaults() {
	if v.AppName == "" {
		v.AppName = defaultAppName
	}
	if v.Env == "" {
		v.Env = defaultEnv
	}
	v.Env = strings.ToUpper(v.Env)
	if v.APIBaseURL == "" {
		v.APIBaseURL = defaultAPIBaseURL
	}
	v.APIBaseURL = strings.TrimRight(v.APIBaseURL, "/")
	if v.ProfileDir == "" {
		v.ProfileDir = defaultProfileDir
	}
	if v.Storage == "" {
		v.Storage = StorageFile
	}
	if v.LogLevel == "" {
		v.LogLevel = defaultLogLevel
	}
	if len(v.OIDCScopes) == 0 {
		v.OIDCScopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if v.RefreshLeeway == 0 {
		v.RefreshLeeway = time.Minute
	}
	if v.SyncSchedule == "" {
		v.SyncSchedule = defaultSyncSchedule
	}
	if v.HistoryCapacity <= 0 {
		v.HistoryCapacity = defaultHistoryCap
	}
}

func (v *Values) validate() error {
	switch v.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", v.Storage)
	}
	if _, err := v.GetCredentialKey(); err != nil {
		return err
	}
	return nil
}

func (v *Values) GetAppName() string {
	return v.AppName
}

func (v *Values) GetEnv() string {
	return v.Env
}

func (v *Values) IsDev() bool {
	return v.Env == defaultEnv
}

func (v *Values) GetProfileDir() string {
	return filepath.Clean(v.ProfileDir)
}

func (v *Values) GetStorageBackend() StorageBackend {
	return v.Storage
}

func (v *Values) GetLogLevel() string {
	return v.LogLevel
}

func (v *Values) GetAPIBaseURL() string {
	return v.APIBaseURL
}

func (v *Values) GetHTTPTimeout() time.Duration {
	return v.HTTPTimeout
}

// GetStrictDecoding defaults to on in DEV so malformed payloads surface early.
func (v *Values) GetStrictDecoding() bool {
	if v.StrictDecoding != nil {
		return *v.StrictDecoding
	}
	return v.IsDev()
}
