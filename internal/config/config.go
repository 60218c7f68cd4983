package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	APIConfig
	IdentityConfig
	SyncConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	IsDev() bool
	GetProfileDir() string
	GetStorageBackend() StorageBackend
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIBaseURL() string
	GetHTTPTimeout() time.Duration
	GetStrictDecoding() bool
}

type mainConfig struct {
	*Values
}

var _ Config = mainConfig{}

// New returns the configuration read from the environment only.
func New() (Config, error) {
	return Load("")
}

// Load reads the optional YAML file at path, then lets environment variables
// override whatever the file set. Unset values fall back to defaults.
func Load(path string) (Config, error) {
	values := &Values{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("[config Load] read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, values); err != nil {
			return nil, fmt.Errorf("[config Load] parse %s: %w", path, err)
		}
	}
	if err := env.Parse(values); err != nil {
		return nil, fmt.Errorf("[config Load] parse env: %w", err)
	}
	values.applyDefaults()
	if err := values.validate(); err != nil {
		return nil, fmt.Errorf("[config Load] %w", err)
	}
	return mainConfig{Values: values}, nil
}
