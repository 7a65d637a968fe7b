// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PUNCHCARD_REMOTE_BASE_URL.
const EnvPrefix = "PUNCHCARD"

// Config is the top-level terminal configuration.
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Matching MatchingConfig `mapstructure:"matching"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Keyring  KeyringConfig  `mapstructure:"keyring"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DeviceConfig identifies this terminal to the backend.
type DeviceConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	LocationName string `mapstructure:"location_name"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

type MatchingConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	Dimensions int     `mapstructure:"dimensions"`
}

// RemoteConfig locates the backend. APIKey is normally a keyring:// URI.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	EmbeddingsInterval  time.Duration `mapstructure:"embeddings_interval"`
	EventsInterval      time.Duration `mapstructure:"events_interval"`
	UnavailableCooldown time.Duration `mapstructure:"unavailable_cooldown"`
}

type KeyringConfig struct {
	Service          string `mapstructure:"service"`
	SnapshotKeyAlias string `mapstructure:"snapshot_key_alias"`
}

type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SetDefaults registers every key with its default so env overrides and
// Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("device.id", defaultDeviceID())
	v.SetDefault("device.name", "")
	v.SetDefault("device.location_name", "")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", DefaultDataDir())
	v.SetDefault("matching.threshold", 0.65)
	v.SetDefault("matching.dimensions", 512)
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.api_key", "keyring://punchcard/device-api-key")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("sync.embeddings_interval", 15*time.Minute)
	v.SetDefault("sync.events_interval", 30*time.Second)
	v.SetDefault("sync.unavailable_cooldown", 30*time.Second)
	v.SetDefault("keyring.service", "punchcard")
	v.SetDefault("keyring.snapshot_key_alias", "embedding-snapshot-key")
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
}

// SetupEnv binds PUNCHCARD_* environment variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// DefaultDataDir returns ~/.local/share/punchcard, or ./data when the home
// directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "punchcard")
}

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "punchcard"
	}
	return host
}

// Load reads configuration from path (or defaults only when empty) with
// PUNCHCARD_ environment overrides, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pcerr.Errorf(pcerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pcerr.Errorf(pcerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all of
// them rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateDevice()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateMatching()...)
	errs = append(errs, c.validateRemote()...)
	errs = append(errs, c.validateSync()...)
	errs = append(errs, c.validateKeyring()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func invalid(format string, args ...any) error {
	return pcerr.Errorf(pcerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateDevice() []error {
	var errs []error
	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, invalid("device.id must not be empty"))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, invalid("storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, invalid("storage.data_dir must not be empty"))
	}
	return errs
}

func (c *Config) validateMatching() []error {
	var errs []error
	if c.Matching.Threshold < -1 || c.Matching.Threshold > 1 {
		errs = append(errs, invalid("matching.threshold must be within [-1, 1], got %g", c.Matching.Threshold))
	}
	if c.Matching.Dimensions < 0 {
		errs = append(errs, invalid("matching.dimensions must not be negative, got %d", c.Matching.Dimensions))
	}
	return errs
}

func (c *Config) validateRemote() []error {
	var errs []error

	// An empty base URL is allowed: the terminal then runs fully offline.
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, invalid("remote.base_url is not a valid URL %q: %w", c.Remote.BaseURL, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, invalid("remote.base_url scheme must be http or https, got %q", u.Scheme))
		case u.Host == "":
			errs = append(errs, invalid("remote.base_url must include a host, got %q", c.Remote.BaseURL))
		}
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, invalid("remote.timeout must be greater than 0, got %s", c.Remote.Timeout))
	}
	return errs
}

func (c *Config) validateSync() []error {
	var errs []error
	if c.Sync.EmbeddingsInterval <= 0 {
		errs = append(errs, invalid("sync.embeddings_interval must be greater than 0, got %s", c.Sync.EmbeddingsInterval))
	}
	if c.Sync.EventsInterval <= 0 {
		errs = append(errs, invalid("sync.events_interval must be greater than 0, got %s", c.Sync.EventsInterval))
	}
	if c.Sync.UnavailableCooldown <= 0 {
		errs = append(errs, invalid("sync.unavailable_cooldown must be greater than 0, got %s", c.Sync.UnavailableCooldown))
	}
	return errs
}

func (c *Config) validateKeyring() []error {
	var errs []error
	if c.Keyring.Service == "" {
		errs = append(errs, invalid("keyring.service must not be empty"))
	}
	if c.Keyring.SnapshotKeyAlias == "" {
		errs = append(errs, invalid("keyring.snapshot_key_alias must not be empty"))
	}
	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
			} else if port < 1 || port > 65535 {
				errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
			}
		}
	}

	for i, origin := range c.Server.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, invalid("server.cors_origins[%d] must not be empty", i))
		}
	}
	return errs
}
