// Package config loads and validates gateway configuration.
//
// DESIGN: configuration is read once at startup (YAML file + environment
// expansion) and treated as immutable afterwards. Components receive the
// loaded Config by pointer and never mutate it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/creatorlens/creator-gateway/internal/platform"
)

// Config is the root configuration for the creator gateway.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Quota    QuotaConfig    `yaml:"quota"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ProviderConfig holds the upstream analytics provider settings.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// AuthStyle overrides the credential encoding tried first:
	// "bearer", "access_token" or "api_key". Empty means infer from the
	// shape of the configured secret.
	AuthStyle string        `yaml:"auth_style"`
	Timeout   time.Duration `yaml:"timeout"`
	// Platforms restricts which platforms the gateway accepts requests
	// for. Empty means all supported platforms.
	Platforms []string `yaml:"platforms"`
}

// CacheConfig holds the profile cache settings.
type CacheConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`
}

// QuotaConfig holds the per-feature quota limits enforced per account.
type QuotaConfig struct {
	LookupLimit int `yaml:"lookup_limit"`
	SearchLimit int `yaml:"search_limit"`
	ReportLimit int `yaml:"report_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from path, expanding ${ENV_VAR} references.
// A missing file yields defaults so the gateway can run from env alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the defaults from defaults.go.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Provider: ProviderConfig{
			BaseURL: DefaultProviderBaseURL,
			Timeout: DefaultProviderTimeout,
		},
		Cache: CacheConfig{Path: DefaultCachePath},
		Quota: QuotaConfig{
			LookupLimit: DefaultLookupLimit,
			SearchLimit: DefaultSearchLimit,
			ReportLimit: DefaultReportLimit,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CREATORGW_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("CREATORGW_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CREATORGW_PROVIDER_AUTH_STYLE"); v != "" {
		cfg.Provider.AuthStyle = v
	}
	if v := os.Getenv("CREATORGW_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	switch strings.ToLower(c.Provider.AuthStyle) {
	case "", "bearer", "access_token", "api_key":
	default:
		return fmt.Errorf("provider.auth_style %q is not one of bearer, access_token, api_key", c.Provider.AuthStyle)
	}
	for _, name := range c.Provider.Platforms {
		if _, ok := platform.Parse(name); !ok {
			return fmt.Errorf("provider.platforms: unsupported platform %q", name)
		}
	}
	return nil
}

// AllowedPlatforms returns the platform set this deployment accepts.
func (c *Config) AllowedPlatforms() map[platform.Platform]bool {
	allowed := make(map[platform.Platform]bool)
	if len(c.Provider.Platforms) == 0 {
		for _, p := range platform.All() {
			allowed[p] = true
		}
		return allowed
	}
	for _, name := range c.Provider.Platforms {
		if p, ok := platform.Parse(name); ok {
			allowed[p] = true
		}
	}
	return allowed
}
