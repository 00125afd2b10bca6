package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorlens/creator-gateway/internal/platform"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("CREATORGW_PROVIDER_API_KEY", "dk_live_test")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultProviderTimeout, cfg.Provider.Timeout)
	assert.Equal(t, "dk_live_test", cfg.Provider.APIKey)
}

func TestLoad_YAMLAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "dk_live_expanded")
	path := writeConfig(t, `
server:
  port: 9099
  read_timeout: 10s
provider:
  base_url: https://api.example.test/v2
  api_key: ${TEST_PROVIDER_KEY}
  auth_style: bearer
  platforms: [instagram, youtube]
quota:
  report_limit: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9099, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "https://api.example.test/v2", cfg.Provider.BaseURL)
	assert.Equal(t, "dk_live_expanded", cfg.Provider.APIKey)
	assert.Equal(t, 42, cfg.Quota.ReportLimit)
	// Unset sections keep their defaults.
	assert.Equal(t, DefaultCachePath, cfg.Cache.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: https://file.example.test
  api_key: from_file
`)
	t.Setenv("CREATORGW_PROVIDER_BASE_URL", "https://env.example.test")
	t.Setenv("CREATORGW_PROVIDER_API_KEY", "from_env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.test", cfg.Provider.BaseURL)
	assert.Equal(t, "from_env", cfg.Provider.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"empty base url", func(c *Config) { c.Provider.BaseURL = "" }, "base_url"},
		{"bad auth style", func(c *Config) { c.Provider.AuthStyle = "hmac" }, "auth_style"},
		{"good auth style", func(c *Config) { c.Provider.AuthStyle = "access_token" }, ""},
		{"bad platform", func(c *Config) { c.Provider.Platforms = []string{"myspace"} }, "platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAllowedPlatforms(t *testing.T) {
	cfg := Default()
	allowed := cfg.AllowedPlatforms()
	assert.Len(t, allowed, len(platform.All()))

	cfg.Provider.Platforms = []string{"youtube"}
	allowed = cfg.AllowedPlatforms()
	assert.True(t, allowed[platform.YouTube])
	assert.False(t, allowed[platform.Instagram])
}
