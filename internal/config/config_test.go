package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendBolt, cfg.Cache.Backend)
	assert.Equal(t, "https://retroachievements.org/API/", cfg.Upstream.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Upstream.Retries)
	assert.Equal(t, 64, cfg.Cache.LockShards)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":8080"
upstream:
  username: "yamluser"
  timeout: 2s
  parallelism: 4
cache:
  backend: sqlite
  path: /tmp/badges.db
  profile_ttl: 30m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "yamluser", cfg.Upstream.Username)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 4, cfg.Upstream.Parallelism)
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ProfileTTL)
	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.Upstream.Retries)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ArtifactTTL)
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "cache:\n  profile_ttl: 0s\n"))
	assert.ErrorContains(t, err, "cache.profile_ttl")
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("RA_API_USERNAME", "envuser")
	t.Setenv("RA_API_KEY", "envkey")
	t.Setenv("RETRO_BADGE_ADDR", ":9090")
	t.Setenv("RETRO_BADGE_CACHE_BACKEND", BackendDaemon)
	t.Setenv("RETRO_BADGE_CACHE_SOCK", "/tmp/rb.sock")
	t.Setenv("RETRO_BADGE_ARTIFACT_TTL", "90s")
	t.Setenv("RETRO_BADGE_UPSTREAM_PARALLELISM", "not-a-number")

	cfg, err := Load(writeFile(t, "config.yaml", "upstream:\n  username: yamluser\n  parallelism: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "envuser", cfg.Upstream.Username)
	assert.Equal(t, "envkey", cfg.Upstream.APIKey)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, BackendDaemon, cfg.Cache.Backend)
	assert.Equal(t, "/tmp/rb.sock", cfg.Cache.Socket)
	assert.Equal(t, 90*time.Second, cfg.Cache.ArtifactTTL)
	assert.Equal(t, 2, cfg.Upstream.Parallelism, "unparsable override is ignored")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"timeout":     func(c *Config) { c.Upstream.Timeout = 0 },
		"retries":     func(c *Config) { c.Upstream.Retries = -1 },
		"parallelism": func(c *Config) { c.Upstream.Parallelism = 0 },
		"backoff":     func(c *Config) { c.Upstream.Backoff = -time.Second },
		"profile_ttl": func(c *Config) { c.Cache.ProfileTTL = -time.Minute },
		"artifact":    func(c *Config) { c.Cache.ArtifactTTL = 0 },
		"backend":     func(c *Config) { c.Cache.Backend = "redis" },
		"path":        func(c *Config) { c.Cache.Path = "" },
		"socket":      func(c *Config) { c.Cache.Backend, c.Cache.Socket = BackendDaemon, "" },
		"shards":      func(c *Config) { c.Cache.LockShards = 0 },
		"addr":        func(c *Config) { c.Server.Addr = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "RETRO_BADGE_TEST_DOTENV_KEY"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=from-file\n")
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv(key))

	require.NoError(t, os.Setenv(key, "from-env"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv(key), "existing variables win")
}
