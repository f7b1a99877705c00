// Package config loads the service configuration from an optional YAML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendDaemon = "daemon"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig holds the RetroAchievements API settings.
type UpstreamConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Username    string        `yaml:"username"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	Backoff     time.Duration `yaml:"backoff"`
	Parallelism int           `yaml:"parallelism"`
	Delay       time.Duration `yaml:"delay"`
	UserAgent   string        `yaml:"user_agent"`
}

// CacheConfig holds the durable cache settings.
type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	Path        string        `yaml:"path"`
	Socket      string        `yaml:"socket"`
	ProfileTTL  time.Duration `yaml:"profile_ttl"`
	ArtifactTTL time.Duration `yaml:"artifact_ttl"`
	LockShards  int           `yaml:"lock_shards"`
}

// RenderConfig holds the badge renderer settings.
type RenderConfig struct {
	Background string `yaml:"background"`
}

// Config holds the complete configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Render   RenderConfig   `yaml:"render"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:5000",
			ShutdownTimeout: 10 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:     "https://retroachievements.org/API/",
			Timeout:     5 * time.Second,
			Retries:     3,
			Backoff:     500 * time.Millisecond,
			Parallelism: 1,
			Delay:       200 * time.Millisecond,
			UserAgent:   "retro-badge/1.0",
		},
		Cache: CacheConfig{
			Backend:     BackendBolt,
			Path:        filepath.Join(dir, "cache.bbolt"),
			Socket:      filepath.Join(dir, "cache.sock"),
			ProfileTTL:  15 * time.Minute,
			ArtifactTTL: 5 * time.Minute,
			LockShards:  64,
		},
		Render: RenderConfig{
			Background: "./background.png",
		},
	}
}

// DefaultDir is where the cache files live unless configured otherwise.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "retro-badge")
}

// Load reads the YAML file at path over the defaults, then applies the .env
// file and environment overrides. An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readYAML(path); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readYAML(path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	if err := yaml.NewDecoder(file).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads variables from the given files without overriding ones
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	c.Upstream.Username = getEnv("RA_API_USERNAME", c.Upstream.Username)
	c.Upstream.APIKey = getEnv("RA_API_KEY", c.Upstream.APIKey)
	c.Upstream.BaseURL = getEnv("RA_API_BASE_URL", c.Upstream.BaseURL)
	c.Server.Addr = getEnv("RETRO_BADGE_ADDR", c.Server.Addr)
	c.Cache.Path = getEnv("RETRO_BADGE_CACHE_DB", c.Cache.Path)
	c.Cache.Socket = getEnv("RETRO_BADGE_CACHE_SOCK", c.Cache.Socket)
	c.Cache.Backend = getEnv("RETRO_BADGE_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.ProfileTTL = getEnvDuration("RETRO_BADGE_PROFILE_TTL", c.Cache.ProfileTTL)
	c.Cache.ArtifactTTL = getEnvDuration("RETRO_BADGE_ARTIFACT_TTL", c.Cache.ArtifactTTL)
	c.Upstream.Parallelism = getEnvInt("RETRO_BADGE_UPSTREAM_PARALLELISM", c.Upstream.Parallelism)
	c.Render.Background = getEnv("RETRO_BADGE_BACKGROUND", c.Render.Background)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is empty"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be positive, got %s", c.Upstream.Timeout))
	}
	if c.Upstream.Retries <= 0 {
		errs = append(errs, fmt.Errorf("upstream.retries must be positive, got %d", c.Upstream.Retries))
	}
	if c.Upstream.Backoff < 0 {
		errs = append(errs, fmt.Errorf("upstream.backoff must not be negative, got %s", c.Upstream.Backoff))
	}
	if c.Upstream.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("upstream.parallelism must be positive, got %d", c.Upstream.Parallelism))
	}
	if c.Cache.ProfileTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.profile_ttl must be positive, got %s", c.Cache.ProfileTTL))
	}
	if c.Cache.ArtifactTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.artifact_ttl must be positive, got %s", c.Cache.ArtifactTTL))
	}
	if c.Cache.LockShards <= 0 {
		errs = append(errs, fmt.Errorf("cache.lock_shards must be positive, got %d", c.Cache.LockShards))
	}
	switch c.Cache.Backend {
	case BackendBolt, BackendSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is empty"))
		}
	case BackendDaemon:
		if c.Cache.Socket == "" {
			errs = append(errs, errors.New("cache.socket is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of bolt, sqlite, daemon", c.Cache.Backend))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
