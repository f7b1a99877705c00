// Package app assembles the badge service from configuration. Both the HTTP
// server and the MCP server build on it.
package app

import (
	"errors"
	"fmt"

	"github.com/leonardcser/retro-badge/internal/artifact"
	"github.com/leonardcser/retro-badge/internal/badge"
	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/config"
	"github.com/leonardcser/retro-badge/internal/keylock"
	"github.com/leonardcser/retro-badge/internal/logger"
	"github.com/leonardcser/retro-badge/internal/profile"
	"github.com/leonardcser/retro-badge/internal/render"
	"github.com/leonardcser/retro-badge/internal/retro"
)

// Bucket names shared by every backend.
const (
	BucketProfiles  = "profiles"
	BucketArtifacts = "artifacts"
)

type App struct {
	Service  *badge.Service
	Upstream *retro.Client
	closers  []func() error
}

// New opens the configured cache backend and wires the service on top.
func New(cfg *config.Config) (*App, error) {
	a := &App{}
	profiles, artifacts, err := a.openStores(cfg.Cache)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	upstream, err := retro.NewClient(retro.Options{
		BaseURL:     cfg.Upstream.BaseURL,
		Username:    cfg.Upstream.Username,
		APIKey:      cfg.Upstream.APIKey,
		Timeout:     cfg.Upstream.Timeout,
		Retries:     cfg.Upstream.Retries,
		Backoff:     cfg.Upstream.Backoff,
		Parallelism: cfg.Upstream.Parallelism,
		Delay:       cfg.Upstream.Delay,
		UserAgent:   cfg.Upstream.UserAgent,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("upstream client: %w", err)
	}
	if cfg.Upstream.Username == "" || cfg.Upstream.APIKey == "" {
		logger.Warnf("RA_API_USERNAME or RA_API_KEY is not set; upstream calls will be rejected")
	}

	fetcher := profile.NewFetcher(
		profile.NewCache(profiles, cfg.Cache.ProfileTTL),
		upstream,
		keylock.New(cfg.Cache.LockShards),
	)
	a.Upstream = upstream
	a.Service = badge.New(
		fetcher,
		artifact.NewCache(artifacts, cfg.Cache.ArtifactTTL),
		render.New(cfg.Render.Background),
	)
	return a, nil
}

func (a *App) openStores(cfg config.CacheConfig) (cache.KV, cache.KV, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		db, err := cache.OpenDB(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open bbolt cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		p, err := db.Bucket(BucketProfiles)
		if err != nil {
			return nil, nil, err
		}
		ar, err := db.Bucket(BucketArtifacts)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Using bbolt cache at %s", cfg.Path)
		return p, ar, nil

	case config.BackendSQLite:
		db, err := cache.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		p, err := cache.NewSQLStore(db, BucketProfiles)
		if err != nil {
			return nil, nil, err
		}
		ar, err := cache.NewSQLStore(db, BucketArtifacts)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Using sqlite cache at %s", cfg.Path)
		return p, ar, nil

	case config.BackendDaemon:
		if err := EnsureDaemon(cfg.Socket); err != nil {
			return nil, nil, err
		}
		logger.Infof("Using cache daemon at %s", cfg.Socket)
		return cache.NewClient(cfg.Socket, BucketProfiles), cache.NewClient(cfg.Socket, BucketArtifacts), nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// Close releases the cache backend.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
