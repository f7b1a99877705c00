// Package badge ties the profile fetcher, the renderer and the artifact cache
// together: it decides per request whether to answer 304, serve the cached
// image, render a new one, or report the user as not found.
package badge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leonardcser/retro-badge/internal/artifact"
	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/logger"
	"github.com/leonardcser/retro-badge/internal/profile"
	"github.com/leonardcser/retro-badge/internal/render"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Record names reported by Invalidate.
const (
	RecordProfile  = "profile"
	RecordArtifact = "artifact"
)

type Outcome int

const (
	NotFound Outcome = iota
	NotModified
	Cached
	Fresh
)

func (o Outcome) String() string {
	switch o {
	case NotModified:
		return "not_modified"
	case Cached:
		return "cached"
	case Fresh:
		return "fresh"
	default:
		return "not_found"
	}
}

// Result is the decision for one request. Entry is zero for NotFound.
type Result struct {
	Outcome Outcome
	Entry   artifact.Entry
}

type Service struct {
	profiles  *profile.Fetcher
	artifacts *artifact.Cache
	renderer  render.Renderer
	group     singleflight.Group
	renders   atomic.Int64
	log       *zap.SugaredLogger
}

func New(profiles *profile.Fetcher, artifacts *artifact.Cache, r render.Renderer) *Service {
	return &Service{
		profiles:  profiles,
		artifacts: artifacts,
		renderer:  r,
		log:       logger.With("badge"),
	}
}

// Serve resolves the badge for username. A fresh cached artifact is served
// without touching the profile layer, as 304 when cond matches. Otherwise a
// new artifact is rendered; concurrent requests for the same user share the
// render. A freshly rendered artifact is always a full response. The only
// error returned is ctx's own.
func (s *Service) Serve(ctx context.Context, username string, cond artifact.Conditional) (Result, error) {
	if !profile.ValidUsername(username) {
		return Result{Outcome: NotFound}, nil
	}
	if e, ok := s.artifacts.GetFresh(username); ok {
		if e.NotModified(cond) {
			return Result{Outcome: NotModified, Entry: e}, nil
		}
		return Result{Outcome: Cached, Entry: e}, nil
	}

	ch := s.group.DoChan(username, func() (any, error) {
		return s.build(context.WithoutCancel(ctx), username)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if !errors.Is(res.Err, profile.ErrNotFound) {
				s.log.Errorw("badge build failed", "username", username, "error", res.Err)
			}
			return Result{Outcome: NotFound}, nil
		}
		return Result{Outcome: Fresh, Entry: res.Val.(artifact.Entry)}, nil
	}
}

func (s *Service) build(ctx context.Context, username string) (artifact.Entry, error) {
	if e, ok := s.artifacts.Peek(username); ok {
		return e, nil
	}
	p, err := s.profiles.Get(ctx, username)
	if err != nil {
		return artifact.Entry{}, err
	}
	body, err := s.renderer.Render(p)
	if err != nil {
		return artifact.Entry{}, fmt.Errorf("render %s: %w", username, err)
	}
	s.renders.Add(1)
	e, err := s.artifacts.Store(username, body)
	if err != nil {
		s.log.Warnw("artifact not cached, serving uncached render", "username", username, "error", err)
	}
	return e, nil
}

// Invalidate drops both cached records for username and returns the names of
// the records that existed. The list is empty, never nil, when nothing was
// cached.
func (s *Service) Invalidate(username string) ([]string, error) {
	deleted := make([]string, 0, 2)
	ok, err := s.profiles.Cache().Invalidate(username)
	if err != nil {
		return deleted, fmt.Errorf("invalidate profile %s: %w", username, err)
	}
	if ok {
		deleted = append(deleted, RecordProfile)
	}
	ok, err = s.artifacts.Invalidate(username)
	if err != nil {
		return deleted, fmt.Errorf("invalidate artifact %s: %w", username, err)
	}
	if ok {
		deleted = append(deleted, RecordArtifact)
	}
	s.log.Infow("invalidated", "username", username, "deleted", deleted)
	return deleted, nil
}

// InvalidateAll empties both caches and returns the number of records removed.
func (s *Service) InvalidateAll() (int, error) {
	np, err := s.profiles.Cache().InvalidateAll()
	if err != nil {
		return 0, fmt.Errorf("invalidate profiles: %w", err)
	}
	na, err := s.artifacts.InvalidateAll()
	if err != nil {
		return np, fmt.Errorf("invalidate artifacts: %w", err)
	}
	s.log.Infow("invalidated all", "profiles", np, "artifacts", na)
	return np + na, nil
}

// ArtifactTTL is how long a rendered badge stays fresh.
func (s *Service) ArtifactTTL() time.Duration { return s.artifacts.TTL() }

// Profile returns the current profile for username through the profile cache.
func (s *Service) Profile(ctx context.Context, username string) (profile.Profile, error) {
	return s.profiles.Get(ctx, username)
}

type Stats struct {
	Profiles         cache.StatsSnapshot `json:"profiles"`
	Artifacts        cache.StatsSnapshot `json:"artifacts"`
	UpstreamFetches  int64               `json:"upstream_fetches"`
	UpstreamFailures int64               `json:"upstream_failures"`
	Renders          int64               `json:"renders"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Profiles:         s.profiles.Cache().Stats(),
		Artifacts:        s.artifacts.Stats(),
		UpstreamFetches:  s.profiles.Fetches(),
		UpstreamFailures: s.profiles.Failures(),
		Renders:          s.renders.Load(),
	}
}
