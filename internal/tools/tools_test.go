package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/retro-badge/internal/artifact"
	"github.com/leonardcser/retro-badge/internal/badge"
	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/keylock"
	"github.com/leonardcser/retro-badge/internal/profile"
	"github.com/leonardcser/retro-badge/internal/render"
	"github.com/leonardcser/retro-badge/internal/retro"
)

type stubUpstream map[string]*retro.RawProfile

func (u stubUpstream) FetchProfile(_ context.Context, username string) (*retro.RawProfile, error) {
	raw, ok := u[username]
	if !ok {
		return nil, retro.ErrApplication
	}
	cp := *raw
	return &cp, nil
}

func newService(t *testing.T) *badge.Service {
	t.Helper()
	db, err := cache.OpenDB(filepath.Join(t.TempDir(), "cache.bbolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	profiles, err := db.Bucket("profiles")
	require.NoError(t, err)
	artifacts, err := db.Bucket("artifacts")
	require.NoError(t, err)

	up := stubUpstream{
		"alice": {
			Profile: retro.UserProfile{User: "alice", TotalPoints: 500, TotalSoftcorePoints: 20, LastGameID: 42},
			Awards:  retro.UserAwards{MasteryAwardsCount: 3},
			Game:    &retro.GameProgress{Title: "Game X", ConsoleName: "SNES"},
		},
		"bob": {
			Profile: retro.UserProfile{User: "bob", TotalPoints: 10},
		},
	}
	fetcher := profile.NewFetcher(profile.NewCache(profiles, time.Minute), up, keylock.New(8))
	return badge.New(fetcher, artifact.NewCache(artifacts, time.Minute), render.New(""))
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := h(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "first content is text")
	return tc.Text
}

func TestProfileHandler(t *testing.T) {
	h := ProfileHandler(newService(t))

	res := call(t, h, "retro-profile", map[string]any{"username": "alice"})
	assert.False(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, "# alice")
	assert.Contains(t, out, "Hardcore points: 500")
	assert.Contains(t, out, "Softcore points: 20")
	assert.Contains(t, out, "Games mastered: 3")
	assert.Contains(t, out, "Game X (SNES)")
	assert.Contains(t, out, "N/A")

	res = call(t, h, "retro-profile", map[string]any{"username": "bob"})
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), "Not playing anything right now.")
}

func TestProfileHandlerErrors(t *testing.T) {
	h := ProfileHandler(newService(t))

	res := call(t, h, "retro-profile", map[string]any{})
	assert.True(t, res.IsError)

	res = call(t, h, "retro-profile", map[string]any{"username": "ghost"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), `user "ghost" not found`)
}

func TestBadgeHandler(t *testing.T) {
	h := BadgeHandler(newService(t))

	res := call(t, h, "retro-badge", map[string]any{"username": "alice"})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 2)
	assert.Contains(t, text(t, res), "Badge for alice (fresh")

	img, ok := mcp.AsImageContent(res.Content[1])
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, render.DefaultWidth, decoded.Bounds().Dx())

	res = call(t, h, "retro-badge", map[string]any{"username": "alice"})
	assert.Contains(t, text(t, res), "Badge for alice (cached")
}

func TestBadgeHandlerNotFound(t *testing.T) {
	h := BadgeHandler(newService(t))

	res := call(t, h, "retro-badge", map[string]any{"username": "ghost"})
	assert.True(t, res.IsError)

	res = call(t, h, "retro-badge", map[string]any{"username": "../etc"})
	assert.True(t, res.IsError)
}

func TestInvalidateHandler(t *testing.T) {
	svc := newService(t)
	h := InvalidateHandler(svc)

	res := call(t, h, "retro-invalidate", map[string]any{})
	assert.True(t, res.IsError)

	res = call(t, h, "retro-invalidate", map[string]any{"username": "alice"})
	assert.False(t, res.IsError)
	assert.Equal(t, "No cached records for alice.", text(t, res))

	_ = call(t, BadgeHandler(svc), "retro-badge", map[string]any{"username": "alice"})
	res = call(t, h, "retro-invalidate", map[string]any{"username": "alice"})
	assert.Equal(t, "Deleted profile, artifact for alice.", text(t, res))

	_ = call(t, BadgeHandler(svc), "retro-badge", map[string]any{"username": "alice"})
	_ = call(t, BadgeHandler(svc), "retro-badge", map[string]any{"username": "bob"})
	res = call(t, h, "retro-invalidate", map[string]any{"all": true})
	assert.Equal(t, "Deleted 4 cached records.", text(t, res))

	res = call(t, h, "retro-invalidate", map[string]any{"all": true})
	assert.Equal(t, "Nothing to invalidate.", text(t, res))
}

func TestHandlersHonourCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: map[string]any{"username": "alice"}}}
	for _, h := range []func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		ProfileHandler(newService(t)),
		BadgeHandler(newService(t)),
		InvalidateHandler(newService(t)),
	} {
		res, err := h(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
}
