package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/retro-badge/internal/app"
	"github.com/leonardcser/retro-badge/internal/config"
	"github.com/leonardcser/retro-badge/internal/logger"
	tools "github.com/leonardcser/retro-badge/internal/tools"
)

func main() {
	// stdout carries the MCP protocol, so logs go to a file.
	if err := logger.InitFromEnv(filepath.Join(config.DefaultDir(), "mcp.log")); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting Retro Badge MCP server")

	// Share the cache daemon with other processes unless configured otherwise.
	if os.Getenv("RETRO_BADGE_CACHE_BACKEND") == "" {
		_ = os.Setenv("RETRO_BADGE_CACHE_BACKEND", config.BackendDaemon)
	}
	cfg, err := config.Load(os.Getenv("RETRO_BADGE_CONFIG"))
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		panic(err)
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Errorf("Failed to initialize badge service: %v", err)
		panic(err)
	}
	defer a.Close()

	s := server.NewMCPServer(
		"Retro Badge MCP",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	logger.Infof("Created MCP server instance")

	toolProfile := mcp.NewTool("retro-profile",
		mcp.WithDescription(multiline(
			"Looks up a RetroAchievements user and summarizes their profile",
			"\nFunctionality:",
			"- Returns hardcore points, softcore points and mastered game count",
			"- Includes the game the user last played, with platform and rich presence",
			"\nUsage notes:",
			"- Usernames are case-sensitive and limited to letters, digits, '.', '_' and '-'",
			fmt.Sprintf("- Profiles are cached for %s; use retro-invalidate to force a refresh", cfg.Cache.ProfileTTL.String()),
			"- This tool is read-only",
		)),
		mcp.WithString("username", mcp.Required(), mcp.Description("The RetroAchievements username")),
	)
	s.AddTool(toolProfile, tools.ProfileHandler(a.Service))
	logger.Infof("Registered retro-profile tool")

	toolBadge := mcp.NewTool("retro-badge",
		mcp.WithDescription(multiline(
			"Renders the profile badge PNG for a RetroAchievements user",
			"\nFunctionality:",
			"- Returns the same image the HTTP endpoint /users/<username>.png serves",
			"- Includes the entity tag and render time of the image",
			"\nUsage notes:",
			fmt.Sprintf("- Rendered badges are cached for %s", cfg.Cache.ArtifactTTL.String()),
		)),
		mcp.WithString("username", mcp.Required(), mcp.Description("The RetroAchievements username")),
	)
	s.AddTool(toolBadge, tools.BadgeHandler(a.Service))
	logger.Infof("Registered retro-badge tool")

	toolInvalidate := mcp.NewTool("retro-invalidate",
		mcp.WithDescription(multiline(
			"Drops cached profile and badge records",
			"\nUsage notes:",
			"- Pass a username to drop that user's records",
			"- Pass all=true to empty both caches",
		)),
		mcp.WithString("username", mcp.Description("The user whose records to drop")),
		mcp.WithBoolean("all", mcp.Description("Drop every cached record")),
	)
	s.AddTool(toolInvalidate, tools.InvalidateHandler(a.Service))
	logger.Infof("Registered retro-invalidate tool")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
