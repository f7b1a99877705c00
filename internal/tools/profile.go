package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/retro-badge/internal/badge"
	"github.com/leonardcser/retro-badge/internal/profile"
)

// ProfileHandler returns the MCP tool handler for the "retro-profile" tool.
func ProfileHandler(svc *badge.Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		username, err := req.RequireString("username")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		p, err := svc.Profile(ctx, username)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("user %q not found", username)), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatProfile(p)), nil
	}
}

func formatProfile(p profile.Profile) string {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(p.Username)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "- Hardcore points: %d\n", p.Stats.HardcorePoints)
	fmt.Fprintf(&sb, "- Softcore points: %d\n", p.Stats.SoftcorePoints)
	fmt.Fprintf(&sb, "- Games mastered: %d\n", p.Stats.MasteryCount)
	sb.WriteString("\n")
	if p.Activity == nil {
		sb.WriteString("Not playing anything right now.\n")
		return sb.String()
	}
	sb.WriteString("## Now playing\n")
	fmt.Fprintf(&sb, "%s (%s)\n", p.Activity.Title, p.Activity.Platform)
	fmt.Fprintf(&sb, "%s\n", p.Activity.RichPresence)
	return sb.String()
}
