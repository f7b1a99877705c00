package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/retro-badge/internal/badge"
)

// InvalidateHandler returns the MCP tool handler for the "retro-invalidate"
// tool. Either a username or all=true is required.
func InvalidateHandler(svc *badge.Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}

		if req.GetBool("all", false) {
			n, err := svc.InvalidateAll()
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if n == 0 {
				return mcp.NewToolResultText("Nothing to invalidate."), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Deleted %d cached records.", n)), nil
		}

		username := req.GetString("username", "")
		if username == "" {
			return mcp.NewToolResultError("either username or all=true is required"), nil
		}
		deleted, err := svc.Invalidate(username)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(deleted) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No cached records for %s.", username)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted %s for %s.", strings.Join(deleted, ", "), username)), nil
	}
}
