package tools

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/retro-badge/internal/artifact"
	"github.com/leonardcser/retro-badge/internal/badge"
)

// BadgeHandler returns the MCP tool handler for the "retro-badge" tool. The
// badge goes through the same artifact cache as the HTTP endpoint.
func BadgeHandler(svc *badge.Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		username, err := req.RequireString("username")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := svc.Serve(ctx, username, artifact.Conditional{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.Outcome == badge.NotFound {
			return mcp.NewToolResultError(fmt.Sprintf("user %q not found", username)), nil
		}

		e := res.Entry
		text := fmt.Sprintf("Badge for %s (%s, etag %s, rendered %s)",
			username, res.Outcome, e.ETag(), e.LastModified.UTC().Format("2006-01-02 15:04:05 MST"))
		return mcp.NewToolResultImage(text, base64.StdEncoding.EncodeToString(e.Body), "image/png"), nil
	}
}
