package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/stylelens/internal/app"
	"github.com/kalambet/stylelens/internal/fetch"
	"github.com/kalambet/stylelens/internal/look"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *app.Store
	Version string
}

// NewMCPServer creates an MCP server with the stylelens tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"stylelens",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("stylelens identifies clothing in images and finds where to buy it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_image_url",
			mcp.WithDescription("Download an image (or a page with an og:image) and identify the clothing in it, with shopping links."),
			mcp.WithString("url", mcp.Description("http(s) URL of the image or page"), mcp.Required()),
		),
		mcpAnalyzeImageURL(deps),
	)

	s.AddTool(
		mcp.NewTool("list_wardrobe",
			mcp.WithDescription("List saved looks, newest first."),
		),
		mcpListWardrobe(deps),
	)

	s.AddTool(
		mcp.NewTool("save_look",
			mcp.WithDescription("Save the currently displayed look and its analysis to the wardrobe."),
		),
		mcpSaveLook(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_look",
			mcp.WithDescription("Remove a saved look from the wardrobe."),
			mcp.WithString("id", mcp.Description("Wardrobe item id"), mcp.Required()),
		),
		mcpRemoveLook(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_scans",
			mcp.WithDescription("List the most recently scanned images, newest first."),
		),
		mcpRecentScans(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"stylelens://state",
			"Current State",
			mcp.WithResourceDescription("Active view, theme, current analysis and collection sizes as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceState(deps),
	)

	return s
}

func mcpAnalyzeImageURL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		res, err := deps.Store.FetchByURL(ctx, target)
		var fe *fetch.Error
		switch {
		case err == nil:
		case errors.Is(err, app.ErrSuperseded):
			return mcpError("analysis superseded by a newer request"), nil
		case errors.As(err, &fe):
			return mcpError(fetch.UserMessage), nil
		default:
			return mcpError(app.ErrorMessage(err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type wardrobeSummary struct {
	ID      string        `json:"id"`
	SavedAt string        `json:"saved_at"`
	Summary string        `json:"summary"`
	Sources []look.Source `json:"sources"`
}

func mcpListWardrobe(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items := deps.Store.Snapshot().Wardrobe
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		out := make([]wardrobeSummary, len(items))
		for i, w := range items {
			out[i] = summarize(w)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal wardrobe: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSaveLook(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		item, err := deps.Store.SaveToWardrobe()
		if app.IsNotice(err) {
			return mcpText(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved look %s", item.ID)), nil
	}
}

func mcpRemoveLook(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if !deps.Store.RemoveFromWardrobe(id) {
			return mcpText(fmt.Sprintf("No saved look with id %s", id)), nil
		}
		return mcpText(fmt.Sprintf("Removed look %s", id)), nil
	}
}

func mcpRecentScans(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		history := deps.Store.Snapshot().History

		type scan struct {
			Index int    `json:"index"`
			Image string `json:"image"`
		}
		out := make([]scan, len(history))
		for i, img := range history {
			out[i] = scan{Index: i, Image: look.DescribeImage(img)}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal scans: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceState(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st := deps.Store.Snapshot()
		b, err := json.Marshal(map[string]any{
			"active_view":    st.ActiveView,
			"theme":          st.Theme,
			"is_loading":     st.IsLoading,
			"current_image":  look.DescribeImage(st.CurrentImage),
			"current_result": st.CurrentResult,
			"current_error":  st.CurrentError,
			"wardrobe_count": len(st.Wardrobe),
			"history_count":  len(st.History),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal state: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func summarize(w look.WardrobeItem) wardrobeSummary {
	sources := w.Analysis.Sources
	if sources == nil {
		sources = []look.Source{}
	}
	return wardrobeSummary{
		ID:      w.ID,
		SavedAt: w.SavedAt().UTC().Format(time.RFC3339),
		Summary: w.Snippet(200),
		Sources: sources,
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
