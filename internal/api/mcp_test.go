package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/stylelens/internal/fetch"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *testEnv) {
	t.Helper()
	env := newTestEnv(t, "")
	return MCPDeps{Store: env.store, Version: "test"}, env
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_AnalyzeImageURL(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	handler := mcpAnalyzeImageURL(deps)

	req := makeCallToolRequest("analyze_image_url", map[string]interface{}{
		"url": "https://images.example/look.jpg",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got struct {
		Text    string `json:"text"`
		Sources []struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.Text != "3 items found" || len(got.Sources) != 1 || got.Sources[0].Title != "Jacket" {
		t.Errorf("result = %+v", got)
	}
	if h := env.store.Snapshot().History; len(h) != 1 {
		t.Errorf("history = %v, want 1 entry", h)
	}
}

func TestMCPTool_AnalyzeImageURL_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		fetchErr error
		aErr     error
		want     string
	}{
		{"missing url", map[string]interface{}{}, nil, nil, "url is required"},
		{"fetch failed", map[string]interface{}{"url": "https://x.example/a.jpg"}, &fetch.Error{URL: "https://x.example/a.jpg", Err: errors.New("status 403")}, nil, fetch.UserMessage},
		{"analysis failed", map[string]interface{}{"url": "https://x.example/a.jpg"}, nil, errors.New("quota exceeded"), "quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, env := newTestMCPDeps(t)
			env.fetcher.err = tt.fetchErr
			env.analyzer.err = tt.aErr

			result, err := mcpAnalyzeImageURL(deps)(context.Background(), makeCallToolRequest("analyze_image_url", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
			if got := toolText(t, result); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMCPTool_SaveListRemove(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	ctx := context.Background()

	result, _ := mcpSaveLook(deps)(ctx, makeCallToolRequest("save_look", nil))
	if result.IsError {
		t.Fatal("nothing-to-save should be a notice, not an error")
	}
	if !strings.Contains(toolText(t, result), "nothing to save") {
		t.Errorf("text = %q", toolText(t, result))
	}

	result, _ = mcpListWardrobe(deps)(ctx, makeCallToolRequest("list_wardrobe", nil))
	if toolText(t, result) != "[]" {
		t.Errorf("empty wardrobe = %s, want []", toolText(t, result))
	}

	env.store.Upload(ctx, testImage)
	result, _ = mcpSaveLook(deps)(ctx, makeCallToolRequest("save_look", nil))
	if !strings.HasPrefix(toolText(t, result), "Saved look ") {
		t.Fatalf("save text = %q", toolText(t, result))
	}
	id := strings.TrimPrefix(toolText(t, result), "Saved look ")

	result, _ = mcpListWardrobe(deps)(ctx, makeCallToolRequest("list_wardrobe", nil))
	var items []wardrobeSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("failed to parse wardrobe: %v", err)
	}
	if len(items) != 1 || items[0].ID != id || items[0].Summary != "3 items found" {
		t.Errorf("wardrobe = %+v", items)
	}

	result, _ = mcpRemoveLook(deps)(ctx, makeCallToolRequest("remove_look", map[string]interface{}{"id": "missing"}))
	if result.IsError || !strings.HasPrefix(toolText(t, result), "No saved look") {
		t.Errorf("remove unknown = %q", toolText(t, result))
	}

	result, _ = mcpRemoveLook(deps)(ctx, makeCallToolRequest("remove_look", map[string]interface{}{"id": id}))
	if toolText(t, result) != "Removed look "+id {
		t.Errorf("remove = %q", toolText(t, result))
	}
	if n := len(env.store.Snapshot().Wardrobe); n != 0 {
		t.Errorf("wardrobe len = %d", n)
	}

	result, _ = mcpRemoveLook(deps)(ctx, makeCallToolRequest("remove_look", nil))
	if !result.IsError {
		t.Error("remove without id should fail")
	}
}

func TestMCPTool_RecentScans(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	env.store.Upload(context.Background(), testImage)

	result, _ := mcpRecentScans(deps)(context.Background(), makeCallToolRequest("recent_scans", nil))
	var scans []struct {
		Index int    `json:"index"`
		Image string `json:"image"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &scans); err != nil {
		t.Fatalf("failed to parse scans: %v", err)
	}
	if len(scans) != 1 || scans[0].Image != "data:image/png;base64 (12 bytes base64)" {
		t.Errorf("scans = %+v", scans)
	}
}

func TestMCPResource_State(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	env.store.ToggleTheme()

	contents, err := mcpResourceState(deps)(context.Background(), makeReadResourceRequest("stylelens://state"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "stylelens://state" || tc.MIMEType != "application/json" {
		t.Errorf("uri=%s mime=%s", tc.URI, tc.MIMEType)
	}

	var st map[string]any
	json.Unmarshal([]byte(tc.Text), &st)
	if st["theme"] != "dark" || st["active_view"] != "search" || st["wardrobe_count"] != float64(0) {
		t.Errorf("state = %v", st)
	}
}
