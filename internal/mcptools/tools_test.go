package mcptools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"req-studio/internal/gateway"
	"req-studio/internal/models"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

func newTestTools(t *testing.T) (*Tools, models.Project, *gateway.LocalFS) {
	t.Helper()
	fs, err := gateway.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	docs := store.New(fs)
	p, err := docs.CreateProject(context.Background(), "Alpha", "", "")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	return New(docs, stories.New(fs, nil, nil)), p, fs
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestListProjects(t *testing.T) {
	tools, p, _ := newTestTools(t)

	res, err := tools.handleListProjects(context.Background(), call(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if text := resultText(t, res); !strings.Contains(text, p.ID) {
		t.Errorf("project id missing: %s", text)
	}
}

func TestListAndReadRequirements(t *testing.T) {
	tools, p, fs := newTestTools(t)
	ctx := context.Background()

	if err := fs.CreateFileWithContent(ctx, "Alpha/BRD/BRD01-base.json", `{"title":"Login","requirement":"SSO"}`); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	res, _ := tools.handleListRequirements(ctx, call(map[string]any{"project_id": p.ID, "type": "brd"}))
	text := resultText(t, res)
	if res.IsError || !strings.Contains(text, "BRD01: Login") || !strings.Contains(text, "Alpha/BRD/BRD01-base.json") {
		t.Errorf("unexpected listing: %s", text)
	}

	res, _ = tools.handleReadRequirement(ctx, call(map[string]any{"path": "Alpha/BRD/BRD01-base.json"}))
	if res.IsError || !strings.Contains(resultText(t, res), `"requirement": "SSO"`) {
		t.Errorf("unexpected document: %s", resultText(t, res))
	}

	res, _ = tools.handleListRequirements(ctx, call(map[string]any{"project_id": p.ID, "type": "US"}))
	if !res.IsError {
		t.Errorf("US is not a document folder")
	}

	res, _ = tools.handleReadRequirement(ctx, call(map[string]any{"path": "Alpha/BRD/BRD09-base.json"}))
	if !res.IsError {
		t.Errorf("missing document should be an error result")
	}
}

func TestListUserStories(t *testing.T) {
	tools, _, fs := newTestTools(t)
	ctx := context.Background()

	body := `{"features":[{"id":"US1","name":"Sign in","description":"d","tasks":[{"id":"TASK1","list":"form","acceptance":"renders"}]}],"archivedFeatures":[]}`
	if err := fs.CreateFileWithContent(ctx, "Alpha/PRD/PRD01-feature.json", body); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	res, _ := tools.handleListUserStories(ctx, call(map[string]any{"path": "Alpha/PRD/PRD01-feature.json"}))
	text := resultText(t, res)
	if !strings.Contains(text, "US1: Sign in") || !strings.Contains(text, "TASK1: form (acceptance: renders)") {
		t.Errorf("unexpected stories: %s", text)
	}

	res, _ = tools.handleListUserStories(ctx, call(map[string]any{}))
	if !res.IsError {
		t.Errorf("missing path should be an error result")
	}
}
