// Package mcptools exposes read-only views of the workspace as MCP tools
package mcptools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

// Tools serves MCP tool calls from the document and story stores
type Tools struct {
	docs    *store.Store
	stories *stories.Store

	// mu serializes calls that select a project
	mu sync.Mutex
}

// New creates the tool set
func New(docs *store.Store, storyStore *stories.Store) *Tools {
	return &Tools{docs: docs, stories: storyStore}
}

// NewServer returns an MCP server with every tool registered
func NewServer(t *Tools, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("req-studio", version, mcpserver.WithToolCapabilities(false))

	s.AddTool(listProjectsTool(), t.handleListProjects)
	s.AddTool(listRequirementsTool(), t.handleListRequirements)
	s.AddTool(readRequirementTool(), t.handleReadRequirement)
	s.AddTool(listUserStoriesTool(), t.handleListUserStories)

	return s
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func listProjectsTool() mcp.Tool {
	return mcp.NewTool("list_projects",
		mcp.WithDescription("List the projects in the working directory with their ids and requirement counters."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func listRequirementsTool() mcp.Tool {
	return mcp.NewTool("list_requirements",
		mcp.WithDescription("List the requirement documents of one type in a project, with their file paths and titles."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id as returned by list_projects"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Requirement type: BRD, PRD, NFR, UIR or BP"),
		),
	)
}

func readRequirementTool() mcp.Tool {
	return mcp.NewTool("read_requirement",
		mcp.WithDescription("Read one requirement document as JSON."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path relative to the working directory, e.g. Alpha/BRD/BRD01-base.json"),
		),
	)
}

func listUserStoriesTool() mcp.Tool {
	return mcp.NewTool("list_user_stories",
		mcp.WithDescription("List the active user stories and their tasks from a PRD feature file."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Feature file path relative to the working directory, e.g. Alpha/PRD/PRD01-feature.json"),
		),
	)
}

func (t *Tools) handleListProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects := t.docs.ListProjects(ctx)
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects found."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Projects (%d)\n\n", len(projects))
	for _, p := range projects {
		fmt.Fprintf(&sb, "- **%s** (id: %s, folder: %s)\n", p.Name, p.ID, p.Dir)
		for _, rt := range models.RequirementTypes {
			if n := p.RequirementCounters[rt]; n > 0 {
				fmt.Fprintf(&sb, "  - %s: %d\n", rt, n)
			}
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) handleListRequirements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	rt, ok := models.ParseRequirementType(strings.ToUpper(req.GetString("type", "")))
	if !ok || !rt.IsFolderType() {
		return mcp.NewToolResultError("type must be one of BRD, PRD, NFR, UIR, BP"), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.docs.LoadProjectFiles(ctx, projectID, gateway.BaseFiles); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load project failed: %v", err)), nil
	}
	folder, err := t.docs.FolderPath(rt)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries := t.docs.BulkReadFiles(ctx, string(rt), gateway.BaseFiles, "title")
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %s documents.", rt)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s documents (%d)\n\n", rt, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s: %s (`%s/%s`)\n", gateway.RequirementID(e.FileName), e.Content.Title, folder, e.FileName)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) handleReadRequirement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	doc, err := t.docs.ReadFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read failed: %v", err)), nil
	}

	data, err := helpers.MarshalPretty(doc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *Tools) handleListUserStories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	t.mu.Lock()
	list := t.stories.GetUserStories(ctx, path)
	t.mu.Unlock()

	if len(list) == 0 {
		return mcp.NewToolResultText("No user stories."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## User stories (%d)\n\n", len(list))
	for _, s := range list {
		fmt.Fprintf(&sb, "### %s: %s\n\n%s\n\n", s.ID, s.Name, s.Description)
		for _, task := range s.Tasks {
			fmt.Fprintf(&sb, "- %s: %s", task.ID, task.List)
			if task.Acceptance != "" {
				fmt.Fprintf(&sb, " (acceptance: %s)", task.Acceptance)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}
