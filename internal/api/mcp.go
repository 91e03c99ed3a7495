package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Prefs PrefsTable
}

// NewMCPServer creates an MCP server exposing the preferences as tools and a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tunnelprefs",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tunnelprefs: read and change the tunnel application's settings by name."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_preferences",
			mcp.WithDescription("List every setting with its key, type, side effect, current and default value."),
		),
		mcpListPreferences(deps),
	)

	s.AddTool(
		mcp.NewTool("get_preference",
			mcp.WithDescription("Get the current value of one setting."),
			mcp.WithString("name", mcp.Description("Setting name (e.g. useDarkTheme)"), mcp.Required()),
		),
		mcpGetPreference(deps),
	)

	s.AddTool(
		mcp.NewTool("set_preference",
			mcp.WithDescription("Change a setting. Bools take true/false, string sets take a comma separated list. Some settings restart tunnels."),
			mcp.WithString("name", mcp.Description("Setting name"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value as text"), mcp.Required()),
		),
		mcpSetPreference(deps),
	)

	s.AddTool(
		mcp.NewTool("invalidate_key",
			mcp.WithDescription("Signal that a storage key was changed outside the application so its cached value is reloaded."),
			mcp.WithString("key", mcp.Description("Storage key (e.g. global_exclusions)"), mcp.Required()),
		),
		mcpInvalidateKey(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"prefs://all",
			"Preferences",
			mcp.WithResourceDescription("All settings and their current values as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAll(deps),
	)

	return s
}

func allViews(deps MCPDeps) []SettingView {
	settings := deps.Prefs.Settings()
	views := make([]SettingView, len(settings))
	for i, s := range settings {
		views[i] = viewOf(s)
	}
	return views
}

func mcpListPreferences(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(allViews(deps))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal settings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		s, ok := deps.Prefs.Lookup(name)
		if !ok {
			return mcpError(fmt.Sprintf("unknown setting %q", name)), nil
		}

		b, err := json.Marshal(viewOf(s))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal setting: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		s, ok := deps.Prefs.Lookup(name)
		if !ok {
			return mcpError(fmt.Sprintf("unknown setting %q", name)), nil
		}
		if err := s.SetText(value); err != nil {
			return mcpError(fmt.Sprintf("failed to set %s: %v", name, err)), nil
		}

		return mcpText(fmt.Sprintf("Set %s = %v", name, s.Value())), nil
	}
}

func mcpInvalidateKey(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		if !deps.Prefs.Notify(key) {
			return mcpError(fmt.Sprintf("no setting owns key %q", key)), nil
		}
		return mcpText(fmt.Sprintf("Invalidated %s", key)), nil
	}
}

func mcpResourceAll(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(allViews(deps))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
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
