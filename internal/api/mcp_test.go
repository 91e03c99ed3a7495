package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// --- helpers ---

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

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
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

func TestMCPTool_ListPreferences(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	handler := mcpListPreferences(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("list_preferences", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var views []SettingView
	if err := json.Unmarshal([]byte(toolText(t, result)), &views); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(views) != 10 {
		t.Fatalf("expected 10 settings, got %d", len(views))
	}
	if views[0].Name != "exclusions" || views[0].Key != "global_exclusions" {
		t.Errorf("first setting = %s/%s, want exclusions/global_exclusions", views[0].Name, views[0].Key)
	}
}

func TestMCPTool_GetPreference(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	if err := p.LastUsedTunnel.Set("office"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	handler := mcpGetPreference(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("get_preference", map[string]any{
		"name": "lastUsedTunnel",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var view SettingView
	if err := json.Unmarshal([]byte(toolText(t, result)), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Value != "office" {
		t.Errorf("value = %v, want office", view.Value)
	}
}

func TestMCPTool_GetPreference_Unknown(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	handler := mcpGetPreference(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("get_preference", map[string]any{
		"name": "nope",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown setting")
	}
}

func TestMCPTool_GetPreference_MissingName(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	handler := mcpGetPreference(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("get_preference", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when name is missing")
	}
}

func TestMCPTool_SetPreference(t *testing.T) {
	p, _, cb := newTestPrefs(t)
	handler := mcpSetPreference(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("set_preference", map[string]any{
		"name":  "forceUserspaceBackend",
		"value": "true",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if !p.ForceUserspaceBackend.Get() {
		t.Error("forceUserspaceBackend not set")
	}
	if restarts, _ := cb.counts(); restarts != 1 {
		t.Errorf("restarts = %d, want 1", restarts)
	}
}

func TestMCPTool_SetPreference_InvalidValue(t *testing.T) {
	p, _, cb := newTestPrefs(t)
	handler := mcpSetPreference(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("set_preference", map[string]any{
		"name":  "whitelistApps",
		"value": "maybe",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for a non-bool value")
	}
	if _, sessions := cb.counts(); sessions != 0 {
		t.Errorf("sessions restarted %d times after a rejected value", sessions)
	}
}

func TestMCPTool_InvalidateKey(t *testing.T) {
	p, store, cb := newTestPrefs(t)
	if got := p.Exclusions.Get(); got != "" {
		t.Fatalf("Exclusions = %q, want empty", got)
	}

	if err := store.PutString("global_exclusions", "com.example.bank"); err != nil {
		t.Fatalf("PutString: %v", err)
	}
	handler := mcpInvalidateKey(MCPDeps{Prefs: p})

	result, err := handler(context.Background(), makeCallToolRequest("invalidate_key", map[string]any{
		"key": "global_exclusions",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if got := p.Exclusions.Get(); got != "com.example.bank" {
		t.Errorf("Exclusions = %q after invalidate", got)
	}
	if _, sessions := cb.counts(); sessions != 1 {
		t.Errorf("sessions = %d, want 1", sessions)
	}

	result, err = handler(context.Background(), makeCallToolRequest("invalidate_key", map[string]any{
		"key": "unknown_key",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for an unowned key")
	}
}

func TestMCPResource_All(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	if err := p.UseDarkTheme.Set(true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	handler := mcpResourceAll(MCPDeps{Prefs: p})

	contents, err := handler(context.Background(), makeReadResourceRequest("prefs://all"))
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
	if tc.URI != "prefs://all" {
		t.Errorf("URI = %q", tc.URI)
	}
	if !strings.Contains(tc.Text, `"name":"useDarkTheme"`) {
		t.Errorf("resource missing useDarkTheme: %s", tc.Text)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	deps := MCPDeps{Prefs: p}
	set := mcpSetPreference(deps)
	get := mcpGetPreference(deps)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			set(context.Background(), makeCallToolRequest("set_preference", map[string]any{
				"name":  "useDarkTheme",
				"value": "true",
			}))
		}()
		go func() {
			defer wg.Done()
			get(context.Background(), makeCallToolRequest("get_preference", map[string]any{
				"name": "useDarkTheme",
			}))
		}()
	}
	wg.Wait()

	if !p.UseDarkTheme.Get() {
		t.Error("useDarkTheme not set after concurrent calls")
	}
}

func TestNewMCPServer(t *testing.T) {
	p, _, _ := newTestPrefs(t)
	if s := NewMCPServer(MCPDeps{Prefs: p}); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
