package mcp

import (
	"context"
	"strings"
	"testing"
)

func newTestManager(t *testing.T, servers map[string][]ToolDescriptor) *Manager {
	t.Helper()
	store := NewConfigStore("")
	manager := NewManager(store)

	// Stable discovery order regardless of map iteration.
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	for _, name := range names {
		srv := newHTTPTestServer(t, defaultRPCHandler(servers[name]))
		cfg := testServerConfig(name, srv.URL)
		if err := store.Add(cfg); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	manager.ConnectToServers(context.Background())
	t.Cleanup(manager.Shutdown)
	return manager
}

func TestManagerConnectAndStatus(t *testing.T) {
	manager := newTestManager(t, map[string][]ToolDescriptor{
		"alpha": sampleTools(),
		"beta":  {{Name: "translate_text", Description: "Translate text between languages"}},
	})

	connected := manager.ConnectedServers()
	if len(connected) != 2 {
		t.Fatalf("expected 2 connected servers, got %v", connected)
	}

	status := manager.ServerStatus()
	if !status["alpha"].Connected || status["alpha"].ToolCount != 2 {
		t.Errorf("unexpected alpha status: %+v", status["alpha"])
	}
	if !status["beta"].Connected || status["beta"].ToolCount != 1 {
		t.Errorf("unexpected beta status: %+v", status["beta"])
	}

	flat := manager.GetAllToolsFlat()
	if len(flat) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(flat))
	}
	for _, tool := range flat {
		if tool.ServerName == "" {
			t.Errorf("tool %s missing server name", tool.Name)
		}
	}
}

func TestManagerPartialConnectFailure(t *testing.T) {
	store := NewConfigStore("")
	manager := NewManager(store)

	srv := newHTTPTestServer(t, defaultRPCHandler(sampleTools()))
	good := testServerConfig("good", srv.URL)
	if err := store.Add(good); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	bad := testServerConfig("bad", "ws://127.0.0.1:1")
	bad.Timeout = 1
	if err := store.Add(bad); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	manager.ConnectToServers(context.Background())
	defer manager.Shutdown()

	connected := manager.ConnectedServers()
	if len(connected) != 1 || connected[0] != "good" {
		t.Errorf("expected only 'good' connected, got %v", connected)
	}

	status := manager.ServerStatus()
	if status["bad"].Connected {
		t.Error("unreachable server must not be marked connected")
	}
}

func TestManagerDisabledServersSkipped(t *testing.T) {
	store := NewConfigStore("")
	manager := NewManager(store)

	srv := newHTTPTestServer(t, defaultRPCHandler(nil))
	cfg := testServerConfig("sleepy", srv.URL)
	cfg.Enabled = false
	if err := store.Add(cfg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	manager.ConnectToServers(context.Background())
	defer manager.Shutdown()

	if len(manager.ConnectedServers()) != 0 {
		t.Error("disabled servers must not be connected")
	}
}

func TestFindToolsByDescriptionScoring(t *testing.T) {
	manager := newTestManager(t, map[string][]ToolDescriptor{
		"alpha": {
			{Name: "get_weather", Description: "Get current weather for a city"},
			{Name: "search_files", Description: "Search files by name"},
		},
	})

	matches := manager.FindToolsByDescription([]string{"weather"})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	// "weather" appears in both name (+3) and description (+1).
	if matches[0].Name != "get_weather" || matches[0].Score != 4 {
		t.Errorf("unexpected match: %+v", matches[0])
	}

	matches = manager.FindToolsByDescription([]string{"search", "name"})
	if len(matches) != 1 || matches[0].Name != "search_files" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	// "search" in name and description, "name" in description only.
	if matches[0].Score != 5 {
		t.Errorf("expected score 5, got %d", matches[0].Score)
	}

	if got := manager.FindToolsByDescription([]string{"nonexistent"}); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestSelectToolsForQuery(t *testing.T) {
	manager := newTestManager(t, map[string][]ToolDescriptor{
		"alpha": {
			{Name: "get_weather", Description: "Get current weather for a city"},
			{Name: "get_forecast", Description: "Multi-day weather forecast"},
			{Name: "search_files", Description: "Search files by name"},
		},
	})

	// Short tokens ("is", "in") are dropped.
	matches := manager.SelectToolsForQuery("what is the weather in Paris", 2)
	if len(matches) == 0 {
		t.Fatal("expected weather tools to match")
	}
	if len(matches) > 2 {
		t.Errorf("maxTools not honored: got %d", len(matches))
	}
	for _, m := range matches {
		if !strings.Contains(m.Name, "weather") && !strings.Contains(m.Description, "weather") {
			t.Errorf("irrelevant tool selected: %s", m.Name)
		}
	}

	if got := manager.SelectToolsForQuery("a an it", 3); got != nil {
		t.Errorf("all-short-token query must select nothing, got %+v", got)
	}
}

func TestManagerCallToolValidationGate(t *testing.T) {
	manager := newTestManager(t, map[string][]ToolDescriptor{
		"alpha": sampleTools(),
	})

	// Missing required parameter is rejected before any network call.
	call := manager.CallTool(context.Background(), "alpha", "get_weather", map[string]any{})
	if call.Status != CallError {
		t.Fatalf("expected error, got %s", call.Status)
	}
	if !strings.Contains(call.Error, "Parameter validation failed") {
		t.Errorf("unexpected error: %q", call.Error)
	}

	// Unknown tool.
	call = manager.CallTool(context.Background(), "alpha", "no_such_tool", nil)
	if !strings.Contains(call.Error, "tool 'no_such_tool' not found on server 'alpha'") {
		t.Errorf("unexpected error: %q", call.Error)
	}

	// Unknown server.
	call = manager.CallTool(context.Background(), "ghost", "get_weather", nil)
	if call.Error != "Server 'ghost' is not connected" {
		t.Errorf("unexpected error: %q", call.Error)
	}

	// Valid call goes through.
	call = manager.CallTool(context.Background(), "alpha", "get_weather", map[string]any{"location": "Paris"})
	if call.Status != CallSuccess {
		t.Errorf("expected success, got %s (%s)", call.Status, call.Error)
	}
}

func TestCallToolsParallelOrder(t *testing.T) {
	manager := newTestManager(t, map[string][]ToolDescriptor{
		"alpha": sampleTools(),
	})

	specs := []CallSpec{
		{ServerName: "alpha", ToolName: "get_weather", Parameters: map[string]any{"location": "Paris"}},
		{ServerName: "ghost", ToolName: "anything"},
		{ServerName: "alpha", ToolName: "search_files", Parameters: map[string]any{"pattern": "*.go"}},
	}

	results := manager.CallToolsParallel(context.Background(), specs)
	if len(results) != len(specs) {
		t.Fatalf("expected %d results, got %d", len(specs), len(results))
	}
	for i, result := range results {
		if result == nil {
			t.Fatalf("result %d is nil", i)
		}
		if result.ToolName != specs[i].ToolName || result.ServerName != specs[i].ServerName {
			t.Errorf("result %d out of order: %s/%s", i, result.ServerName, result.ToolName)
		}
		if !result.Terminal() {
			t.Errorf("result %d not terminal", i)
		}
	}
	if results[0].Status != CallSuccess {
		t.Errorf("first call should succeed: %s", results[0].Error)
	}
	if results[1].Status != CallError {
		t.Errorf("second call should fail: %s", results[1].Status)
	}
	if results[2].Status != CallSuccess {
		t.Errorf("third call should succeed: %s", results[2].Error)
	}

	if got := manager.CallToolsParallel(context.Background(), nil); got != nil {
		t.Errorf("empty batch must return nil, got %v", got)
	}
}

func TestManagerReconnectAndEviction(t *testing.T) {
	manager := newTestManager(t, map[string][]ToolDescriptor{
		"alpha": sampleTools(),
	})

	if !manager.ReconnectServer(context.Background(), "alpha") {
		t.Error("reconnect of a live server should succeed")
	}
	if manager.ReconnectServer(context.Background(), "ghost") {
		t.Error("reconnect of an unknown server must fail")
	}

	health := manager.HealthCheckServers(context.Background())
	if !health["alpha"] {
		t.Error("alpha should be healthy")
	}

	manager.DisconnectFromServers()
	if len(manager.ConnectedServers()) != 0 {
		t.Error("disconnect must clear all connected servers")
	}
	if len(manager.GetAllToolsFlat()) != 0 {
		t.Error("disconnect must clear the tool catalog")
	}
}
