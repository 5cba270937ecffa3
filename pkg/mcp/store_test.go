package mcp

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelrelay/mcpchat/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	store := NewConfigStore(filepath.Join(t.TempDir(), "nope.json"))
	if err := store.Load(""); err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store, got %d servers", store.Count())
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, `{
		"servers": [
			{"name": "weather", "endpoint": "ws://localhost:9001"},
			{"name": "files", "endpoint": "http://localhost:9002", "enabled": false, "timeout": 10}
		],
		"version": "2"
	}`)

	store := NewConfigStore(path)
	if err := store.Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("expected 2 servers, got %d", store.Count())
	}

	weather, ok := store.Get("weather")
	if !ok {
		t.Fatal("weather server not found")
	}
	if !weather.Enabled {
		t.Error("weather should default to enabled")
	}
	if weather.Timeout != 30 {
		t.Errorf("expected default timeout 30, got %d", weather.Timeout)
	}

	files, _ := store.Get("files")
	if files.Enabled {
		t.Error("files should be disabled")
	}
	if files.Timeout != 10 {
		t.Errorf("expected timeout 10, got %d", files.Timeout)
	}

	if err := store.Save(""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Unknown top-level keys survive a save.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read config: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("saved config is not valid JSON: %v", err)
	}
	if _, ok := doc["version"]; !ok {
		t.Error("extra top-level key 'version' was dropped on save")
	}
}

func TestLoadDuplicateLeavesZeroServers(t *testing.T) {
	path := writeConfig(t, `{
		"servers": [
			{"name": "dup", "endpoint": "ws://a"},
			{"name": "dup", "endpoint": "ws://b"}
		]
	}`)

	store := NewConfigStore(path)
	err := store.Load("")
	if !errors.Is(err, domain.ErrDuplicateServer) {
		t.Fatalf("expected ErrDuplicateServer, got: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("failed load must leave zero servers, got %d", store.Count())
	}
}

func TestLoadInvalidEntryFailsWhole(t *testing.T) {
	path := writeConfig(t, `{
		"servers": [
			{"name": "good", "endpoint": "ws://a"},
			{"name": "bad name!", "endpoint": "ws://b"}
		]
	}`)

	store := NewConfigStore(path)
	if err := store.Load(""); err == nil {
		t.Fatal("expected load to fail on invalid server name")
	}
	if store.Count() != 0 {
		t.Errorf("failed load must leave zero servers, got %d", store.Count())
	}
}

func TestAddDuplicate(t *testing.T) {
	store := NewConfigStore("")

	cfg := DefaultServerConfig()
	cfg.Name = "alpha"
	cfg.Endpoint = "ws://localhost:9000"
	if err := store.Add(cfg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(cfg); !errors.Is(err, domain.ErrDuplicateServer) {
		t.Errorf("expected ErrDuplicateServer, got: %v", err)
	}
}

func TestUpdateNameImmutable(t *testing.T) {
	store := NewConfigStore("")

	cfg := DefaultServerConfig()
	cfg.Name = "alpha"
	cfg.Endpoint = "ws://localhost:9000"
	if err := store.Add(cfg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	renamed := cfg.Clone()
	renamed.Name = "beta"
	if err := store.Update("alpha", renamed); err == nil {
		t.Error("expected update with changed name to fail")
	}

	missing := cfg.Clone()
	if err := store.Update("ghost", missing); !errors.Is(err, domain.ErrServerNotFound) {
		t.Errorf("expected ErrServerNotFound, got: %v", err)
	}
}

func TestEnableDisable(t *testing.T) {
	store := NewConfigStore("")

	cfg := DefaultServerConfig()
	cfg.Name = "alpha"
	cfg.Endpoint = "ws://localhost:9000"
	if err := store.Add(cfg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := store.Disable("alpha"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if got, _ := store.Get("alpha"); got.Enabled {
		t.Error("server should be disabled")
	}
	if len(store.GetEnabled()) != 0 {
		t.Error("GetEnabled should skip disabled servers")
	}

	if err := store.Enable("alpha"); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if got, _ := store.Get("alpha"); !got.Enabled {
		t.Error("server should be enabled")
	}

	if err := store.Enable("ghost"); !errors.Is(err, domain.ErrServerNotFound) {
		t.Errorf("expected ErrServerNotFound, got: %v", err)
	}
}

func TestImportAtomicity(t *testing.T) {
	store := NewConfigStore("")

	cfg := DefaultServerConfig()
	cfg.Name = "existing"
	cfg.Endpoint = "ws://localhost:9000"
	if err := store.Add(cfg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	bad := map[string]any{
		"servers": []any{
			map[string]any{"name": "ok", "endpoint": "ws://a"},
			map[string]any{"name": "", "endpoint": "ws://b"},
		},
	}
	if err := store.Import(bad); err == nil {
		t.Fatal("expected import of invalid document to fail")
	}
	if !store.Has("existing") {
		t.Error("failed import must not touch existing configuration")
	}

	good := map[string]any{
		"servers": []any{
			map[string]any{"name": "one", "endpoint": "ws://a"},
			map[string]any{"name": "two", "endpoint": "ws://b"},
		},
	}
	if err := store.Import(good); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if store.Has("existing") {
		t.Error("import must replace previous contents")
	}
	if got := store.Names(); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("unexpected names after import: %v", got)
	}
}

func TestGetAllReturnsCopies(t *testing.T) {
	store := NewConfigStore("")

	cfg := DefaultServerConfig()
	cfg.Name = "alpha"
	cfg.Endpoint = "ws://localhost:9000"
	cfg.Authentication["api_key"] = "secret"
	if err := store.Add(cfg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	all := store.GetAll()
	all[0].Authentication["api_key"] = "tampered"

	fresh, _ := store.Get("alpha")
	if fresh.Authentication["api_key"] != "secret" {
		t.Error("mutating a returned config leaked into the store")
	}
}
