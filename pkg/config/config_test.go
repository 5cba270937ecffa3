package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpchat.toml")
	content := `
[server]
host = "127.0.0.1"
port = 9090

[providers]
default = "anthropic"
timeout = "30s"

[providers.claude]
api_key = "file-key"
model = "claude-3-5-sonnet-20241022"

[mcp]
enabled = true
servers_path = "servers.json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("unexpected addr: %s", cfg.Addr())
	}
	if cfg.Providers.Default != "anthropic" {
		t.Errorf("unexpected default provider: %s", cfg.Providers.Default)
	}
	if cfg.Providers.Timeout != 30*time.Second {
		t.Errorf("unexpected timeout: %s", cfg.Providers.Timeout)
	}
	if cfg.Providers.Claude.APIKey != "file-key" {
		t.Errorf("unexpected claude key: %s", cfg.Providers.Claude.APIKey)
	}
	// The config file's directory becomes home.
	if cfg.Home != dir {
		t.Errorf("home should follow the config file, got %s", cfg.Home)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("an explicit missing config file must be an error")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{Host: "0.0.0.0", Port: 8000},
			Providers: ProvidersConfig{Default: "openai"},
			MCP:       MCPConfig{Enabled: true, ServersPath: "x.json"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := base()
	bad.Server.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero port must fail validation")
	}

	bad = base()
	bad.Server.Host = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty host must fail validation")
	}

	bad = base()
	bad.Providers.Default = "cohere"
	if err := bad.Validate(); err == nil {
		t.Error("unknown default provider must fail validation")
	}

	bad = base()
	bad.MCP.ServersPath = ""
	if err := bad.Validate(); err == nil {
		t.Error("enabled mcp without servers_path must fail validation")
	}
}
