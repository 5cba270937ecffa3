// Package config loads application settings from a TOML file and environment
// variables, with sane defaults for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/modelrelay/mcpchat/pkg/llm"
	"github.com/modelrelay/mcpchat/pkg/log"
)

// Config is the full application configuration.
type Config struct {
	Home      string          `mapstructure:"home"`
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ProvidersConfig configures the completion providers. A provider with an
// empty api_key is simply not registered.
type ProvidersConfig struct {
	Default string           `mapstructure:"default"`
	Timeout time.Duration    `mapstructure:"timeout"`
	OpenAI  llm.OpenAIConfig `mapstructure:"openai"`
	Claude  llm.ClaudeConfig `mapstructure:"claude"`
}

// MCPConfig configures the tool-server integration.
type MCPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServersPath string `mapstructure:"servers_path"`
}

// Load reads the configuration. Search order: the explicit path, then
// ./mcpchat.toml, then ~/.mcpchat/mcpchat.toml. A missing default file is
// not an error; defaults and environment variables still apply.
func Load(configPath string) (*Config, error) {
	config := &Config{}

	home := os.Getenv("MCPCHAT_HOME")
	if home == "" {
		home = "~/.mcpchat"
	}
	home = expandHomePath(home)

	if configPath != "" {
		absPath, _ := filepath.Abs(configPath)
		viper.SetConfigFile(absPath)
		home = filepath.Dir(absPath)
	} else if _, err := os.Stat("mcpchat.toml"); err == nil {
		abs, _ := filepath.Abs("mcpchat.toml")
		viper.SetConfigFile(abs)
		home = filepath.Dir(abs)
	} else {
		viper.SetConfigFile(filepath.Join(home, "mcpchat.toml"))
	}

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		// Default config may not exist; run on defaults.
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Home == "" {
		config.Home = home
	}
	config.Home = expandHomePath(config.Home)

	if config.MCP.ServersPath == "" {
		config.MCP.ServersPath = filepath.Join(config.Home, "mcp_config.json")
	}
	config.MCP.ServersPath = expandHomePath(config.MCP.ServersPath)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.cors_origins", []string{"*"})

	viper.SetDefault("providers.default", "openai")
	viper.SetDefault("providers.timeout", 45*time.Second)
	viper.SetDefault("providers.openai.model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.max_tokens", 1000)
	viper.SetDefault("providers.openai.temperature", 0.7)
	viper.SetDefault("providers.claude.model", "claude-3-5-sonnet-20241022")
	viper.SetDefault("providers.claude.max_tokens", 1000)

	viper.SetDefault("mcp.enabled", true)
}

func bindEnvVars() {
	viper.SetEnvPrefix("MCPCHAT")
	viper.AutomaticEnv()

	bindings := map[string]string{
		"home":                     "MCPCHAT_HOME",
		"server.host":              "MCPCHAT_SERVER_HOST",
		"server.port":              "MCPCHAT_SERVER_PORT",
		"providers.default":        "MCPCHAT_PROVIDERS_DEFAULT",
		"providers.openai.api_key": "OPENAI_API_KEY",
		"providers.claude.api_key": "ANTHROPIC_API_KEY",
		"mcp.enabled":              "MCPCHAT_MCP_ENABLED",
		"mcp.servers_path":         "MCPCHAT_MCP_SERVERS_PATH",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Warnf("failed to bind %s env var: %v", key, err)
		}
	}
}

// Validate checks the loaded configuration for hard errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Providers.Default != "openai" && c.Providers.Default != "anthropic" {
		return fmt.Errorf("invalid default provider: %s (must be openai or anthropic)", c.Providers.Default)
	}
	if c.MCP.Enabled && c.MCP.ServersPath == "" {
		return fmt.Errorf("mcp servers_path cannot be empty when mcp is enabled")
	}
	return nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
