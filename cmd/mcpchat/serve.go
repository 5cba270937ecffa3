package mcpchat

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelrelay/mcpchat/api"
	"github.com/modelrelay/mcpchat/pkg/chat"
	"github.com/modelrelay/mcpchat/pkg/llm"
	"github.com/modelrelay/mcpchat/pkg/log"
	"github.com/modelrelay/mcpchat/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatbot API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		llmService, err := buildLLMService()
		if err != nil {
			return err
		}

		var manager *mcp.Manager
		if cfg.MCP.Enabled {
			manager = mcp.NewManager(mcp.NewConfigStore(cfg.MCP.ServersPath))

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			err := manager.Initialize(ctx, cfg.MCP.ServersPath)
			cancel()
			if err != nil {
				log.Warnf("failed to load MCP server configuration: %v", err)
			}
		}

		chatService := chat.NewService(llmService, manager)
		server := api.NewServer(cfg, chatService, manager)
		return server.Start()
	},
}

// buildLLMService registers every provider that has an API key configured
// and activates the configured default.
func buildLLMService() (*llm.Service, error) {
	var providers []llm.Provider

	if cfg.Providers.OpenAI.APIKey != "" {
		p, err := llm.NewOpenAIProvider(cfg.Providers.OpenAI)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.Providers.Claude.APIKey != "" {
		p, err := llm.NewClaudeProvider(cfg.Providers.Claude)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	service, err := llm.NewService(cfg.Providers.Timeout, providers...)
	if err != nil {
		return nil, fmt.Errorf("no completion provider available: configure an API key: %w", err)
	}
	if cfg.Providers.Default != service.ActiveProvider() {
		if err := service.SwitchProvider(cfg.Providers.Default); err != nil {
			log.Warnf("default provider %s not configured, using %s", cfg.Providers.Default, service.ActiveProvider())
		}
	}
	return service, nil
}
