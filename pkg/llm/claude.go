package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelrelay/mcpchat/pkg/domain"
)

// ClaudeConfig configures the Anthropic provider.
type ClaudeConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	AnthropicVersion string        `mapstructure:"anthropic_version"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ClaudeProvider implements Provider for the Anthropic messages API.
type ClaudeProvider struct {
	config     ClaudeConfig
	httpClient *http.Client
}

// NewClaudeProvider creates an Anthropic completion provider.
func NewClaudeProvider(config ClaudeConfig) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: claude api key is required", domain.ErrInvalidConfig)
	}
	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.AnthropicVersion == "" {
		config.AnthropicVersion = "2023-06-01"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}

	timeout := 45 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	return &ClaudeProvider{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (p *ClaudeProvider) Name() string  { return "anthropic" }
func (p *ClaudeProvider) Model() string { return p.config.Model }

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate runs one completion against the messages endpoint. The system
// message is lifted out of the message list, as the API requires.
func (p *ClaudeProvider) Generate(ctx context.Context, messages []ChatMessage) (*Result, error) {
	req := claudeRequest{
		Model:     p.config.Model,
		MaxTokens: p.config.MaxTokens,
	}
	for _, msg := range messages {
		if msg.Role == "system" {
			req.System = msg.Content
			continue
		}
		req.Messages = append(req.Messages, claudeMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claude request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", p.config.AnthropicVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("claude api error: malformed response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("claude api error: %s: %s", resp.Error.Type, resp.Error.Message)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("claude api error: status %d", httpResp.StatusCode)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("claude api error: empty content")
	}

	return &Result{
		Content:      resp.Content[0].Text,
		Provider:     p.Name(),
		Model:        p.config.Model,
		TokensUsed:   resp.Usage.InputTokens + resp.Usage.OutputTokens,
		FinishReason: resp.StopReason,
	}, nil
}
