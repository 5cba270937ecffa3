package llm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/modelrelay/mcpchat/pkg/domain"
)

// OpenAIConfig configures the OpenAI-compatible provider. A custom BaseURL
// points the same client at any compatible endpoint.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// OpenAIProvider implements Provider for OpenAI-compatible services.
type OpenAIProvider struct {
	client openai.Client
	config OpenAIConfig
}

// NewOpenAIProvider creates an OpenAI-compatible completion provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", domain.ErrInvalidConfig)
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		config: config,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.config.Model }

// Generate runs one chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []ChatMessage) (*Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.config.Model),
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: openai.Int(int64(p.config.MaxTokens)),
		Temperature:         openai.Float(p.config.Temperature),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai api error: no choices returned")
	}

	choice := completion.Choices[0]
	return &Result{
		Content:      choice.Message.Content,
		Provider:     p.Name(),
		Model:        p.config.Model,
		TokensUsed:   int(completion.Usage.TotalTokens),
		FinishReason: string(choice.FinishReason),
	}, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
