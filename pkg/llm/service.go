// Package llm provides the completion capability: a small service routing
// role-tagged message lists to a configured language-model provider.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/modelrelay/mcpchat/pkg/domain"
	"github.com/modelrelay/mcpchat/pkg/log"
)

// ChatMessage is one role-tagged entry of a completion request.
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Result is the provider's generated text plus usage metadata.
type Result struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Provider generates completions for a message list. Implementations wrap
// one upstream model API.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, messages []ChatMessage) (*Result, error)
}

// systemPrompt is the base system message for every completion.
const systemPrompt = "You are a helpful AI assistant."

// contextMessageLimit bounds how much conversation history is replayed to
// the provider.
const contextMessageLimit = 10

// Service selects among configured providers and builds completion context
// from conversation history.
type Service struct {
	providers map[string]Provider
	order     []string
	active    string
	timeout   time.Duration
}

// NewService creates a completion service. The first registered provider is
// active by default.
func NewService(timeout time.Duration, providers ...Provider) (*Service, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no completion providers configured", domain.ErrProviderNotFound)
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		timeout:   timeout,
	}
	for _, p := range providers {
		if _, dup := s.providers[p.Name()]; dup {
			continue
		}
		s.providers[p.Name()] = p
		s.order = append(s.order, p.Name())
	}
	s.active = s.order[0]
	log.Infof("completion service initialized with providers %v, active=%s", s.order, s.active)
	return s, nil
}

// AvailableProviders returns the registered provider names in order.
func (s *Service) AvailableProviders() []string {
	return append([]string(nil), s.order...)
}

// ActiveProvider returns the currently selected provider name.
func (s *Service) ActiveProvider() string { return s.active }

// SwitchProvider selects a different registered provider.
func (s *Service) SwitchProvider(name string) error {
	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
	}
	s.active = name
	log.Infof("switched completion provider to %s", name)
	return nil
}

// BuildContext assembles the message list for a completion: the system
// prompt (with optional additional context folded in) followed by the most
// recent conversation history.
func (s *Service) BuildContext(conversation *domain.Conversation, additionalContext string) []ChatMessage {
	system := systemPrompt
	if additionalContext != "" {
		system += "\n\nAdditional context: " + additionalContext
	}

	messages := []ChatMessage{{Role: "system", Content: system}}
	if conversation != nil {
		for _, msg := range conversation.ContextMessages(contextMessageLimit) {
			role := "assistant"
			if msg.Sender == domain.SenderUser {
				role = "user"
			}
			messages = append(messages, ChatMessage{Role: role, Content: msg.Content})
		}
	}
	return messages
}

// GenerateResponse runs one completion for the prompt under the service
// timeout, with conversation history and optional tool context included.
func (s *Service) GenerateResponse(ctx context.Context, prompt string, conversation *domain.Conversation, additionalContext string) (*Result, error) {
	provider, ok := s.providers[s.active]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, s.active)
	}

	messages := s.BuildContext(conversation, additionalContext)
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := provider.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	return result, nil
}
