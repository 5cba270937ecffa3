// Package chat orchestrates the completion provider and the tool-server
// manager: it decides when a user message warrants tool calls, extracts
// arguments, runs the calls, and folds the results into the final reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelrelay/mcpchat/pkg/domain"
	"github.com/modelrelay/mcpchat/pkg/llm"
	"github.com/modelrelay/mcpchat/pkg/log"
	"github.com/modelrelay/mcpchat/pkg/mcp"
)

// toolKeywords gates tool selection: a message with none of these words
// never triggers tool calls. Substring match, deliberately coarse.
var toolKeywords = []string{
	"search", "find", "lookup", "get", "fetch", "retrieve",
	"weather", "temperature", "forecast",
	"file", "read", "write", "save", "open",
	"database", "query", "data", "information",
	"api", "call", "request", "http",
	"calculate", "compute", "math",
	"translate", "language",
	"time", "date", "schedule", "calendar",
}

// maxToolsPerMessage bounds how many tools one message may invoke.
const maxToolsPerMessage = 3

const fallbackResponse = "I'm experiencing some technical difficulties. Please try again later."

// hedgingPhrases mark a reply that likely failed to use the tool output.
var hedgingPhrases = []string{
	"i don't have", "i cannot", "i'm not able", "i don't know",
}

// Response is the outcome of processing one user message.
type Response struct {
	Response       string    `json:"response"`
	ConversationID string    `json:"conversation_id"`
	ToolsUsed      []string  `json:"mcp_tools_used"`
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"ai_provider"`
	Model          string    `json:"ai_model"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
}

// Status reports tool-server integration state for the status endpoint.
type Status struct {
	Available        bool                        `json:"available"`
	Servers          map[string]mcp.ServerStatus `json:"servers"`
	TotalTools       int                         `json:"total_tools"`
	ConnectedServers int                         `json:"connected_servers"`
}

// Health is the component-level health report.
type Health struct {
	ChatService bool           `json:"chat_service"`
	AIService   bool           `json:"ai_service"`
	MCPService  bool           `json:"mcp_service"`
	Details     map[string]any `json:"details"`
}

// Service wires the completion service, the tool-server manager, and the
// conversation store into the message processing flow. The manager may be
// nil, in which case every message goes straight to the provider.
type Service struct {
	llm       *llm.Service
	manager   *mcp.Manager
	store     *ConversationStore
	extractor ParameterExtractor
}

// NewService creates the orchestration service.
func NewService(llmService *llm.Service, manager *mcp.Manager) *Service {
	return &Service{
		llm:       llmService,
		manager:   manager,
		store:     NewConversationStore(),
		extractor: NewHeuristicExtractor(),
	}
}

// Conversations exposes the conversation store.
func (s *Service) Conversations() *ConversationStore { return s.store }

// ProcessMessage runs the full flow for one user message: record it, select
// and execute relevant tools, generate the reply with tool context, and
// record the assistant turn.
func (s *Service) ProcessMessage(ctx context.Context, message, conversationID string) (*Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", domain.ErrInvalidInput)
	}

	conversation := s.store.GetOrCreate(conversationID)
	log.Infof("processing message for conversation %s", conversation.ID)

	useTools, relevantTools := s.shouldUseTools(message)

	var results []*mcp.ToolCall
	var toolsUsed []string
	if useTools {
		names := make([]string, len(relevantTools))
		for i, tool := range relevantTools {
			names[i] = tool.Name
		}
		log.Infof("using tools: %v", names)

		results = s.executeTools(ctx, message, relevantTools, conversation)
		for _, result := range results {
			if result.Status == mcp.CallSuccess {
				toolsUsed = append(toolsUsed, result.ToolName)
			}
		}
	}

	aiResult := s.generateResponse(ctx, message, conversation, results)
	final := integrateResults(aiResult.Content, results)

	userMsg := domain.NewMessage(conversation.ID, message, domain.SenderUser)
	conversation.AddMessage(userMsg)
	assistantMsg := domain.NewMessage(conversation.ID, final, domain.SenderAssistant)
	assistantMsg.ToolsUsed = toolsUsed
	conversation.AddMessage(assistantMsg)

	return &Response{
		Response:       final,
		ConversationID: conversation.ID,
		ToolsUsed:      toolsUsed,
		Timestamp:      time.Now().UTC(),
		Provider:       aiResult.Provider,
		Model:          aiResult.Model,
		TokensUsed:     aiResult.TokensUsed,
	}, nil
}

// shouldUseTools applies the keyword gate, then ranks the catalog against
// the message. Both checks must pass for tools to run.
func (s *Service) shouldUseTools(message string) (bool, []mcp.ScoredTool) {
	if s.manager == nil {
		return false, nil
	}

	lower := strings.ToLower(message)
	hasKeyword := false
	for _, keyword := range toolKeywords {
		if strings.Contains(lower, keyword) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false, nil
	}

	relevant := s.manager.SelectToolsForQuery(message, maxToolsPerMessage)
	if len(relevant) == 0 {
		log.Info("no relevant tools found for the query")
		return false, nil
	}
	log.Infof("found %d relevant tools", len(relevant))
	return true, relevant
}

// executeTools extracts parameters for each selected tool and runs the calls
// in parallel. Failures come back as error-status calls, never as an error.
func (s *Service) executeTools(ctx context.Context, message string, tools []mcp.ScoredTool, conversation *domain.Conversation) []*mcp.ToolCall {
	specs := make([]mcp.CallSpec, 0, len(tools))
	for _, tool := range tools {
		if tool.ServerName == "" || tool.Name == "" {
			log.Warnf("invalid tool descriptor: %+v", tool.ToolDescriptor)
			continue
		}
		specs = append(specs, mcp.CallSpec{
			ServerName: tool.ServerName,
			ToolName:   tool.Name,
			Parameters: s.extractor.Extract(message, tool.ToolDescriptor, conversation),
		})
	}
	if len(specs) == 0 {
		return nil
	}

	results := s.manager.CallToolsParallel(ctx, specs)
	for _, result := range results {
		if result.Status == mcp.CallSuccess {
			log.Infof("tool %s executed successfully", result.ToolName)
		} else {
			log.Warnf("tool %s failed: %s", result.ToolName, result.Error)
		}
	}
	return results
}

// generateResponse calls the completion provider with tool output folded
// into the context. Provider failures degrade to a canned fallback reply.
func (s *Service) generateResponse(ctx context.Context, message string, conversation *domain.Conversation, results []*mcp.ToolCall) *llm.Result {
	var contextParts []string
	for _, result := range results {
		if result.Status == mcp.CallSuccess && result.Result != nil {
			contextParts = append(contextParts,
				fmt.Sprintf("Tool '%s' returned: %s", result.ToolName, truncate(stringify(result.Result), 500)))
		}
	}
	additionalContext := ""
	if len(contextParts) > 0 {
		additionalContext = "Available information from tools:\n" + strings.Join(contextParts, "\n")
	}

	aiResult, err := s.llm.GenerateResponse(ctx, message, conversation, additionalContext)
	if err != nil {
		log.Errf("completion error: %v", err)
		return &llm.Result{
			Content:  fallbackResponse,
			Provider: "fallback",
			Model:    "none",
		}
	}
	return aiResult
}

// integrateResults appends successful tool output when the generated reply
// is too short or hedges, so the user still sees what the tools found.
func integrateResults(aiResponse string, results []*mcp.ToolCall) string {
	if len(results) == 0 {
		return aiResponse
	}

	hedging := false
	lower := strings.ToLower(aiResponse)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			hedging = true
			break
		}
	}
	if len(strings.TrimSpace(aiResponse)) >= 50 && !hedging {
		return aiResponse
	}

	var successful []*mcp.ToolCall
	for _, result := range results {
		if result.Status == mcp.CallSuccess && result.Result != nil {
			successful = append(successful, result)
		}
	}
	if len(successful) == 0 {
		return aiResponse
	}

	var b strings.Builder
	b.WriteString(aiResponse)
	b.WriteString("\n\nHere's what I found using available tools:\n")
	for _, result := range successful {
		text := stringify(result.Result)
		b.WriteString(fmt.Sprintf("\n• %s: %s", result.ToolName, truncate(text, 200)))
		if len(text) > 200 {
			b.WriteString("...")
		}
	}
	return b.String()
}

// MCPStatus reports the tool integration state.
func (s *Service) MCPStatus() Status {
	if s.manager == nil {
		return Status{Servers: map[string]mcp.ServerStatus{}}
	}

	servers := s.manager.ServerStatus()
	status := Status{
		Available: true,
		Servers:   servers,
	}
	for _, server := range servers {
		status.TotalTools += server.ToolCount
		if server.Connected {
			status.ConnectedServers++
		}
	}
	return status
}

// AvailableTools returns the flattened tool catalog.
func (s *Service) AvailableTools() []mcp.ToolDescriptor {
	if s.manager == nil {
		return nil
	}
	return s.manager.GetAllToolsFlat()
}

// HealthCheck probes the completion service and every connected tool server.
func (s *Service) HealthCheck(ctx context.Context) Health {
	health := Health{
		ChatService: true,
		Details:     make(map[string]any),
	}

	providers := s.llm.AvailableProviders()
	health.AIService = len(providers) > 0
	health.Details["ai_providers"] = providers

	if s.manager != nil {
		serverHealth := s.manager.HealthCheckServers(ctx)
		healthy := 0
		for _, ok := range serverHealth {
			if ok {
				healthy++
			}
		}
		health.MCPService = healthy > 0
		health.Details["mcp_servers"] = serverHealth
	}

	return health
}

// IsInvalidInput reports whether err stems from bad request input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput)
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
