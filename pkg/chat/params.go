package chat

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/modelrelay/mcpchat/pkg/domain"
	"github.com/modelrelay/mcpchat/pkg/mcp"
)

// ParameterExtractor derives tool call arguments from a user message and a
// tool's declared input schema. Swapping the implementation changes the
// argument strategy without touching the orchestration flow.
type ParameterExtractor interface {
	Extract(message string, tool mcp.ToolDescriptor, conversation *domain.Conversation) map[string]any
}

var (
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`in ([A-Z][a-z]+(?: [A-Z][a-z]+)*)`),
		regexp.MustCompile(`at ([A-Z][a-z]+(?: [A-Z][a-z]+)*)`),
		regexp.MustCompile(`for ([A-Z][a-z]+(?: [A-Z][a-z]+)*)`),
	}

	dayPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*days?`),
		regexp.MustCompile(`(\d+)-day`),
		regexp.MustCompile(`(\d+)\s*d\b`),
	}
)

// HeuristicExtractor fills parameters from common property-name conventions:
// query-like and text-like properties receive the raw message, locations are
// pulled out with capitalized-phrase patterns, numeric limits get a default,
// enums take their first value.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates the default parameter extractor.
func NewHeuristicExtractor() *HeuristicExtractor { return &HeuristicExtractor{} }

// Extract builds the parameter map for one tool invocation.
func (e *HeuristicExtractor) Extract(message string, tool mcp.ToolDescriptor, conversation *domain.Conversation) map[string]any {
	parameters := make(map[string]any)
	if tool.InputSchema == nil {
		return parameters
	}
	properties := tool.InputSchema.Properties

	for name, prop := range properties {
		switch lower := strings.ToLower(name); {
		case lower == "query" || lower == "q" || lower == "search" || lower == "term":
			parameters[name] = message
		case lower == "text" || lower == "content" || lower == "input":
			parameters[name] = message
		case lower == "location" || lower == "city":
			location := extractLocation(message)
			if location == "" && conversation != nil {
				location = extractLocationFromConversation(conversation)
			}
			if location != "" {
				parameters[name] = location
			}
		case (lower == "limit" || lower == "count" || lower == "max") && isNumericType(prop.Type):
			parameters[name] = 5
		case (lower == "format" || lower == "type") && len(prop.Enum) > 0:
			parameters[name] = prop.Enum[0]
		case lower == "days" && isNumericType(prop.Type):
			if days, ok := extractDays(message); ok {
				parameters[name] = days
			}
		}
	}

	// Fall back to treating the whole message as the query.
	if len(parameters) == 0 {
		if _, ok := properties["query"]; ok {
			parameters["query"] = message
		} else if len(properties) == 1 {
			for name := range properties {
				parameters[name] = message
			}
		}
	}

	return parameters
}

func isNumericType(t string) bool {
	return t == mcp.TypeInteger || t == mcp.TypeNumber
}

func extractLocation(message string) string {
	for _, pattern := range locationPatterns {
		if match := pattern.FindStringSubmatch(message); match != nil {
			return match[1]
		}
	}
	return ""
}

// extractLocationFromConversation scans the last five messages, most recent
// first, for a location mention.
func extractLocationFromConversation(conversation *domain.Conversation) string {
	messages := conversation.Messages
	if len(messages) > 5 {
		messages = messages[len(messages)-5:]
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if location := extractLocation(messages[i].Content); location != "" {
			return location
		}
	}
	return ""
}

func extractDays(message string) (int, bool) {
	lower := strings.ToLower(message)
	for _, pattern := range dayPatterns {
		if match := pattern.FindStringSubmatch(lower); match != nil {
			if days, err := strconv.Atoi(match[1]); err == nil {
				return days, true
			}
		}
	}
	if strings.Contains(lower, "tomorrow") {
		return 1, true
	}
	if strings.Contains(lower, "week") {
		return 7, true
	}
	return 0, false
}
