package mcp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modelrelay/mcpchat/pkg/domain"
)

// ServerConfig describes one reachable MCP tool server. The endpoint scheme
// selects the transport: ws/wss for a persistent socket, http/https for
// request/response.
type ServerConfig struct {
	Name           string            `json:"name"`
	Endpoint       string            `json:"endpoint"`
	Authentication map[string]string `json:"authentication"`
	AvailableTools []string          `json:"available_tools"`
	Enabled        bool              `json:"enabled"`
	Timeout        int               `json:"timeout"`
	MaxRetries     int               `json:"max_retries"`
}

// DefaultServerConfig returns a config with the field defaults applied by
// the loader before validation.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Authentication: map[string]string{},
		AvailableTools: []string{},
		Enabled:        true,
		Timeout:        30,
		MaxRetries:     3,
	}
}

// Validate checks the hard constraints on a server configuration.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidConfig)
	}
	for _, r := range c.Name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: name %q must contain only alphanumeric characters, hyphens, and underscores", domain.ErrInvalidConfig, c.Name)
		}
	}
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", domain.ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries cannot be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Clone returns a deep copy so callers cannot mutate store state through a
// returned view.
func (c *ServerConfig) Clone() ServerConfig {
	out := *c
	out.Authentication = make(map[string]string, len(c.Authentication))
	for k, v := range c.Authentication {
		out.Authentication[k] = v
	}
	out.AvailableTools = append([]string(nil), c.AvailableTools...)
	return out
}

// ToolDescriptor is a tool's declared name, description and input schema as
// discovered from a server. It is cached per server and may be stale until
// the next refresh.
type ToolDescriptor struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema *InputSchema `json:"inputSchema,omitempty"`

	// ServerName is filled in when descriptors are flattened across servers.
	ServerName string `json:"server_name,omitempty"`
}

// CallStatus is the lifecycle state of a tool call.
type CallStatus string

const (
	CallPending CallStatus = "pending"
	CallSuccess CallStatus = "success"
	CallError   CallStatus = "error"
	CallTimeout CallStatus = "timeout"
)

// timeoutErrorMessage is the fixed error text for timed-out calls.
const timeoutErrorMessage = "Tool call timed out"

// ToolCall tracks one tool invocation attempt to a terminal outcome. Exactly
// one of Result/Error is set once the call is terminal, and a terminal call
// never transitions again.
type ToolCall struct {
	ID            string         `json:"id"`
	ServerName    string         `json:"server_name"`
	ToolName      string         `json:"tool_name"`
	Parameters    map[string]any `json:"parameters"`
	Result        any            `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
	Status        CallStatus     `json:"status"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewToolCall creates a pending tool call.
func NewToolCall(serverName, toolName string, parameters map[string]any) *ToolCall {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return &ToolCall{
		ID:         uuid.NewString(),
		ServerName: serverName,
		ToolName:   toolName,
		Parameters: parameters,
		Status:     CallPending,
		Timestamp:  time.Now().UTC(),
	}
}

// Terminal reports whether the call has reached a terminal status.
func (t *ToolCall) Terminal() bool {
	return t.Status == CallSuccess || t.Status == CallError || t.Status == CallTimeout
}

// MarkSuccess records a successful result. No-op on a terminal call.
func (t *ToolCall) MarkSuccess(result any, elapsed time.Duration) {
	if t.Terminal() {
		return
	}
	t.Result = result
	t.Error = ""
	t.ExecutionTime = elapsed.Seconds()
	t.Status = CallSuccess
}

// MarkError records a failure. No-op on a terminal call.
func (t *ToolCall) MarkError(message string, elapsed time.Duration) {
	if t.Terminal() {
		return
	}
	t.Error = message
	t.Result = nil
	t.ExecutionTime = elapsed.Seconds()
	t.Status = CallError
}

// MarkTimeout records a timeout with the fixed timeout message. No-op on a
// terminal call.
func (t *ToolCall) MarkTimeout(elapsed time.Duration) {
	if t.Terminal() {
		return
	}
	t.Error = timeoutErrorMessage
	t.Result = nil
	t.ExecutionTime = elapsed.Seconds()
	t.Status = CallTimeout
}

// CallSpec is one entry of a parallel tool-call batch.
type CallSpec struct {
	ServerName string         `json:"server_name"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}
