package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modelrelay/mcpchat/pkg/domain"
	"github.com/modelrelay/mcpchat/pkg/log"
)

// Connection transport kinds for a protocol client.
const (
	ConnectionNone   = "none"
	ConnectionHTTP   = "http"
	ConnectionSocket = "socket"
)

// healthCheckTimeout is the fixed short window for ping probes.
const healthCheckTimeout = 5 * time.Second

// errTimeout marks a request that ran out of its configured window.
var errTimeout = errors.New("request timed out")

// Client speaks JSON-RPC to a single MCP tool server over either an HTTP
// session or a persistent WebSocket. One client owns one server's transport
// state; the orchestrator never reaches into it.
type Client struct {
	config ServerConfig
	logger *slog.Logger

	mu         sync.Mutex
	connType   string
	connected  bool
	httpClient *http.Client
	ws         *websocket.Conn

	// wsMu serializes request/response exchanges on the socket transport:
	// the design allows at most one outstanding request per connection.
	wsMu sync.Mutex

	requestSeq atomic.Int64

	serverInfo map[string]any
	tools      []ToolDescriptor
}

// NewClient creates a disconnected client for one server configuration.
func NewClient(cfg ServerConfig) *Client {
	return &Client{
		config:   cfg.Clone(),
		logger:   log.WithComponent("mcp.client").With(slog.String("server", cfg.Name)),
		connType: ConnectionNone,
	}
}

// Config returns a copy of the client's server configuration.
func (c *Client) Config() ServerConfig { return c.config.Clone() }

// IsConnected reports whether the client holds a live transport.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ConnectionType returns the active transport kind.
func (c *Client) ConnectionType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connType
}

// Connect opens the transport, performs the initialize handshake and tool
// discovery, and reports success as a boolean. It never panics and never
// leaves a half-open transport behind on failure: any error resets the
// client to the disconnected state.
func (c *Client) Connect(ctx context.Context) bool {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		c.logger.Error("invalid endpoint", "endpoint", c.config.Endpoint, "error", err)
		return false
	}

	switch u.Scheme {
	case "ws", "wss":
		err = c.connectWebSocket(ctx)
	case "http", "https":
		err = c.connectHTTP()
	default:
		err = fmt.Errorf("unsupported protocol: %s", u.Scheme)
	}
	if err != nil {
		c.logger.Error("failed to connect to MCP server", "error", err)
		c.teardown()
		return false
	}

	if err := c.initializeConnection(ctx); err != nil {
		c.logger.Error("connection initialization failed", "error", err)
		c.teardown()
		return false
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("connected to MCP server", "transport", c.connType, "tools", len(c.tools))
	return true
}

func (c *Client) connectWebSocket(ctx context.Context) error {
	header := http.Header{}
	if key, ok := c.config.Authentication["api_key"]; ok && key != "" {
		header.Set("Authorization", "Bearer "+key)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.RequestTimeout()}
	conn, resp, err := dialer.DialContext(ctx, c.config.Endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	c.mu.Lock()
	c.ws = conn
	c.connType = ConnectionSocket
	c.mu.Unlock()
	return nil
}

func (c *Client) connectHTTP() error {
	transport := http.DefaultTransport
	if key, ok := c.config.Authentication["api_key"]; ok && key != "" {
		transport = &headerTransport{
			headers: map[string]string{"Authorization": "Bearer " + key},
			base:    http.DefaultTransport,
		}
	}

	c.mu.Lock()
	c.httpClient = &http.Client{Transport: transport}
	c.connType = ConnectionHTTP
	c.mu.Unlock()
	return nil
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// initializeConnection runs the handshake: initialize request, initialized
// notification, then tool discovery. A discovery failure is tolerated and
// leaves the client with zero tools.
func (c *Client) initializeConnection(ctx context.Context) error {
	result, err := c.sendRequest(ctx, methodInitialize, initializeParams(), c.config.RequestTimeout())
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var info map[string]any
	if err := json.Unmarshal(result, &info); err == nil {
		c.serverInfo = info
	}

	c.sendNotification(ctx, methodInitialized, nil)
	c.discoverTools(ctx)
	return nil
}

// discoverTools refreshes the cached tool catalog. Errors are logged and
// treated as "zero tools", never as a connect failure.
func (c *Client) discoverTools(ctx context.Context) {
	result, err := c.sendRequest(ctx, methodListTools, map[string]any{}, c.config.RequestTimeout())
	if err != nil {
		c.logger.Warn("tool discovery failed", "error", err)
		c.tools = nil
		return
	}

	var parsed listToolsResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		c.logger.Warn("malformed tools/list response", "error", err)
		c.tools = nil
		return
	}

	c.tools = parsed.Tools
	names := make([]string, 0, len(parsed.Tools))
	for _, tool := range parsed.Tools {
		if tool.Name != "" {
			names = append(names, tool.Name)
		}
	}
	c.config.AvailableTools = names
	c.logger.Info("discovered tools", "count", len(names), "tools", names)
}

// ListTools refreshes and returns the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, c.config.Name)
	}

	result, err := c.sendRequest(ctx, methodListTools, map[string]any{}, c.config.RequestTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	var parsed listToolsResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("malformed tools/list response: %w", err)
	}
	c.tools = parsed.Tools
	return append([]ToolDescriptor(nil), parsed.Tools...), nil
}

// AvailableTools returns a copy of the cached tool catalog.
func (c *Client) AvailableTools() []ToolDescriptor {
	return append([]ToolDescriptor(nil), c.tools...)
}

// ServerInfo returns the serverInfo payload from the initialize handshake.
func (c *Client) ServerInfo() map[string]any {
	out := make(map[string]any, len(c.serverInfo))
	for k, v := range c.serverInfo {
		out[k] = v
	}
	return out
}

// CallTool invokes a tool and always returns the call in a terminal state.
// It never returns an error: connection problems, RPC errors and timeouts
// are folded into the ToolCall status.
func (c *Client) CallTool(ctx context.Context, toolName string, parameters map[string]any) *ToolCall {
	call := NewToolCall(c.config.Name, toolName, parameters)

	if !c.IsConnected() {
		call.MarkError("Not connected to MCP server", 0)
		return call
	}

	start := time.Now()
	result, err := c.sendRequest(ctx, methodCallTool, map[string]any{
		"name":      toolName,
		"arguments": parameters,
	}, c.config.RequestTimeout())
	elapsed := time.Since(start)

	switch {
	case err == nil:
		var payload any
		if len(result) > 0 {
			if uerr := json.Unmarshal(result, &payload); uerr != nil {
				call.MarkError(fmt.Sprintf("malformed result payload: %v", uerr), elapsed)
				return call
			}
		}
		call.MarkSuccess(payload, elapsed)
	case isTimeout(err):
		call.MarkTimeout(elapsed)
	default:
		call.MarkError(err.Error(), elapsed)
	}
	return call
}

// HealthCheck sends a best-effort ping with a short fixed timeout. Every
// kind of failure collapses to false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.IsConnected() {
		return false
	}
	_, err := c.sendRequest(ctx, methodPing, map[string]any{}, healthCheckTimeout)
	if err != nil {
		c.logger.Warn("health check failed", "error", err)
		return false
	}
	return true
}

// Disconnect closes whichever transport is open and fully resets state.
// It is idempotent and never returns an error: close failures are logged
// and the state reset proceeds regardless.
func (c *Client) Disconnect() {
	c.mu.Lock()
	ws := c.ws
	httpClient := c.httpClient
	wasConnected := c.connected
	c.ws = nil
	c.httpClient = nil
	c.connected = false
	c.connType = ConnectionNone
	c.mu.Unlock()

	if ws != nil {
		if err := ws.Close(); err != nil {
			c.logger.Warn("error closing websocket", "error", err)
		}
	}
	if httpClient != nil {
		httpClient.CloseIdleConnections()
	}
	if wasConnected {
		c.logger.Info("disconnected from MCP server")
	}
}

func (c *Client) teardown() {
	c.Disconnect()
}

func (c *Client) nextRequestID() string {
	return fmt.Sprintf("%s-%d", c.config.Name, c.requestSeq.Add(1))
}

// sendRequest issues one correlated JSON-RPC request under the given
// timeout and returns the raw result payload. An RPC-level error object is
// returned as a *rpcError; a missed deadline is reported as errTimeout.
func (c *Client) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	req := newRequest(c.nextRequestID(), method, params)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.mu.Lock()
	connType := c.connType
	ws := c.ws
	httpClient := c.httpClient
	c.mu.Unlock()

	var resp *rpcResponse
	var err error
	switch connType {
	case ConnectionSocket:
		resp, err = c.sendWebSocketRequest(ctx, ws, req)
	case ConnectionHTTP:
		resp, err = c.sendHTTPRequest(ctx, httpClient, req)
	default:
		return nil, domain.ErrNotConnected
	}
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", errTimeout, timeout)
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// sendNotification fires a JSON-RPC notification and does not await any
// response. Failures are logged and swallowed.
func (c *Client) sendNotification(ctx context.Context, method string, params any) {
	note := rpcNotification{JSONRPC: "2.0", Method: method, Params: params}

	c.mu.Lock()
	connType := c.connType
	ws := c.ws
	httpClient := c.httpClient
	c.mu.Unlock()

	var err error
	switch connType {
	case ConnectionSocket:
		c.wsMu.Lock()
		err = ws.WriteJSON(note)
		c.wsMu.Unlock()
	case ConnectionHTTP:
		var body []byte
		body, err = json.Marshal(note)
		if err == nil {
			var httpReq *http.Request
			httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
			if err == nil {
				httpReq.Header.Set("Content-Type", "application/json")
				var httpResp *http.Response
				httpResp, err = httpClient.Do(httpReq)
				if httpResp != nil {
					io.Copy(io.Discard, httpResp.Body)
					httpResp.Body.Close()
				}
			}
		}
	}
	if err != nil {
		c.logger.Warn("failed to send notification", "method", method, "error", err)
	}
}

// sendWebSocketRequest performs one request/response exchange on the
// persistent socket. Exchanges are serialized: a single connection carries
// at most one in-flight request, so responses are matched to the request id
// while skipping unrelated server-initiated messages.
func (c *Client) sendWebSocketRequest(ctx context.Context, ws *websocket.Conn, req rpcRequest) (*rpcResponse, error) {
	if ws == nil {
		return nil, fmt.Errorf("%w: websocket not connected", domain.ErrNotConnected)
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	deadline := time.Now().Add(c.config.RequestTimeout())
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := ws.WriteJSON(req); err != nil {
		c.markConnectionLost()
		return nil, fmt.Errorf("websocket connection lost: %w", err)
	}

	if err := ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				return nil, errTimeout
			}
			c.markConnectionLost()
			return nil, fmt.Errorf("websocket connection lost: %w", err)
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("invalid JSON response: %w", err)
		}
		if resp.ID == "" {
			// Server-initiated notification; not the reply we are waiting for.
			continue
		}
		if resp.ID != req.ID {
			c.logger.Warn("dropping response with unexpected id", "want", req.ID, "got", resp.ID)
			continue
		}
		return &resp, nil
	}
}

func (c *Client) sendHTTPRequest(ctx context.Context, httpClient *http.Client, req rpcRequest) (*rpcResponse, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("%w: HTTP session not available", domain.ErrNotConnected)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		io.Copy(io.Discard, httpResp.Body)
		return nil, fmt.Errorf("HTTP request failed: status %d", httpResp.StatusCode)
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return &resp, nil
}

// markConnectionLost flips the connected flag after a transport failure so
// subsequent calls fail fast instead of writing to a dead socket.
func (c *Client) markConnectionLost() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
