package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/modelrelay/mcpchat/pkg/log"
)

// ScoredTool is a tool descriptor annotated with a keyword relevance score.
type ScoredTool struct {
	ToolDescriptor
	Score int `json:"relevance_score"`
}

// ServerStatus is the per-server view returned by status aggregation.
type ServerStatus struct {
	Enabled   bool     `json:"enabled"`
	Connected bool     `json:"connected"`
	Endpoint  string   `json:"endpoint"`
	ToolCount int      `json:"tool_count"`
	Tools     []string `json:"tools"`
}

// Manager owns the pool of protocol clients, one per configured server. It
// drives parallel connect/disconnect/health-check, aggregates the discovered
// tool catalog, and normalizes partial failures into uniform results.
type Manager struct {
	store  *ConfigStore
	logger *slog.Logger

	// opMu is the coarse lock around whole-of connect-all/disconnect-all
	// operations so concurrent batch mutations cannot interleave.
	opMu sync.Mutex

	// stateMu guards the client/connected/tool maps. connected and tools are
	// always mutated together: every connected server has a tools entry and
	// vice versa.
	stateMu   sync.RWMutex
	clients   map[string]*Client
	connected map[string]bool
	tools     map[string][]ToolDescriptor
	// serverOrder preserves discovery order for stable tool ranking.
	serverOrder []string
}

// NewManager creates an orchestrator over the given configuration store.
func NewManager(store *ConfigStore) *Manager {
	if store == nil {
		store = NewConfigStore("")
	}
	return &Manager{
		store:     store,
		logger:    log.WithComponent("mcp.manager"),
		clients:   map[string]*Client{},
		connected: map[string]bool{},
		tools:     map[string][]ToolDescriptor{},
	}
}

// Store exposes the configuration store for callers that manage server
// configurations (the HTTP layer).
func (m *Manager) Store() *ConfigStore { return m.store }

// Initialize loads configuration and connects to all enabled servers. Only
// configuration errors fail initialization; individual servers that cannot
// be reached are simply left unconnected.
func (m *Manager) Initialize(ctx context.Context, configPath string) error {
	if err := m.store.Load(configPath); err != nil {
		return fmt.Errorf("failed to initialize MCP manager: %w", err)
	}
	m.ConnectToServers(ctx)
	m.logger.Info("MCP manager initialized", "connected_servers", len(m.ConnectedServers()))
	return nil
}

// ConnectToServers connects to every enabled server that does not already
// have a client, all in parallel. A server whose connect fails is logged
// and left out of the connected set; it never aborts the others.
func (m *Manager) ConnectToServers(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	enabled := m.store.GetEnabled()
	if len(enabled) == 0 {
		m.logger.Info("no enabled MCP servers found")
		return
	}

	var targets []*Client
	m.stateMu.Lock()
	for _, cfg := range enabled {
		if _, exists := m.clients[cfg.Name]; exists {
			continue
		}
		client := NewClient(cfg)
		m.clients[cfg.Name] = client
		targets = append(targets, client)
	}
	m.stateMu.Unlock()

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, client := range targets {
		g.Go(func() error {
			m.connectSingle(gctx, client)
			return nil
		})
	}
	g.Wait()
}

// connectSingle connects one client and records the outcome. Connected
// servers and their tool caches are added together, never independently.
func (m *Manager) connectSingle(ctx context.Context, client *Client) {
	name := client.Config().Name
	if !client.Connect(ctx) {
		m.logger.Warn("failed to connect to MCP server", "server", name)
		return
	}

	tools := client.AvailableTools()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	m.store.SetAvailableTools(name, names)

	m.stateMu.Lock()
	m.connected[name] = true
	m.tools[name] = tools
	m.appendServerOrderLocked(name)
	m.stateMu.Unlock()
	m.logger.Info("connected to MCP server", "server", name, "tools", len(tools))
}

// DisconnectFromServers disconnects every client and clears all aggregate
// state.
func (m *Manager) DisconnectFromServers() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stateMu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.clients = map[string]*Client{}
	m.connected = map[string]bool{}
	m.tools = map[string][]ToolDescriptor{}
	m.serverOrder = nil
	m.stateMu.Unlock()

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Disconnect()
		}()
	}
	wg.Wait()
	m.logger.Info("disconnected from all MCP servers")
}

// ReconnectServer tears down and re-establishes one server's connection.
func (m *Manager) ReconnectServer(ctx context.Context, name string) bool {
	m.stateMu.Lock()
	client, exists := m.clients[name]
	if !exists {
		m.stateMu.Unlock()
		m.logger.Warn("cannot reconnect unknown server", "server", name)
		return false
	}
	m.evictLocked(name)
	m.stateMu.Unlock()

	client.Disconnect()
	m.connectSingle(ctx, client)

	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.connected[name]
}

// HealthCheckServers pings all connected servers in parallel. A server that
// fails its check is evicted from the connected set and its tool cache
// dropped; recovery happens by reconnect, not retry-in-place.
func (m *Manager) HealthCheckServers(ctx context.Context) map[string]bool {
	m.stateMu.RLock()
	targets := make(map[string]*Client, len(m.connected))
	for name := range m.connected {
		if client, ok := m.clients[name]; ok {
			targets[name] = client
		}
	}
	m.stateMu.RUnlock()

	results := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		return results
	}

	var resultsMu sync.Mutex
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for name, client := range targets {
		g.Go(func() error {
			healthy := client.HealthCheck(gctx)
			if !healthy {
				m.stateMu.Lock()
				m.evictLocked(name)
				m.stateMu.Unlock()
				m.logger.Warn("server failed health check", "server", name)
			}
			resultsMu.Lock()
			results[name] = healthy
			resultsMu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// evictLocked removes a server from the connected set and tool cache
// together. Callers hold stateMu.
func (m *Manager) evictLocked(name string) {
	delete(m.connected, name)
	delete(m.tools, name)
	for i, n := range m.serverOrder {
		if n == name {
			m.serverOrder = append(m.serverOrder[:i], m.serverOrder[i+1:]...)
			break
		}
	}
}

func (m *Manager) appendServerOrderLocked(name string) {
	for _, n := range m.serverOrder {
		if n == name {
			return
		}
	}
	m.serverOrder = append(m.serverOrder, name)
}

// ConnectedServers returns the names of currently connected servers in
// discovery order.
func (m *Manager) ConnectedServers() []string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return append([]string(nil), m.serverOrder...)
}

// AvailableTools returns a copy of the per-server tool catalog.
func (m *Manager) AvailableTools() map[string][]ToolDescriptor {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make(map[string][]ToolDescriptor, len(m.tools))
	for name, tools := range m.tools {
		out[name] = append([]ToolDescriptor(nil), tools...)
	}
	return out
}

// GetAllToolsFlat returns every known tool annotated with its server name,
// in discovery order.
func (m *Manager) GetAllToolsFlat() []ToolDescriptor {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	var out []ToolDescriptor
	for _, server := range m.serverOrder {
		for _, tool := range m.tools[server] {
			tool.ServerName = server
			out = append(out, tool)
		}
	}
	return out
}

// FindToolsByName returns all tools with an exact name match across servers.
func (m *Manager) FindToolsByName(name string) []ToolDescriptor {
	var out []ToolDescriptor
	for _, tool := range m.GetAllToolsFlat() {
		if tool.Name == name {
			out = append(out, tool)
		}
	}
	return out
}

// FindToolsByDescription scores every known tool against the keywords:
// +3 per keyword found in the tool name, +1 per keyword found in the
// description. Results are sorted by descending score; ties keep discovery
// order.
func (m *Manager) FindToolsByDescription(keywords []string) []ScoredTool {
	var matches []ScoredTool
	for _, tool := range m.GetAllToolsFlat() {
		name := strings.ToLower(tool.Name)
		description := strings.ToLower(tool.Description)

		score := 0
		for _, keyword := range keywords {
			kw := strings.ToLower(keyword)
			if strings.Contains(name, kw) {
				score += 3
			}
			if strings.Contains(description, kw) {
				score += 1
			}
		}
		if score > 0 {
			matches = append(matches, ScoredTool{ToolDescriptor: tool, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// SelectToolsForQuery tokenizes the query on whitespace, drops tokens of
// length <= 2, and returns the top maxTools scored matches.
func (m *Manager) SelectToolsForQuery(query string, maxTools int) []ScoredTool {
	if maxTools <= 0 {
		maxTools = 5
	}

	var keywords []string
	for _, word := range strings.Fields(query) {
		word = strings.TrimSpace(word)
		if len(word) > 2 {
			keywords = append(keywords, strings.ToLower(word))
		}
	}
	if len(keywords) == 0 {
		return nil
	}

	matches := m.FindToolsByDescription(keywords)
	if len(matches) > maxTools {
		matches = matches[:maxTools]
	}
	return matches
}

// CallTool validates and dispatches a single tool call. Connectivity and
// schema validation failures produce an immediate error ToolCall without
// touching the network.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, parameters map[string]any) *ToolCall {
	m.stateMu.RLock()
	isConnected := m.connected[serverName]
	client := m.clients[serverName]
	serverTools := m.tools[serverName]
	m.stateMu.RUnlock()

	if !isConnected {
		call := NewToolCall(serverName, toolName, parameters)
		call.MarkError(fmt.Sprintf("Server '%s' is not connected", serverName), 0)
		return call
	}
	if client == nil {
		call := NewToolCall(serverName, toolName, parameters)
		call.MarkError(fmt.Sprintf("Client for server '%s' not found", serverName), 0)
		return call
	}

	if err := validateAgainstCatalog(serverTools, serverName, toolName, parameters); err != nil {
		call := NewToolCall(serverName, toolName, parameters)
		call.MarkError(fmt.Sprintf("Parameter validation failed: %v", err), 0)
		return call
	}

	return client.CallTool(ctx, toolName, parameters)
}

// validateAgainstCatalog checks a call against the cached descriptor for
// the target tool. A tool with no schema passes.
func validateAgainstCatalog(serverTools []ToolDescriptor, serverName, toolName string, parameters map[string]any) error {
	var descriptor *ToolDescriptor
	for i := range serverTools {
		if serverTools[i].Name == toolName {
			descriptor = &serverTools[i]
			break
		}
	}
	if descriptor == nil {
		return fmt.Errorf("tool '%s' not found on server '%s'", toolName, serverName)
	}
	if parameters == nil {
		parameters = map[string]any{}
	}
	return descriptor.InputSchema.Validate(parameters)
}

// CallToolsParallel dispatches all calls concurrently. The result list has
// the same length and order as the input regardless of completion order or
// individual failures; a panicking call is converted to an error ToolCall
// in its slot.
func (m *Manager) CallToolsParallel(ctx context.Context, specs []CallSpec) []*ToolCall {
	if len(specs) == 0 {
		return nil
	}

	results := make([]*ToolCall, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					call := NewToolCall(spec.ServerName, spec.ToolName, spec.Parameters)
					call.MarkError(fmt.Sprintf("Tool call failed: %v", r), 0)
					results[i] = call
				}
			}()
			results[i] = m.CallTool(ctx, spec.ServerName, spec.ToolName, spec.Parameters)
		}()
	}
	wg.Wait()
	return results
}

// RefreshServerTools re-runs tool discovery for one connected server.
func (m *Manager) RefreshServerTools(ctx context.Context, name string) bool {
	m.stateMu.RLock()
	isConnected := m.connected[name]
	client := m.clients[name]
	m.stateMu.RUnlock()

	if !isConnected || client == nil {
		return false
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		m.logger.Error("failed to refresh tools", "server", name, "error", err)
		return false
	}

	m.stateMu.Lock()
	m.tools[name] = tools
	m.stateMu.Unlock()
	m.logger.Info("refreshed tools", "server", name, "count", len(tools))
	return true
}

// ServerStatus reports configuration and connection state for every
// configured server.
func (m *Manager) ServerStatus() map[string]ServerStatus {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	status := make(map[string]ServerStatus)
	for _, cfg := range m.store.GetAll() {
		tools := m.tools[cfg.Name]
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name)
		}
		status[cfg.Name] = ServerStatus{
			Enabled:   cfg.Enabled,
			Connected: m.connected[cfg.Name],
			Endpoint:  cfg.Endpoint,
			ToolCount: len(tools),
			Tools:     names,
		}
	}
	return status
}

// Shutdown disconnects all servers and releases resources.
func (m *Manager) Shutdown() {
	m.DisconnectFromServers()
	m.logger.Info("MCP manager shutdown complete")
}
