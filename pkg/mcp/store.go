package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/modelrelay/mcpchat/pkg/domain"
	"github.com/modelrelay/mcpchat/pkg/log"
)

// ConfigStore holds the declarative server configurations. Top-level JSON
// keys other than "servers" found at load time are preserved verbatim and
// written back on save.
type ConfigStore struct {
	mu       sync.RWMutex
	path     string
	servers  map[string]ServerConfig
	order    []string
	extraTop map[string]json.RawMessage
}

// NewConfigStore creates an empty store bound to a default file path.
func NewConfigStore(path string) *ConfigStore {
	if path == "" {
		path = "mcp_config.json"
	}
	return &ConfigStore{
		path:     path,
		servers:  map[string]ServerConfig{},
		extraTop: map[string]json.RawMessage{},
	}
}

// Load reads server configurations from a JSON file. A missing file is not
// an error: it yields an empty store with a logged warning. Any malformed
// document, invalid entry or duplicate name fails the whole load and leaves
// the store with zero servers.
func (s *ConfigStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		path = s.path
	} else {
		s.path = path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("MCP config file not found: %s, using empty configuration", path)
			s.reset()
			return nil
		}
		s.reset()
		return fmt.Errorf("%w: failed to read config file %s: %v", domain.ErrInvalidConfig, path, err)
	}

	if err := s.applyDocument(data); err != nil {
		s.reset()
		return fmt.Errorf("config file %s: %w", path, err)
	}
	log.Infof("Loaded %d MCP server configurations from %s", len(s.servers), path)
	return nil
}

// applyDocument parses and validates a full configuration document, and
// commits it only if every entry is valid.
func (s *ConfigStore) applyDocument(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidConfig, err)
	}

	var rawServers []json.RawMessage
	if raw, ok := top["servers"]; ok {
		if err := json.Unmarshal(raw, &rawServers); err != nil {
			return fmt.Errorf("%w: 'servers' must be a list", domain.ErrInvalidConfig)
		}
	}

	servers := make(map[string]ServerConfig, len(rawServers))
	order := make([]string, 0, len(rawServers))
	for i, raw := range rawServers {
		cfg := DefaultServerConfig()
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("%w: invalid server configuration at index %d: %v", domain.ErrInvalidConfig, i, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid server configuration at index %d: %w", i, err)
		}
		if _, exists := servers[cfg.Name]; exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateServer, cfg.Name)
		}
		servers[cfg.Name] = cfg
		order = append(order, cfg.Name)
	}

	extra := make(map[string]json.RawMessage, len(top))
	for k, v := range top {
		if k != "servers" {
			extra[k] = v
		}
	}

	s.servers = servers
	s.order = order
	s.extraTop = extra
	return nil
}

func (s *ConfigStore) reset() {
	s.servers = map[string]ServerConfig{}
	s.order = nil
	s.extraTop = map[string]json.RawMessage{}
}

// Save writes the current configurations plus any preserved top-level keys.
func (s *ConfigStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if path == "" {
		path = s.path
	}

	doc := s.exportLocked()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file %s: %w", path, err)
	}
	log.Infof("Saved %d MCP server configurations to %s", len(s.servers), path)
	return nil
}

// Export returns the configuration as a JSON-serializable document,
// including preserved unknown top-level keys.
func (s *ConfigStore) Export() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportLocked()
}

func (s *ConfigStore) exportLocked() map[string]any {
	servers := make([]ServerConfig, 0, len(s.order))
	for _, name := range s.order {
		cfg := s.servers[name]
		servers = append(servers, cfg.Clone())
	}
	doc := map[string]any{"servers": servers}
	for k, v := range s.extraTop {
		doc[k] = v
	}
	return doc
}

// Import replaces the store contents from an exported document. Nothing is
// applied if any entry is invalid.
func (s *ConfigStore) Import(doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyDocument(data); err != nil {
		return err
	}
	log.Infof("Imported %d MCP server configurations", len(s.servers))
	return nil
}

// Add registers a new server configuration.
func (s *ConfigStore) Add(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateServer, cfg.Name)
	}
	s.servers[cfg.Name] = cfg.Clone()
	s.order = append(s.order, cfg.Name)
	log.Infof("Added MCP server configuration: %s", cfg.Name)
	return nil
}

// Update replaces an existing configuration. The name is immutable across
// updates.
func (s *ConfigStore) Update(name string, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[name]; !exists {
		return fmt.Errorf("%w: %s", domain.ErrServerNotFound, name)
	}
	if cfg.Name != name {
		return fmt.Errorf("%w: server name cannot be changed during update", domain.ErrInvalidConfig)
	}
	s.servers[name] = cfg.Clone()
	log.Infof("Updated MCP server configuration: %s", name)
	return nil
}

// Remove deletes a configuration.
func (s *ConfigStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[name]; !exists {
		return fmt.Errorf("%w: %s", domain.ErrServerNotFound, name)
	}
	delete(s.servers, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.Infof("Removed MCP server configuration: %s", name)
	return nil
}

// Enable marks a server enabled.
func (s *ConfigStore) Enable(name string) error {
	return s.setEnabled(name, true)
}

// Disable marks a server disabled.
func (s *ConfigStore) Disable(name string) error {
	return s.setEnabled(name, false)
}

func (s *ConfigStore) setEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, exists := s.servers[name]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrServerNotFound, name)
	}
	cfg.Enabled = enabled
	s.servers[name] = cfg
	if enabled {
		log.Infof("Enabled MCP server: %s", name)
	} else {
		log.Infof("Disabled MCP server: %s", name)
	}
	return nil
}

// SetAvailableTools refreshes the cached tool-name list for a server.
// Unknown servers are ignored; the cache is advisory.
func (s *ConfigStore) SetAvailableTools(name string, tools []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, exists := s.servers[name]
	if !exists {
		return
	}
	cfg.AvailableTools = append([]string(nil), tools...)
	s.servers[name] = cfg
}

// Get returns a copy of one configuration.
func (s *ConfigStore) Get(name string) (ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.servers[name]
	if !ok {
		return ServerConfig{}, false
	}
	return cfg.Clone(), true
}

// Has reports whether a configuration exists.
func (s *ConfigStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.servers[name]
	return ok
}

// GetAll returns copies of all configurations in load/add order.
func (s *ConfigStore) GetAll() []ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServerConfig, 0, len(s.order))
	for _, name := range s.order {
		cfg := s.servers[name]
		out = append(out, cfg.Clone())
	}
	return out
}

// GetEnabled returns copies of the enabled configurations in load/add order.
func (s *ConfigStore) GetEnabled() []ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServerConfig, 0, len(s.order))
	for _, name := range s.order {
		if cfg := s.servers[name]; cfg.Enabled {
			out = append(out, cfg.Clone())
		}
	}
	return out
}

// Count returns the number of configured servers.
func (s *ConfigStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.servers)
}

// Names returns all server names in load/add order.
func (s *ConfigStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
