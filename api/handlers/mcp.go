package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modelrelay/mcpchat/pkg/chat"
	"github.com/modelrelay/mcpchat/pkg/domain"
	"github.com/modelrelay/mcpchat/pkg/mcp"
)

// MCPHandler serves tool-server management and status endpoints.
type MCPHandler struct {
	chat    *chat.Service
	manager *mcp.Manager
}

// NewMCPHandler creates a tool-server handler.
func NewMCPHandler(chatService *chat.Service, manager *mcp.Manager) *MCPHandler {
	return &MCPHandler{chat: chatService, manager: manager}
}

// Status reports per-server connection and tool counts.
func (h *MCPHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.chat.MCPStatus())
}

// ListTools returns the flattened tool catalog across all servers.
func (h *MCPHandler) ListTools(c *gin.Context) {
	tools := h.chat.AvailableTools()
	if tools == nil {
		tools = []mcp.ToolDescriptor{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools, "count": len(tools)})
}

// ListServers returns every configured server.
func (h *MCPHandler) ListServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"servers": h.manager.Store().GetAll()})
}

// AddServer registers a new server configuration.
func (h *MCPHandler) AddServer(c *gin.Context) {
	config := mcp.DefaultServerConfig()
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.Store().Add(config); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrDuplicateServer) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.Store().Save(""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "added", "name": config.Name})
}

// UpdateServer replaces a server configuration. The name is immutable.
func (h *MCPHandler) UpdateServer(c *gin.Context) {
	name := c.Param("name")

	config := mcp.DefaultServerConfig()
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	config.Name = name

	if err := h.manager.Store().Update(name, config); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrServerNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.Store().Save(""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated", "name": name})
}

// RemoveServer deletes a server configuration.
func (h *MCPHandler) RemoveServer(c *gin.Context) {
	name := c.Param("name")

	if err := h.manager.Store().Remove(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.Store().Save(""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed", "name": name})
}

// EnableServer marks a server eligible for connection.
func (h *MCPHandler) EnableServer(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableServer excludes a server from connection.
func (h *MCPHandler) DisableServer(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *MCPHandler) setEnabled(c *gin.Context, enabled bool) {
	name := c.Param("name")

	var err error
	if enabled {
		err = h.manager.Store().Enable(name)
	} else {
		err = h.manager.Store().Disable(name)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.Store().Save(""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "enabled": enabled})
}

// ReconnectServer tears down and re-establishes one server connection.
func (h *MCPHandler) ReconnectServer(c *gin.Context) {
	name := c.Param("name")

	if !h.manager.Store().Has(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found: " + name})
		return
	}

	connected := h.manager.ReconnectServer(c.Request.Context(), name)
	c.JSON(http.StatusOK, gin.H{"name": name, "connected": connected})
}

// CallTool invokes one tool on one server and returns the call record.
func (h *MCPHandler) CallTool(c *gin.Context) {
	var req struct {
		ServerName string         `json:"server_name" binding:"required"`
		ToolName   string         `json:"tool_name" binding:"required"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.manager.CallTool(c.Request.Context(), req.ServerName, req.ToolName, req.Parameters)
	c.JSON(http.StatusOK, result)
}

// ExportConfig returns the server configuration document.
func (h *MCPHandler) ExportConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Store().Export())
}

// ImportConfig replaces the server configuration from an uploaded document.
func (h *MCPHandler) ImportConfig(c *gin.Context) {
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.Store().Import(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.Store().Save(""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "imported", "count": h.manager.Store().Count()})
}
