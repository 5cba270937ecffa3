// Package handlers contains the HTTP request handlers for the API surface.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modelrelay/mcpchat/pkg/chat"
)

const apiVersion = "1.0.0"

// maxMessageLength bounds accepted chat messages.
const maxMessageLength = 10000

// ChatHandler serves the chat and health endpoints.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler creates a chat handler.
func NewChatHandler(chatService *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// Chat processes one user message and returns the generated reply.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Message) > maxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message exceeds maximum length"})
		return
	}

	resp, err := h.chat.ProcessMessage(c.Request.Context(), req.Message, req.ConversationID)
	if err != nil {
		if chat.IsInvalidInput(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process chat message"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Health reports API liveness plus component health.
func (h *ChatHandler) Health(c *gin.Context) {
	health := h.chat.HealthCheck(c.Request.Context())

	status := "healthy"
	if !health.AIService {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": float64(time.Now().UnixMilli()) / 1000,
		"version":   apiVersion,
		"details":   health,
	})
}
