package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender values for chat messages.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message represents a single chat message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Sender         string    `json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
	ToolsUsed      []string  `json:"mcp_tools_used,omitempty"`
}

// NewMessage creates a message with a fresh id and timestamp. Content is
// trimmed; empty content is the caller's problem to reject up front.
func NewMessage(conversationID, content, sender string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        strings.TrimSpace(content),
		Sender:         sender,
		Timestamp:      time.Now().UTC(),
	}
}

// Validate checks the message fields that have hard constraints.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrInvalidInput
	}
	if m.Sender != SenderUser && m.Sender != SenderAssistant {
		return ErrInvalidInput
	}
	return nil
}

// Conversation is an append-only message log for one chat session.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation. A zero id gets a fresh uuid.
func NewConversation(id string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message, claiming it for this conversation.
func (c *Conversation) AddMessage(msg Message) {
	if msg.ConversationID != c.ID {
		msg.ConversationID = c.ID
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
}

// LatestMessage returns the most recent message, or nil for an empty log.
func (c *Conversation) LatestMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	latest := &c.Messages[0]
	for i := range c.Messages {
		if c.Messages[i].Timestamp.After(latest.Timestamp) {
			latest = &c.Messages[i]
		}
	}
	return latest
}

// ContextMessages returns up to limit of the most recent messages in
// chronological order, for building model context.
func (c *Conversation) ContextMessages(limit int) []Message {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}
