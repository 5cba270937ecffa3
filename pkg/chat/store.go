package chat

import (
	"sync"

	"github.com/modelrelay/mcpchat/pkg/domain"
)

// ConversationStore is an in-memory conversation log, keyed by id. It is safe
// for concurrent use by request handlers.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*domain.Conversation),
	}
}

// GetOrCreate returns the conversation for id, creating it on first use. An
// empty id creates a conversation with a fresh id.
func (s *ConversationStore) GetOrCreate(id string) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if conv, ok := s.conversations[id]; ok {
			return conv
		}
	}
	conv := domain.NewConversation(id)
	s.conversations[conv.ID] = conv
	return conv
}

// Get returns the conversation for id, or nil when it does not exist.
func (s *ConversationStore) Get(id string) *domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations[id]
}

// Delete removes a conversation. Returns false when id was not present.
func (s *ConversationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	return true
}

// Count returns the number of stored conversations.
func (s *ConversationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
