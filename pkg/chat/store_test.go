package chat

import (
	"sync"
	"testing"
)

func TestConversationStoreGetOrCreate(t *testing.T) {
	store := NewConversationStore()

	conv := store.GetOrCreate("")
	if conv.ID == "" {
		t.Fatal("a fresh conversation needs an id")
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 conversation, got %d", store.Count())
	}

	same := store.GetOrCreate(conv.ID)
	if same != conv {
		t.Error("GetOrCreate must return the existing conversation")
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 conversation, got %d", store.Count())
	}

	named := store.GetOrCreate("session-42")
	if named.ID != "session-42" {
		t.Errorf("explicit id should be kept, got %s", named.ID)
	}
}

func TestConversationStoreDelete(t *testing.T) {
	store := NewConversationStore()
	conv := store.GetOrCreate("")

	if !store.Delete(conv.ID) {
		t.Error("delete of an existing conversation should succeed")
	}
	if store.Delete(conv.ID) {
		t.Error("second delete must report not found")
	}
	if store.Get(conv.ID) != nil {
		t.Error("deleted conversation still retrievable")
	}
}

func TestConversationStoreConcurrentAccess(t *testing.T) {
	store := NewConversationStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv := store.GetOrCreate("shared")
			_ = store.Get(conv.ID)
		}()
	}
	wg.Wait()

	if store.Count() != 1 {
		t.Errorf("concurrent GetOrCreate must yield one conversation, got %d", store.Count())
	}
}
