package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClaudeProviderGenerate(t *testing.T) {
	var gotBody map[string]any
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "bonjour"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	provider, err := NewClaudeProvider(ClaudeConfig{APIKey: "key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClaudeProvider failed: %v", err)
	}

	result, err := provider.Generate(context.Background(), []ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "say hello in french"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.Content != "bonjour" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if result.TokensUsed != 15 {
		t.Errorf("tokens should be input+output, got %d", result.TokensUsed)
	}
	if result.FinishReason != "end_turn" {
		t.Errorf("unexpected finish reason: %q", result.FinishReason)
	}

	if gotHeaders.Get("x-api-key") != "key" {
		t.Error("x-api-key header missing")
	}
	if gotHeaders.Get("anthropic-version") == "" {
		t.Error("anthropic-version header missing")
	}

	// The system message is lifted out of the message list.
	if gotBody["system"] != "be brief" {
		t.Errorf("system field not set: %v", gotBody["system"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("system message must not appear in messages, got %v", msgs)
	}
}

func TestClaudeProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "bad model"},
		})
	}))
	defer srv.Close()

	provider, err := NewClaudeProvider(ClaudeConfig{APIKey: "key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClaudeProvider failed: %v", err)
	}

	_, err = provider.Generate(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected API error")
	}
}

func TestClaudeProviderRequiresKey(t *testing.T) {
	if _, err := NewClaudeProvider(ClaudeConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestClaudeProviderDefaults(t *testing.T) {
	provider, err := NewClaudeProvider(ClaudeConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("NewClaudeProvider failed: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("unexpected name: %s", provider.Name())
	}
	if provider.Model() == "" {
		t.Error("a default model must be set")
	}
}
