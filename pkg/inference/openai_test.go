package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "mistral",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Breathe. We'll go slower.\nUser: ok"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
		}`))
	}))
	defer server.Close()

	p, err := NewOpenAI(WithBaseURL(server.URL), WithModel("mistral"), WithRetry(0, 0))
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := p.Generate(context.Background(), &GenerateRequest{
		Prompt:      "User: I'm lost\nAI Instructor:",
		MaxTokens:   285,
		Temperature: 0.55,
		TopP:        0.8,
		Stop:        []string{"\nUser:"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "Breathe. We'll go slower." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("Expected 18 tokens, got %d", resp.Usage.TotalTokens)
	}

	if got["model"] != "mistral" {
		t.Errorf("Expected model mistral, got %v", got["model"])
	}
	if got["max_tokens"] != float64(285) {
		t.Errorf("Expected max_tokens 285, got %v", got["max_tokens"])
	}
	msgs, ok := got["messages"].([]interface{})
	if !ok || len(msgs) != 1 {
		t.Fatalf("Expected one message, got %v", got["messages"])
	}
}

func TestOpenAIErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"auth","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	p, _ := NewOpenAI(WithBaseURL(server.URL), WithRetry(0, 0))
	_, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 401 || apiErr.Provider != providerOpenAI {
		t.Errorf("Unexpected API error: %+v", apiErr)
	}
}

func TestOpenAIEmptyPrompt(t *testing.T) {
	p, _ := NewOpenAI()
	if _, err := p.Generate(context.Background(), &GenerateRequest{}); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Expected ErrEmptyPrompt, got %v", err)
	}
}
