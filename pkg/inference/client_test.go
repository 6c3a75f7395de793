package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completionHandler(t *testing.T, text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "cmpl-1",
			"model": "mistral",
			"choices": []map[string]interface{}{
				{"text": text, "finish_reason": "stop"},
			},
			"usage": map[string]int{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		})
	}
}

func TestClientGenerate(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			t.Errorf("Expected /completions, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		completionHandler(t, "  Let's slow down and take it step by step.\n")(w, r)
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL+"/"),
		WithAPIKey("test-key"),
		WithModel("mistral"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	resp, err := client.Generate(context.Background(), &GenerateRequest{
		Prompt:      "User: help\nAI Instructor:",
		MaxTokens:   285,
		Temperature: 0.55,
		TopP:        0.8,
		Stop:        []string{"\nUser:"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != "Let's slow down and take it step by step." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish_reason 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.Usage.TotalTokens)
	}

	if got["model"] != "mistral" {
		t.Errorf("Expected model mistral, got %v", got["model"])
	}
	if got["max_tokens"] != float64(285) {
		t.Errorf("Expected max_tokens 285, got %v", got["max_tokens"])
	}
	if got["temperature"] != 0.55 {
		t.Errorf("Expected temperature 0.55, got %v", got["temperature"])
	}
	if got["top_p"] != 0.8 {
		t.Errorf("Expected top_p 0.8, got %v", got["top_p"])
	}
	stop, ok := got["stop"].([]interface{})
	if !ok || len(stop) != 1 || stop[0] != "\nUser:" {
		t.Errorf("Expected stop [\\nUser:], got %v", got["stop"])
	}
}

func TestClientEmptyPrompt(t *testing.T) {
	client, _ := NewClient(WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "   "})
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Expected ErrEmptyPrompt, got %v", err)
	}
}

func TestClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})
	if !errors.Is(err, ErrNoChoices) {
		t.Errorf("Expected ErrNoChoices, got %v", err)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"model loading"}}`))
			return
		}
		completionHandler(t, "ready")(w, r)
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithRetry(3, time.Millisecond),
	)

	resp, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "ready" {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt","code":"invalid_request"}}`))
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithRetry(3, time.Millisecond),
	)

	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 400 || apiErr.Code != "invalid_request" || apiErr.Message != "bad prompt" {
		t.Errorf("Unexpected API error: %+v", apiErr)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Expected 1 attempt, got %d", n)
	}
}

func TestClientRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithRetry(2, time.Millisecond),
	)

	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRateLimited() {
		t.Fatalf("Expected rate limit APIError, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestClientContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(5, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, &GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestClientHealthDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, _ := NewClient(WithBaseURL(url))
	if err := client.Health(context.Background()); err == nil {
		t.Error("Expected health error for closed server")
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(WithBaseURL("")); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("Expected ErrNoBaseURL, got %v", err)
	}
	if _, err := NewClient(WithModel("")); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}
}

func TestClientNoAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("Expected no auth header, got %s", auth)
		}
		completionHandler(t, "ok")(w, r)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	if _, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hi"}); err != nil {
		t.Errorf("Generate without API key failed: %v", err)
	}
}
