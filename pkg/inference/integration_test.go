//go:build integration

package inference

import (
	"context"
	"os"
	"testing"
	"time"
)

// Integration tests against a running local model server.
// Run with: LLM_BASE_URL=http://localhost:4891/v1 go test -tags=integration -v ./pkg/inference/...

func TestLocalServerIntegration(t *testing.T) {
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		t.Skip("LLM_BASE_URL not set")
	}
	opts := []Option{WithBaseURL(baseURL)}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		opts = append(opts, WithModel(model))
	}

	client, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	t.Run("Health", func(t *testing.T) {
		if err := client.Health(ctx); err != nil {
			t.Errorf("Health check failed: %v", err)
		}
	})

	t.Run("Generate", func(t *testing.T) {
		resp, err := client.Generate(ctx, &GenerateRequest{
			Prompt:      "You are a patient tutor.\n\nUser: What is 2+2?\nAI Instructor:",
			MaxTokens:   40,
			Temperature: 0.6,
			TopP:        0.85,
			Stop:        []string{"\nUser:"},
		})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if resp.Text == "" {
			t.Error("Expected non-empty completion")
		}
		t.Logf("Response: %s (latency %dms)", resp.Text, resp.LatencyMs)
	})
}

func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	p, err := NewOpenAI(
		WithBaseURL("https://api.openai.com/v1"),
		WithAPIKey(apiKey),
		WithModel("gpt-4o-mini"),
	)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := p.Generate(ctx, &GenerateRequest{Prompt: "Say 'hello' and nothing else.", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	t.Logf("Response: %s", resp.Text)
}
