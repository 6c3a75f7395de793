package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestBreakerOpensAfterFailures(t *testing.T) {
	down := WithError(errors.New("connection refused"))
	b := NewBreaker(down, BreakerSettings{
		Name:                "test",
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := b.Generate(ctx, &GenerateRequest{Prompt: "x"}); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	if b.State() != "open" {
		t.Fatalf("Expected open breaker, got %s", b.State())
	}

	_, err := b.Generate(ctx, &GenerateRequest{Prompt: "x"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState, got %v", err)
	}
	if !IsUnavailable(err) {
		t.Error("Open breaker should be reported as unavailable")
	}
	if down.CallCount("Generate") != 3 {
		t.Errorf("Open breaker should not reach the provider, got %d calls", down.CallCount("Generate"))
	}
	if err := b.Health(ctx); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected open health error, got %v", err)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	mock := WithError(context.Canceled)
	b := NewBreaker(mock, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		b.Generate(context.Background(), &GenerateRequest{Prompt: "x"})
	}
	if b.State() != "closed" {
		t.Errorf("Cancelled requests should not trip the breaker, got %s", b.State())
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	mock := NewMockText("hello")
	mock.ModelName = "local"
	b := NewBreaker(mock, DefaultBreakerSettings())

	resp, err := b.Generate(context.Background(), &GenerateRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Unexpected text: %s", resp.Text)
	}
	if b.Model() != "local" {
		t.Errorf("Expected model local, got %s", b.Model())
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if mock.CallCount("Close") != 1 {
		t.Error("Close should reach the wrapped provider")
	}
}
