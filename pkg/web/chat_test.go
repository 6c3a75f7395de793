package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-affect/pkg/affect"
	"github.com/teslashibe/go-affect/pkg/inference"
	"github.com/teslashibe/go-affect/pkg/prompt"
)

func TestChat_Success(t *testing.T) {
	gen := inference.NewMockText("Let's take it one step at a time.")
	f := newFixture(t, gen)

	code, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"message": "I don't get recursion",
		"biometric_snapshot": map[string]any{
			"emotion": map[string]any{"name": "frustrated", "intensity": 0.8},
			"metrics": map[string]any{"engagement": 0.2, "attention": 0.3, "cognitive_load": 0.75},
		},
	})
	require.Equal(t, http.StatusOK, code, body)

	assert.Equal(t, "Let's take it one step at a time.", body["message"])
	assert.Equal(t, float64(f.clock.Now().Unix()), body["timestamp"])

	params := body["parameters_used"].(map[string]any)
	assert.Equal(t, 0.55, params["temperature"])
	assert.Equal(t, 0.8, params["top_p"])
	assert.Equal(t, 285.0, params["max_tokens"])
	assert.Equal(t, "frustrated", params["emotion_detected"])
	assert.Equal(t, "biometric_snapshot", params["source"])
	assert.Equal(t, "mock", params["model"])

	req := gen.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, 285, req.MaxTokens)
	assert.Equal(t, prompt.StopSequences(), req.Stop)
	assert.Contains(t, req.Prompt, "User: I don't get recursion")
	assert.Contains(t, req.Prompt, "they seem frustrated")
	assert.True(t, strings.HasSuffix(req.Prompt, "AI Instructor:"))

	_, conv := f.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Equal(t, 2.0, conv["count"])
	turns := conv["turns"].([]any)
	assert.Equal(t, "instructor", turns[1].(map[string]any)["role"])
}

func TestChat_CognitiveStateFallback(t *testing.T) {
	f := newFixture(t, inference.NewMock())

	code, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"message":         "this is fun",
		"cognitive_state": map[string]any{"emotion": "happy", "engagement": 1.0},
	})
	require.Equal(t, http.StatusOK, code)

	params := body["parameters_used"].(map[string]any)
	assert.Equal(t, "happy", params["emotion_detected"])
	assert.Equal(t, "cognitive_state", params["source"])
	assert.Equal(t, 325.0, params["max_tokens"])
}

func TestChat_MalformedAffectDegrades(t *testing.T) {
	f := newFixture(t, inference.NewMock())

	code, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"message":            "hello",
		"biometric_snapshot": "not an object",
	})
	require.Equal(t, http.StatusOK, code, body)

	params := body["parameters_used"].(map[string]any)
	assert.Equal(t, "neutral", params["emotion_detected"])
	assert.Equal(t, 300.0, params["max_tokens"])
}

func TestChat_MistypedLeafKeepsSiblings(t *testing.T) {
	gen := inference.NewMock()
	f := newFixture(t, gen)

	code, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"message": "I give up",
		"biometric_snapshot": map[string]any{
			"emotion": map[string]any{"name": "frustrated", "intensity": "0.8"},
			"metrics": map[string]any{"engagement": 0.2, "cognitive_load": 0.9, "attention": []int{1}},
		},
	})
	require.Equal(t, http.StatusOK, code, body)

	params := body["parameters_used"].(map[string]any)
	assert.Equal(t, "frustrated", params["emotion_detected"])
	assert.Equal(t, "biometric_snapshot", params["source"])
	assert.Equal(t, 0.55, params["temperature"])
	assert.Equal(t, 0.8, params["top_p"])
	assert.Equal(t, 285.0, params["max_tokens"])

	req := gen.LastRequest()
	require.NotNil(t, req)
	assert.Contains(t, req.Prompt, "demanding a lot of mental effort")
	assert.Contains(t, req.Prompt, "they seem frustrated")
}

func TestAffectInputs_ReportsBadLeaves(t *testing.T) {
	req := ChatRequest{
		BiometricSnapshot: json.RawMessage(`{"emotion":{"name":"sad","intensity":"high"},"webcam":[],"metrics":{"engagement":0.9}}`),
		CognitiveState:    json.RawMessage(`{"emotion":7,"engagement":0.4}`),
	}

	snap, cs, bad := req.affectInputs()
	require.NotNil(t, snap)
	require.NotNil(t, snap.Emotion)
	assert.Equal(t, "sad", snap.Emotion.Name)
	assert.Nil(t, snap.Emotion.Intensity)
	assert.Nil(t, snap.Webcam)
	require.NotNil(t, snap.Metrics)
	require.NotNil(t, snap.Metrics.Engagement)
	assert.Equal(t, 0.9, *snap.Metrics.Engagement)

	require.NotNil(t, cs)
	assert.Empty(t, cs.Emotion)
	require.NotNil(t, cs.Engagement)
	assert.Equal(t, 0.4, *cs.Engagement)

	assert.ElementsMatch(t, []string{
		"biometric_snapshot.emotion.intensity",
		"biometric_snapshot.webcam",
		"cognitive_state.emotion",
	}, bad)
}

func TestChat_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"not json", "{nope"},
		{"missing message", map[string]any{"cognitive_state": map[string]any{}}},
		{"blank message", map[string]any{"message": "   "}},
		{"wrong type", map[string]any{"message": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, inference.NewMock())
			code, body := f.do(t, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, 0, f.gen.CallCount("Generate"))
		})
	}
}

func TestChat_NoGenerator(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotEmpty(t, body["error"])
	assert.NotNil(t, body["timestamp"])
}

func TestChat_RateLimit(t *testing.T) {
	f := newFixture(t, inference.NewMock())
	msg := map[string]any{"message": "hi"}

	code, _ := f.do(t, http.MethodPost, "/api/chat", msg)
	require.Equal(t, http.StatusOK, code)

	f.clock.Advance(time.Second)
	code, body := f.do(t, http.MethodPost, "/api/chat", msg)
	require.Equal(t, http.StatusTooManyRequests, code)
	assert.InDelta(t, 1.0, body["retry_after"], 1e-9)
	assert.NotEmpty(t, body["error"])

	f.clock.Advance(2 * time.Second)
	code, _ = f.do(t, http.MethodPost, "/api/chat", msg)
	assert.Equal(t, http.StatusOK, code)

	assert.Equal(t, 2, f.gen.CallCount("Generate"))
}

func TestChat_GenerationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unavailable", inference.WrapError("http", inference.ErrProviderUnavailable), http.StatusServiceUnavailable},
		{"api error", &inference.APIError{StatusCode: 400, Message: "bad prompt"}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := inference.NewMock()
			gen.GenerateFunc = func(context.Context, *inference.GenerateRequest) (*inference.GenerateResponse, error) {
				return nil, tt.err
			}
			f := newFixture(t, gen)

			code, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
			assert.Equal(t, tt.want, code)
			assert.Contains(t, body["error"], "Error generating response")
			assert.NotNil(t, body["timestamp"])
		})
	}
}

func TestChat_BreakerOpenIsUnavailable(t *testing.T) {
	failing := inference.NewMock()
	failing.GenerateFunc = func(context.Context, *inference.GenerateRequest) (*inference.GenerateResponse, error) {
		return nil, errors.New("connection refused")
	}
	settings := inference.DefaultBreakerSettings()
	settings.ConsecutiveFailures = 1
	f := newFixture(t, inference.NewBreaker(failing, settings))

	code, _ := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, code)

	f.clock.Advance(3 * time.Second)
	code, _ = f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReset_MatchesColdStart(t *testing.T) {
	warm := newFixture(t, inference.NewMock())
	cold := newFixture(t, inference.NewMock())

	code, _ := warm.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "first"})
	require.Equal(t, http.StatusOK, code)

	code, body := warm.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body["status"])

	// Reset also clears the limiter, so no wait is needed.
	code, _ = warm.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, code)
	code, _ = cold.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, cold.gen.LastRequest().Prompt, warm.gen.LastRequest().Prompt)
}

func TestConversation_LatencySentenceAfterReply(t *testing.T) {
	gen := inference.NewMock()
	f := newFixture(t, gen)

	f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "one"})
	f.clock.Advance(5 * time.Second)
	f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "two"})

	p := gen.LastRequest().Prompt
	assert.Contains(t, p, prompt.LatencySentence(5*time.Second))
	assert.Contains(t, p, "AI Instructor: Mock response")
}

func TestRetryAfterHeader(t *testing.T) {
	assert.Equal(t, "1", retryAfterHeader(200*time.Millisecond))
	assert.Equal(t, "1", retryAfterHeader(time.Second))
	assert.Equal(t, "2", retryAfterHeader(1100*time.Millisecond))
	assert.Equal(t, "1", retryAfterHeader(0))
}

func TestDirectiveNames(t *testing.T) {
	load, eng := 0.9, 0.2
	ac := affect.Interpret(&affect.Snapshot{
		Emotion: &affect.EmotionReading{Name: "frustrated"},
		Metrics: &affect.MetricReading{Engagement: &eng, CognitiveLoad: &load},
	}, nil)

	assert.Equal(t, []string{affect.DirectiveHighCognitiveLoad, affect.DirectiveNegativeEmotion}, directiveNames(ac))
	assert.Empty(t, directiveNames(affect.Interpret(nil, nil)))
}
