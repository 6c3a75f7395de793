package web

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-affect/pkg/affect"
	"github.com/teslashibe/go-affect/pkg/conversation"
	"github.com/teslashibe/go-affect/pkg/inference"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/prompt"
)

const healthKey = "generator"

type healthResult struct {
	err error
}

// handleStatus reports whether the generator is reachable. The probe result
// is cached for HealthTTL.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.generator == nil {
		msg := "Model not loaded. Check server logs for details."
		return c.JSON(StatusResponse{Status: statusError, Error: &msg})
	}

	model := s.generator.Model()
	if err := s.generatorHealth(c.UserContext()); err != nil {
		msg := err.Error()
		return c.JSON(StatusResponse{Status: statusError, Model: &model, Error: &msg})
	}
	return c.JSON(StatusResponse{Status: statusReady, Model: &model})
}

func (s *Server) generatorHealth(ctx context.Context) error {
	if v, ok := s.health.Get(healthKey); ok {
		return v.(healthResult).err
	}
	err := s.generator.Health(ctx)
	if err != nil {
		s.logger.Warn("generator health check failed", "error", err)
	}
	s.health.SetDefault(healthKey, healthResult{err: err})
	return err
}

// handleChat runs one learner turn: rate limit, interpret affect, compose,
// generate, record.
func (s *Server) handleChat(c *fiber.Ctx) error {
	reqID := uuid.NewString()
	log := s.logger.With("request_id", reqID)

	if s.generator == nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody{
			Error:     "Model not loaded. Check server logs for details.",
			Timestamp: s.now(),
		})
	}

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{
			Error:     "invalid request body: " + err.Error(),
			Timestamp: s.now(),
		})
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := validate.Struct(&req); err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{
			Error:     validationMessage(err),
			Timestamp: s.now(),
		})
	}

	now := s.clock()
	if err := s.conversation.AdmitErr(now); err != nil {
		wait := conversation.RetryAfter(err)
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		log.Info("chat rate limited", "retry_after_s", wait.Seconds())
		c.Set(fiber.HeaderRetryAfter, retryAfterHeader(wait))
		return c.Status(fiber.StatusTooManyRequests).JSON(rateLimitBody{
			Error:      "Please wait before sending another message.",
			RetryAfter: wait.Seconds(),
			Timestamp:  unixSeconds(now),
		})
	}

	snap, cs, bad := req.affectInputs()
	if len(bad) > 0 {
		log.Warn("ignoring malformed affect input", "fields", bad)
	}
	ac := affect.Interpret(snap, cs)
	params := affect.ParametersFor(ac)

	s.conversation.AddUser(req.Message, now)
	history := s.conversation.Snapshot()
	text := s.composer.Compose(prompt.Input{
		Affect:       ac,
		Turns:        history.Turns,
		LastResponse: history.LastResponse,
		Now:          now,
	})

	log.Debug("generating",
		"emotion", ac.Emotion,
		"origin", ac.Origin,
		"degraded", ac.Degraded,
		"directives", directiveNames(ac),
		"temperature", params.Temperature,
		"top_p", params.TopP,
		"max_tokens", params.MaxTokens,
		"prompt_chars", len(text),
	)

	ctx := c.UserContext()
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.generator.Generate(ctx, &inference.GenerateRequest{
		Prompt:      text,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stop:        prompt.StopSequences(),
	})
	metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		return s.generationFailed(c, log, err)
	}

	replyAt := s.clock()
	s.conversation.AddInstructor(resp.Text, replyAt)
	metrics.ChatRequests.WithLabelValues(metrics.OutcomeOK).Inc()

	model := resp.Model
	if model == "" {
		model = s.generator.Model()
	}
	log.Info("chat reply",
		"emotion", ac.Emotion,
		"model", model,
		"latency_ms", time.Since(start).Milliseconds(),
		"reply_chars", len(resp.Text),
	)

	return c.JSON(ChatResponse{
		Message:   resp.Text,
		Timestamp: unixSeconds(replyAt),
		ParametersUsed: ParametersUsed{
			Temperature:     params.Temperature,
			TopP:            params.TopP,
			MaxTokens:       params.MaxTokens,
			EmotionDetected: ac.Emotion,
			Source:          string(ac.Origin),
			Model:           model,
		},
	})
}

func (s *Server) generationFailed(c *fiber.Ctx, log *slog.Logger, err error) error {
	log.Error("generation failed", "error", err)

	status := fiber.StatusInternalServerError
	outcome := metrics.OutcomeError
	switch {
	case inference.IsUnavailable(err):
		status = fiber.StatusServiceUnavailable
		outcome = metrics.OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	}
	metrics.ChatRequests.WithLabelValues(outcome).Inc()

	return c.Status(status).JSON(errorBody{
		Error:     "Error generating response: " + err.Error(),
		Timestamp: s.now(),
	})
}

// handleReset clears the conversation.
func (s *Server) handleReset(c *fiber.Ctx) error {
	s.conversation.Reset()
	s.logger.Info("conversation reset")
	return c.JSON(fiber.Map{"status": statusSuccess})
}

// handleConversation returns the recent turns, newest last.
func (s *Server) handleConversation(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", prompt.ContextTurns)
	if limit <= 0 {
		limit = prompt.ContextTurns
	}
	snap := s.conversation.Snapshot()

	turns := prompt.Recent(snap.Turns, limit)
	out := ConversationResponse{
		Turns: make([]TurnDTO, 0, len(turns)),
		Count: len(snap.Turns),
	}
	for _, t := range turns {
		out.Turns = append(out.Turns, TurnDTO{
			Role:      string(t.Role),
			Text:      t.Text,
			Timestamp: unixSeconds(t.At),
		})
	}
	if !snap.LastResponse.IsZero() {
		ts := unixSeconds(snap.LastResponse)
		out.LastResponse = &ts
	}
	return c.JSON(out)
}

// retryAfterHeader rounds up to whole seconds as HTTP requires.
func retryAfterHeader(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func directiveNames(ac affect.Context) []string {
	ds := affect.Directives(ac)
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}
