package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teslashibe/go-affect/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI generates through the chat completions API using the official SDK.
// Use it for hosted models or local servers that only implement the chat
// endpoint. The prompt is sent as a single user message.
type OpenAI struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an SDK-backed provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientOpts := []option.RequestOption{
		option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/") + "/"),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithHTTPClient(httpc.NewClient(0)),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local servers ignore the key but the SDK requires one.
		clientOpts = append(clientOpts, option.WithAPIKey("local"))
	}

	client := openai.NewClient(clientOpts...)
	return &OpenAI{
		client: &client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// Generate sends the prompt as a chat completion.
func (o *OpenAI) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyPrompt)
	}
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.config.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	temp := req.Temperature
	if temp == 0 {
		temp = o.config.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, o.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(providerOpenAI, ErrNoChoices)
	}

	choice := resp.Choices[0]
	return &GenerateResponse{
		Text:         trimAtStop(choice.Message.Content, req.Stop),
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Model:     resp.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Model returns the configured default model.
func (o *OpenAI) Model() string {
	return o.config.Model
}

// Health lists models as a connectivity probe.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return o.wrap(err)
	}
	return nil
}

// Close is a no-op; the SDK owns its transport.
func (o *OpenAI) Close() error {
	return nil
}

// wrap converts SDK errors to APIError so retry and status logic is shared
// with Client.
func (o *OpenAI) wrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, fmt.Errorf("chat completion: %w", err))
}

// trimAtStop cuts text at the first stop sequence. Chat endpoints don't
// always honour stop for roleplay-style prompts.
func trimAtStop(text string, stop []string) string {
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

var _ Provider = (*OpenAI)(nil)
