// Package inference provides a unified interface for text generation against
// a locally hosted language model.
//
// The package abstracts prompt completion behind a single Provider interface,
// enabling seamless switching between local servers that implement the
// OpenAI-compatible API (GPT4All, llama.cpp, Ollama, vLLM) and hosted ones.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:4891/v1"),
//	    inference.WithModel("mistral-7b-instruct-v0.1.Q4_0.gguf"),
//	)
//	defer client.Close()
//
//	resp, _ := client.Generate(ctx, &inference.GenerateRequest{
//	    Prompt:      prompt,
//	    MaxTokens:   300,
//	    Temperature: 0.6,
//	    TopP:        0.85,
//	})
package inference

import "context"

// Provider is the unified text generation interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Generate continues a prompt.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Model returns the default model name.
	Model() string

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// GenerateRequest for prompt completion.
type GenerateRequest struct {
	// Prompt is the complete prompt text.
	Prompt string

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// TopP controls nucleus sampling.
	TopP float64

	// Stop sequences that halt generation.
	Stop []string
}

// GenerateResponse from prompt completion.
type GenerateResponse struct {
	// Text is the generated continuation, trimmed of surrounding whitespace.
	Text string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
