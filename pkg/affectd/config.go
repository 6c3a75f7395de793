// Package affectd wires the chat backend and the frame pipeline into one
// process.
package affectd

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-affect/internal/config"
	"github.com/teslashibe/go-affect/pkg/conversation"
	"github.com/teslashibe/go-affect/pkg/face/opencv"
	"github.com/teslashibe/go-affect/pkg/inference"
	"github.com/teslashibe/go-affect/pkg/pipeline"
)

// Generator backends.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderChain  = "chain"
	ProviderNone   = "none"
)

// Config holds all configuration for affectd.
// Flag parsing is done in cmd/affectd/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug    bool
	LogLevel string

	// HTTP server.
	Port           string
	AllowedOrigins string

	// Generator.
	Provider        string // http, openai, chain or none
	LLMBaseURL      string
	LLMFallbackURL  string // chain only; defaults to LLMBaseURL
	LLMAPIKey       string
	LLMModel        string
	MaxRetries      int
	RequestTimeout  time.Duration
	GenerateTimeout time.Duration

	// Circuit breaker. Zero failures disables it.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// Conversation.
	MinInterval time.Duration
	MaxTurns    int
	Persona     string

	// Face analysis.
	FaceDetector     string
	CascadePath      string
	YuNetPath        string
	EmotionModelPath string
	HistorySize      int
}

// DefaultConfig returns sensible defaults for affectd.
func DefaultConfig() Config {
	face := opencv.DefaultConfig()
	return Config{
		LogLevel:         "info",
		Port:             config.DefaultPort,
		AllowedOrigins:   "*",
		Provider:         ProviderHTTP,
		LLMBaseURL:       inference.DefaultBaseURL,
		LLMModel:         inference.DefaultModel,
		MaxRetries:       2,
		RequestTimeout:   120 * time.Second,
		BreakerFailures:  5,
		BreakerTimeout:   30 * time.Second,
		MinInterval:      conversation.DefaultMinInterval,
		MaxTurns:         conversation.DefaultMaxTurns,
		FaceDetector:     face.Detector,
		CascadePath:      face.CascadePath,
		YuNetPath:        face.YuNetPath,
		EmotionModelPath: face.EmotionModelPath,
		HistorySize:      pipeline.DefaultHistorySize,
	}
}

// LoadEnvConfig loads configuration values from environment variables.
// Call this after flag parsing to apply environment overrides.
func (c *Config) LoadEnvConfig() {
	c.LogLevel = config.String("LOG_LEVEL", c.LogLevel)
	c.Port = config.String("AFFECTD_PORT", config.String("PORT", c.Port))
	if origins := config.List("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		c.AllowedOrigins = config.AllowedOrigins()
	}

	c.Provider = strings.ToLower(config.String("LLM_PROVIDER", c.Provider))
	c.LLMBaseURL = config.String("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMFallbackURL = config.String("LLM_FALLBACK_URL", c.LLMFallbackURL)
	c.LLMAPIKey = config.String("LLM_API_KEY", config.String("OPENAI_API_KEY", c.LLMAPIKey))
	c.LLMModel = config.String("LLM_MODEL", c.LLMModel)
	c.MaxRetries = config.Int("LLM_MAX_RETRIES", c.MaxRetries)
	c.RequestTimeout = config.Duration("LLM_TIMEOUT", c.RequestTimeout)
	c.GenerateTimeout = config.Duration("LLM_GENERATE_TIMEOUT", c.GenerateTimeout)

	c.MinInterval = config.Duration("CHAT_MIN_INTERVAL", c.MinInterval)
	c.MaxTurns = config.Int("CHAT_MAX_TURNS", c.MaxTurns)

	c.FaceDetector = strings.ToLower(config.String("FACE_DETECTOR", c.FaceDetector))
	c.CascadePath = config.String("FACE_CASCADE", c.CascadePath)
	c.YuNetPath = config.String("YUNET_MODEL", c.YuNetPath)
	c.EmotionModelPath = config.String("EMOTION_MODEL", c.EmotionModelPath)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderHTTP, ProviderOpenAI, ProviderChain, ProviderNone:
	default:
		return &ConfigError{Field: "Provider", Message: fmt.Sprintf("unknown LLM provider %q (want http, openai, chain or none)", c.Provider)}
	}
	switch c.FaceDetector {
	case opencv.DetectorCascade, opencv.DetectorYuNet:
	default:
		return &ConfigError{Field: "FaceDetector", Message: fmt.Sprintf("unknown face detector %q (want cascade or yunet)", c.FaceDetector)}
	}
	if c.Port == "" {
		return &ConfigError{Field: "Port", Message: "port is required"}
	}
	if c.MinInterval < 0 {
		return &ConfigError{Field: "MinInterval", Message: "minimum chat interval cannot be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
