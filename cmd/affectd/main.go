// affectd: affect-aware tutoring chat backend with a webcam emotion pipeline
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-affect/internal/config"
	"github.com/teslashibe/go-affect/internal/log"
	"github.com/teslashibe/go-affect/pkg/affectd"
)

func main() {
	config.LoadDotEnv()
	cfg := parseFlags()

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log.Init(config.String("LOG_LEVEL", level))
	logger := log.Component("affectd")

	app, err := affectd.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment variables override flags in affectd.New.
func parseFlags() affectd.Config {
	cfg := affectd.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", cfg.Port, "HTTP listen port")
	provider := flag.String("provider", cfg.Provider, "Generator: http, openai, chain, none")
	baseURL := flag.String("llm-url", cfg.LLMBaseURL, "OpenAI-compatible base URL of the local model server")
	model := flag.String("model", cfg.LLMModel, "Model name")
	detector := flag.String("detector", cfg.FaceDetector, "Face detector: cascade, yunet")
	persona := flag.String("persona", "", "File with replacement instructor instructions")
	minInterval := flag.Duration("min-interval", cfg.MinInterval, "Minimum spacing between chat requests")
	generateTimeout := flag.Duration("generate-timeout", 0, "Deadline for one generation (0 = none)")
	breakerFailures := flag.Uint("breaker-failures", uint(cfg.BreakerFailures), "Consecutive failures that open the circuit breaker (0 disables)")
	breakerTimeout := flag.Duration("breaker-timeout", cfg.BreakerTimeout, "How long the breaker stays open")

	flag.Parse()

	cfg.Debug, cfg.Port, cfg.Provider = *debug, *port, *provider
	cfg.LLMBaseURL, cfg.LLMModel, cfg.FaceDetector = *baseURL, *model, *detector
	cfg.MinInterval, cfg.GenerateTimeout = *minInterval, *generateTimeout
	cfg.BreakerFailures, cfg.BreakerTimeout = uint32(*breakerFailures), *breakerTimeout

	if *persona != "" {
		data, err := os.ReadFile(*persona)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Reading persona: %v\n", err)
			os.Exit(1)
		}
		cfg.Persona = string(data)
	}
	return cfg
}
