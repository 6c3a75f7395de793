package affectd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-affect/pkg/conversation"
	"github.com/teslashibe/go-affect/pkg/face/opencv"
	"github.com/teslashibe/go-affect/pkg/hub"
	"github.com/teslashibe/go-affect/pkg/inference"
	"github.com/teslashibe/go-affect/pkg/metrics"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/prompt"
	"github.com/teslashibe/go-affect/pkg/web"
)

const shutdownTimeout = 5 * time.Second

// App owns every long-lived component.
type App struct {
	config Config
	logger *slog.Logger

	generator inference.Provider
	analyzer  *opencv.Analyzer
	frames    *pipeline.Pipeline
	stream    *hub.Hub
	server    *web.Server

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New creates a new application with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	// Apply environment overrides
	cfg.LoadEnvConfig()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &App{config: cfg, logger: logger}, nil
}

// Init builds all components.
// Call this after New() and before Run(). A generator that cannot be
// configured is logged and left nil so the chat routes answer 503.
func (a *App) Init() error {
	gen, err := a.buildGenerator()
	if err != nil {
		a.logger.Error("generator unavailable", "provider", a.config.Provider, "error", err)
	} else if gen != nil {
		a.logger.Info("generator ready", "provider", a.config.Provider, "model", gen.Model())
	}
	a.generator = gen

	a.analyzer = opencv.New(opencv.Config{
		Detector:         a.config.FaceDetector,
		CascadePath:      a.config.CascadePath,
		YuNetPath:        a.config.YuNetPath,
		EmotionModelPath: a.config.EmotionModelPath,
		Logger:           a.logger,
	})
	info := a.analyzer.Describe()
	a.logger.Info("face analysis ready",
		"opencv", info.OpenCVVersion,
		"detector", info.Detector,
		"detector_loaded", info.DetectorLoaded,
		"classifier", info.ClassifierAvailable,
	)

	a.frames = pipeline.New(a.analyzer, pipeline.Config{
		HistorySize: a.config.HistorySize,
		Logger:      a.logger,
	})
	a.frames.Subscribe(metrics.ObserveFrame)
	if err := metrics.RegisterPipeline(a.frames.Stats); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	a.stream = hub.New("emotion", a.logger)

	a.server = web.NewServer(web.Config{
		Port:            a.config.Port,
		AllowedOrigins:  a.config.AllowedOrigins,
		GenerateTimeout: a.config.GenerateTimeout,
		Logger:          a.logger,
	}, web.Deps{
		Generator: a.generator,
		Conversation: conversation.NewState(conversation.Config{
			MinInterval: a.config.MinInterval,
			MaxTurns:    a.config.MaxTurns,
		}),
		Composer: prompt.NewComposer(a.config.Persona),
		Frames:   a.frames,
		Backend:  a.analyzer,
		Stream:   a.stream,
	})
	return nil
}

// Run starts the worker, the hub and the HTTP server.
// Blocks until ctx is cancelled or the server fails, then stops the worker
// and the hub before returning.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("affectd: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer a.stopWorkers()

	a.workers.Add(2)
	go func() {
		defer a.workers.Done()
		a.stream.Run(ctx)
	}()
	go func() {
		defer a.workers.Done()
		a.frames.Run(ctx)
	}()

	errc := make(chan error, 1)
	go func() {
		errc <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// stopWorkers cancels the hub and the frame worker and waits for both to
// return. It reports false if they are still running after shutdownTimeout.
func (a *App) stopWorkers() bool {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(shutdownTimeout):
		return false
	}
}

// Shutdown gracefully shuts down all components. The analyzer is closed only
// once the frame worker has stopped using it.
func (a *App) Shutdown() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("server shutdown", "error", err)
		}
		cancel()
	}
	stopped := a.stopWorkers()
	if a.analyzer != nil {
		if stopped {
			a.analyzer.Close()
		} else {
			a.logger.Warn("frame worker still running, leaving analyzer open")
		}
	}
	if a.generator != nil {
		a.generator.Close()
	}
	a.logger.Info("stopped")
}

// Generator returns the configured generator, or nil.
func (a *App) Generator() inference.Provider {
	return a.generator
}

// buildGenerator creates the provider named by the config, wrapped in a
// circuit breaker when one is configured.
func (a *App) buildGenerator() (inference.Provider, error) {
	cfg := a.config
	opts := func(baseURL string) []inference.Option {
		return []inference.Option{
			inference.WithBaseURL(baseURL),
			inference.WithAPIKey(cfg.LLMAPIKey),
			inference.WithModel(cfg.LLMModel),
			inference.WithTimeout(cfg.RequestTimeout),
			inference.WithRetry(cfg.MaxRetries, 250*time.Millisecond),
			inference.WithLogger(a.logger),
		}
	}

	var (
		gen inference.Provider
		err error
	)
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		gen, err = inference.NewOpenAI(opts(cfg.LLMBaseURL)...)
	case ProviderChain:
		fallbackURL := cfg.LLMFallbackURL
		if fallbackURL == "" {
			fallbackURL = cfg.LLMBaseURL
		}
		var primary, secondary inference.Provider
		if primary, err = inference.NewClient(opts(cfg.LLMBaseURL)...); err != nil {
			return nil, err
		}
		if secondary, err = inference.NewOpenAI(opts(fallbackURL)...); err != nil {
			return nil, err
		}
		gen, err = inference.NewChainWithLogger(a.logger, primary, secondary)
	default:
		gen, err = inference.NewClient(opts(cfg.LLMBaseURL)...)
	}
	if err != nil {
		return nil, err
	}

	if cfg.BreakerFailures > 0 {
		gen = inference.NewBreaker(gen, inference.BreakerSettings{
			Name:                "generator",
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerTimeout,
			HalfOpenRequests:    1,
			Logger:              a.logger,
		})
	}
	return gen, nil
}
