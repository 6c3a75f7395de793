// Package web serves the affect-aware chat API and the emotion frame API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-affect/pkg/conversation"
	"github.com/teslashibe/go-affect/pkg/face"
	"github.com/teslashibe/go-affect/pkg/hub"
	"github.com/teslashibe/go-affect/pkg/inference"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/prompt"
)

// DefaultHealthTTL is how long a generator health check is reused.
const DefaultHealthTTL = 10 * time.Second

// Config configures the HTTP server.
type Config struct {
	Port           string
	AllowedOrigins string // comma separated, "*" for any

	// HealthTTL bounds how often /api/status probes the generator.
	HealthTTL time.Duration

	// GenerateTimeout bounds one generation call. Zero means no deadline.
	GenerateTimeout time.Duration

	Logger *slog.Logger
	Clock  func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:           "8000",
		AllowedOrigins: "*",
		HealthTTL:      DefaultHealthTTL,
		Logger:         slog.Default(),
		Clock:          time.Now,
	}
}

// Deps are the collaborators behind the routes. Generator and Frames may be
// nil; the routes that need them answer 503.
type Deps struct {
	Generator    inference.Provider
	Conversation *conversation.State
	Composer     *prompt.Composer
	Frames       *pipeline.Pipeline
	Backend      face.Describer
	Stream       *hub.Hub
}

// Server is the affectd HTTP server
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time

	generator    inference.Provider
	conversation *conversation.State
	composer     *prompt.Composer
	frames       *pipeline.Pipeline
	backend      face.Describer
	stream       *hub.Hub

	health *cache.Cache
}

// NewServer creates the server and registers every route.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = DefaultHealthTTL
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	if deps.Conversation == nil {
		deps.Conversation = conversation.NewState(conversation.DefaultConfig())
	}
	if deps.Composer == nil {
		deps.Composer = prompt.NewComposer("")
	}

	s := &Server{
		cfg:          cfg,
		logger:       cfg.Logger.With("component", "web"),
		clock:        cfg.Clock,
		generator:    deps.Generator,
		conversation: deps.Conversation,
		composer:     deps.Composer,
		frames:       deps.Frames,
		backend:      deps.Backend,
		stream:       deps.Stream,
		health:       cache.New(cfg.HealthTTL, 2*cfg.HealthTTL),
	}

	app := fiber.New(fiber.Config{
		AppName:               "affectd",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	// Chat API
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/chat", s.handleChat)
	api.Post("/reset", s.handleReset)
	api.Get("/conversation", s.handleConversation)

	// Frame API
	api.Post("/detect-face", s.handleDetectFace)
	api.Get("/emotion-status", s.handleEmotionStatus)
	api.Get("/emotion-aggregate", s.handleEmotionAggregate)
	api.Get("/system-info", s.handleSystemInfo)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if s.stream != nil {
		// WebSocket upgrade middleware
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/emotion", websocket.New(s.stream.Serve))

		if s.frames != nil {
			s.frames.Subscribe(s.publishFrame)
		}
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", ":"+s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown gracefully stops the server, waiting for in-flight requests until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// publishFrame forwards worker results to websocket subscribers.
func (s *Server) publishFrame(e pipeline.Entry) {
	if err := s.stream.BroadcastJSON(frameEvent{
		Status:    statusSuccess,
		Timestamp: unixSeconds(e.At),
		Result:    e.Result,
	}); err != nil {
		s.logger.Warn("broadcast frame", "error", err)
	}
}

// handleError renders every error that reaches fiber as JSON.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorBody{Error: err.Error(), Timestamp: s.now()})
}

func (s *Server) now() float64 {
	return unixSeconds(s.clock())
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
