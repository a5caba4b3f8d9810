// Package server exposes the reconciled mission timeline over HTTP: JSON
// snapshot endpoints, an event injection endpoint, and a websocket stream
// of projection updates.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"overmind/internal/eventhub"
	"overmind/internal/observability"
	"overmind/internal/shared/logging"
	"overmind/internal/timeline"
)

// Metrics is the slice of the observability collector the server reports to.
// A nil Metrics disables reporting.
type Metrics interface {
	RecordEvent(ctx context.Context, outcome timeline.Outcome, latency time.Duration)
	RecordSnapshot(ctx context.Context, cached bool)
	StreamClientConnected(ctx context.Context)
	StreamClientDisconnected(ctx context.Context)
}

// Tracer is the slice of the tracing provider the server uses. Implemented
// by observability.TracerProvider; nil disables spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Config holds the HTTP serving configuration.
type Config struct {
	ListenAddr     string
	Environment    string
	AllowedOrigins []string
	Debug          bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns the default serving configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8480",
		Environment:  "development",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server serves the timeline projection API.
type Server struct {
	store      *timeline.Store
	hub        *eventhub.Hub
	logger     logging.Logger
	metrics    Metrics
	tracer     Tracer
	cache      *snapshotCache
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startTime  time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithTracer sets the span source.
func WithTracer(tracer Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// NewServer builds the API server around an existing store and hub.
func NewServer(cfg Config, store *timeline.Store, hub *eventhub.Hub, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("server requires a timeline store")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	cache, err := newSnapshotCache(defaultCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	s := &Server{
		store:  store,
		hub:    hub,
		logger: logging.NewComponentLogger("Server"),
		cache:  cache,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.engine.Use(s.traceMiddleware())

	api := s.engine.Group("/api")

	api.GET("/timeline", s.handleTimeline)
	api.GET("/runs", s.handleRuns)
	api.POST("/events", s.handleInjectEvent)
	api.POST("/reset", s.handleReset)
	api.GET("/stream", s.handleStream)

	s.engine.GET("/health", s.handleHealth)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Mission console API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down mission console API")
	return s.httpServer.Shutdown(ctx)
}

// traceMiddleware opens one span per request and threads its context
// through to the handlers.
func (s *Server) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tracer == nil {
			c.Next()
			return
		}
		ctx, span := s.tracer.StartSpan(c.Request.Context(), observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
