package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avguard/internal/config"
	"github.com/vyrodovalexey/avguard/internal/observability"
	"github.com/vyrodovalexey/avguard/internal/perm"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions.
var ginModeOnce sync.Once

// Server serves the guarded routes over HTTP.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	permEngine *perm.Engine
	cfg        *config.Config
	logger     observability.Logger
	registry   *prometheus.Registry
	mu         sync.RWMutex
	running    bool
}

// Option is a functional option for the server.
type Option func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the Prometheus registry backing the /metrics
// endpoint.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// New creates the HTTP server and registers all routes. Each configured
// route is validated while being registered, so a malformed access rule
// is reported here rather than on first request.
func New(cfg *config.Config, permEngine *perm.Engine, opts ...Option) (*Server, error) {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:     gin.New(),
		permEngine: permEngine,
		cfg:        cfg,
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(
		Recovery(s.logger),
		RequestID(),
		Logging(s.logger),
		perm.SetIdentity(cfg.Server.IdentityHeader),
	)

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}

	return s, nil
}

// registerRoutes wires health, metrics and the guarded routes.
func (s *Server) registerRoutes() error {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.registry != nil {
		handler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		s.engine.GET("/metrics", gin.WrapH(handler))
	}

	for _, route := range s.cfg.Routes {
		spec := perm.Spec{
			Mode:  route.Mode,
			Owner: route.Owner,
			Group: route.Group,
		}

		guard, err := s.permEngine.Guard(spec)
		if err != nil {
			return fmt.Errorf("route %s: %w", route.Path, err)
		}

		body := route.Body
		if body == "" {
			body = "ok"
		}

		s.engine.GET(route.Path, guard, func(c *gin.Context) {
			c.String(http.StatusOK, body)
		})

		s.logger.Info("registered guarded route",
			observability.String("path", route.Path),
			observability.Int("mode", route.Mode),
			observability.String("owner", route.Owner),
			observability.String("group", route.Group),
		)
	}

	return nil
}

// Handler returns the underlying HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration(),
	}

	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", s.cfg.Server.Addr),
		observability.Int("routes", len(s.cfg.Routes)),
	)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	shutdownTimeout := s.cfg.Server.ShutdownTimeout.Duration()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
