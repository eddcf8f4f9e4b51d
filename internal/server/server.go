package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/health"
	"github.com/vyrodovalexey/integrationgw/internal/integration"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/validation"
)

var (
	ginModeOnce      sync.Once
	bindingTagsOnce  sync.Once
	errBindingEngine = errors.New("gin binding engine is not go-playground/validator")
)

// Server is the inbound HTTP surface.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	deps       *integration.Deps
	logger     observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	checker    *health.Checker
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With(observability.Component("server"))
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer enables server spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithChecker sets the health checker behind /healthz and /readyz.
func WithChecker(checker *health.Checker) Option {
	return func(s *Server) {
		s.checker = checker
	}
}

// New creates the server and registers every route.
func New(cfg *config.Config, deps *integration.Deps, opts ...Option) (*Server, error) {
	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	var bindErr error
	bindingTagsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			bindErr = errBindingEngine
			return
		}
		bindErr = validation.Register(v)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("failed to register validation tags: %w", bindErr)
	}

	s := &Server{
		engine: gin.New(),
		cfg:    cfg.Server,
		deps:   deps,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.checker == nil {
		s.checker = health.NewChecker("", nil)
	}

	s.engine.Use(
		requestID(),
		tracing(s.tracer),
		requestMetrics(s.metrics),
		requestLogging(s.logger),
		recovery(s.logger),
		securityHeadersMiddleware(),
		bodyLimit(s.cfg.MaxBodyBytes),
	)
	s.engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, newErrorBody(c, http.StatusNotFound, ""))
	})
	s.routes(cfg.CallbackAuth)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
	}
	return s, nil
}

func (s *Server) routes(callbackAuth config.CallbackAuthConfig) {
	s.engine.GET("/healthz", gin.WrapF(s.checker.HealthHandler()))
	s.engine.GET("/readyz", gin.WrapF(s.checker.ReadinessHandler()))
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.engine.Group(s.cfg.BasePath, s.scope())
	api.GET("/async/:id", s.getAsyncStatus)
	api.POST("/async/:id", s.startAsync)
	api.POST("/async/:id/callback", s.apiKeyAuth(callbackAuth), s.asyncCallback)
	api.POST("/integrations/:serviceKey", s.consumeIntegration)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		observability.String("address", s.cfg.Address),
		observability.String("basePath", s.cfg.BasePath),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown fails readiness and then stops accepting requests, waiting for
// in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.checker.SetDraining(true)
	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
