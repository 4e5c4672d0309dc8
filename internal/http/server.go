// Package http provides the supplierd HTTP API.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/supplierd/internal/logging"
	"github.com/fyrsmithlabs/supplierd/internal/services"
)

// Server provides HTTP endpoints for supplierd.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *zap.Logger
	config   *Config
	metrics  *HTTPMetrics
	now      func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// ExtractRateLimit is the per-client extraction rate in requests per
	// second. Zero disables limiting.
	ExtractRateLimit float64
	ExtractBurst     int

	// AllowOrigins lists CORS origins. Empty allows any origin.
	AllowOrigins []string
}

// DefaultConfig returns the listen address and limits used when none are given.
func DefaultConfig() *Config {
	return &Config{
		Host:             "localhost",
		Port:             8000,
		ExtractRateLimit: 5,
		ExtractBurst:     10,
	}
}

// NewServer creates a new HTTP server.
func NewServer(registry services.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if registry == nil || registry.Pipeline() == nil {
		return nil, fmt.Errorf("registry with an extraction pipeline is required")
	}
	if registry.IgnoreList() == nil {
		return nil, fmt.Errorf("registry with an ignore list is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger,
		config:   cfg,
		metrics:  NewHTTPMetrics(logger),
		now:      time.Now,
	}

	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(c.Request().WithContext(logging.WithRequestID(c.Request().Context(), requestID)))

			err := next(c)
			if err != nil {
				// Resolve the status before logging.
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return nil
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	extractLimit := s.extractRateLimiter()

	v1 := s.echo.Group("/api/v1")
	v1.POST("/suppliers/extract", s.handleExtract, extractLimit...)
	v1.POST("/suppliers/deduplicate", s.handleDeduplicate)
	v1.GET("/history/:company", s.handleHistory)
	v1.GET("/statistics", s.handleStatistics)
	v1.GET("/ignore-list", s.handleIgnoreList)
	v1.POST("/ignore-list", s.handleIgnoreAdd)
	v1.DELETE("/ignore-list", s.handleIgnoreRemove)
	v1.POST("/ignore-list/reload", s.handleIgnoreReload)
	v1.DELETE("/cache", s.handleClearAllCaches)
	v1.DELETE("/cache/:company", s.handleClearCache)

	// Unversioned routes kept for existing clients.
	s.echo.POST("/extract-suppliers", s.handleExtract, extractLimit...)
	s.echo.GET("/history/:company", s.handleHistory)
	s.echo.GET("/statistics", s.handleStatistics)
	s.echo.GET("/ignore-list", s.handleIgnoreList)
	s.echo.POST("/ignore-list/add", s.handleIgnoreAdd)
	s.echo.DELETE("/ignore-list/remove", s.handleIgnoreRemove)
	s.echo.POST("/ignore-list/reload", s.handleIgnoreReload)
}

// extractRateLimiter limits extraction requests per client IP.
func (s *Server) extractRateLimiter() []echo.MiddlewareFunc {
	if s.config.ExtractRateLimit <= 0 {
		return nil
	}
	burst := s.config.ExtractBurst
	if burst <= 0 {
		burst = 1
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.ExtractRateLimit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return []echo.MiddlewareFunc{middleware.RateLimiter(store)}
}

// Echo exposes the underlying router for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
