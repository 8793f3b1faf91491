package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"macagent/pkg/api/middleware"
	"macagent/pkg/executor"
	"macagent/pkg/logger"
)

// AgentService is what the HTTP layer needs from the execution coordinator.
type AgentService interface {
	ExecuteScript(ctx context.Context, in executor.Inputs) (string, error)
	SystemPrompt() (string, error)
}

// Server is the HTTP endpoint the workflow calls.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	service AgentService
	logger  *zap.Logger
}

// Config holds API server configuration.
type Config struct {
	Port         string
	Service      AgentService
	Auth         middleware.AuthConfig
	Logger       *zap.Logger
	MaxBodyBytes int64
	// WriteTimeout must exceed the longest script timeout a request may ask for.
	WriteTimeout time.Duration
}

// NewServer builds the router; nothing listens until Start.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}

	router := gin.New()

	// Middleware stack (order matters)
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware(cfg.Logger))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.BodySizeLimitMiddleware(cfg.MaxBodyBytes))

	s := &Server{
		router:  router,
		service: cfg.Service,
		logger:  cfg.Logger,
	}
	s.registerRoutes(cfg.Auth)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("API endpoint listening", zap.String("addr", "http://localhost"+s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight scripts.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(authCfg middleware.AuthConfig) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The workflow may be configured with any endpoint path; every POST is a point request.
	s.router.POST("/*path", middleware.AuthMiddleware(authCfg), s.handlePoint)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
