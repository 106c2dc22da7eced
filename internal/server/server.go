// Package server exposes the execution engine over HTTP: a small REST API
// and an MCP endpoint speaking JSON-RPC.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runbox/runbox/internal/app/volumecreate"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

// Runner executes container requests.
type Runner interface {
	Run(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error)
}

// VolumeCreator creates named engine volumes.
type VolumeCreator interface {
	Run(ctx context.Context, req volumecreate.Request) error
}

// HealthChecker probes the container engine.
type HealthChecker interface {
	Status(ctx context.Context) *model.Health
}

// HistoryLister lists execution history records.
type HistoryLister interface {
	ListExecutions(ctx context.Context, limit int) ([]model.ExecutionRecord, error)
}

// Config is the configuration for the HTTP server.
type Config struct {
	Runner        Runner
	VolumeCreator VolumeCreator
	HealthChecker HealthChecker
	// History is optional: without it the executions endpoint is not
	// registered.
	History HistoryLister
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.VolumeCreator == nil {
		return fmt.Errorf("volume creator is required")
	}
	if c.HealthChecker == nil {
		return fmt.Errorf("health checker is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.HTTP"})
	return nil
}

// Server is the HTTP API server.
type Server struct {
	engine   *gin.Engine
	runner   Runner
	volumes  VolumeCreator
	health   HealthChecker
	history  HistoryLister
	sessions *sessionStore
	logger   log.Logger
}

// New creates a new HTTP server with all routes registered.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		engine:   router,
		runner:   cfg.Runner,
		volumes:  cfg.VolumeCreator,
		health:   cfg.HealthChecker,
		history:  cfg.History,
		sessions: newSessionStore(),
		logger:   cfg.Logger,
	}

	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	s.registerRESTRoutes(router)
	s.registerMCPRoutes(router)

	return s, nil
}

// Handler returns the HTTP handler, ready to be served.
func (s *Server) Handler() *gin.Engine { return s.engine }

// requestLogger logs one line per request the way the rest of the service
// logs, instead of gin's default writer.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithValues(log.Kv{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debugf("Request handled")
	}
}
