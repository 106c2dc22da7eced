package health

import (
	"context"
	"fmt"

	"github.com/runbox/runbox/internal/engine"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

// ServiceConfig is the configuration for the health service.
type ServiceConfig struct {
	Engine engine.Engine
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Health"})
	return nil
}

// Service reports engine availability.
type Service struct {
	engine engine.Engine
	logger log.Logger
}

// NewService creates a new health service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		logger: cfg.Logger,
	}, nil
}

// Status probes the engine. An unreachable engine is a result, not an error.
func (s *Service) Status(ctx context.Context) *model.Health {
	h := s.engine.Health(ctx)
	if !h.Reachable {
		s.logger.Warningf("Engine is unreachable: %s", h.Error)
	}
	return h
}
