package volumecreate

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/runbox/runbox/internal/engine"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

// ServiceConfig is the configuration for the volume create service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.VolumeCreate"})
	return nil
}

// Service creates named engine volumes, optionally seeded from an archive.
type Service struct {
	engine engine.Engine
	logger log.Logger
}

// NewService creates a new volume create service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		logger: cfg.Logger,
	}, nil
}

// Request contains the parameters for creating a named volume.
type Request struct {
	Name string
	// Archive is an optional gzip-compressed tar archive used to seed the
	// volume. Empty creates an empty volume.
	Archive []byte
}

// Run creates the volume. Creating a volume that already exists fails, the
// operation never overwrites existing data.
func (s *Service) Run(ctx context.Context, req Request) error {
	if req.Name == "" {
		return fmt.Errorf("volume name is required: %w", model.ErrNotValid)
	}

	var content io.Reader
	if len(req.Archive) > 0 {
		// The engine wants a plain tar stream, so the archive is validated and
		// decompressed here.
		gzr, err := gzip.NewReader(bytes.NewReader(req.Archive))
		if err != nil {
			return fmt.Errorf("content is not a valid gzip stream: %w", model.ErrNotValid)
		}
		defer gzr.Close()
		content = gzr
	}

	if err := s.engine.CreateVolume(ctx, req.Name, content); err != nil {
		return fmt.Errorf("could not create volume: %w", err)
	}

	s.logger.Infof("Created volume %s", req.Name)
	return nil
}
