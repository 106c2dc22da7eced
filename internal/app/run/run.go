package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/runbox/runbox/internal/archive"
	"github.com/runbox/runbox/internal/engine"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
	"github.com/runbox/runbox/internal/provision"
	"github.com/runbox/runbox/internal/storage"
)

// ServiceConfig is the configuration for the run service.
type ServiceConfig struct {
	Engine engine.Engine
	// Repository records execution history. Optional: a nil repository
	// disables history without affecting executions.
	Repository storage.Repository
	// WorkDir is where per-request workspaces are created. Defaults to the
	// system temp directory.
	WorkDir string
	// Timeout bounds each container execution. Defaults to 5 minutes.
	Timeout time.Duration
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Run"})
	return nil
}

// Service executes one disposable container per request, with volume
// provisioning, response capture and guaranteed cleanup.
type Service struct {
	engine  engine.Engine
	repo    storage.Repository
	workDir string
	timeout time.Duration
	logger  log.Logger
}

// NewService creates a new run service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine:  cfg.Engine,
		repo:    cfg.Repository,
		workDir: cfg.WorkDir,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Run validates the request, provisions its volumes, executes the container
// to completion and captures the requested volume contents. Every provisioned
// resource is released before returning, whatever the outcome.
func (s *Service) Run(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record := model.ExecutionRecord{
		ID:        strings.ToLower(ulid.Make().String()),
		Image:     req.Image,
		Status:    model.ExecutionStatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	s.createRecord(ctx, record)

	logger := s.logger.WithValues(log.Kv{"execution": record.ID, "image": req.Image})

	ws, err := provision.NewWorkspace(provision.WorkspaceConfig{
		BaseDir: s.workDir,
		Logger:  logger,
	})
	if err != nil {
		s.finishRecord(ctx, record, nil, err)
		return nil, fmt.Errorf("could not create workspace: %w", err)
	}
	defer ws.Close()

	resources, err := ws.Provision(ctx, req.Mounts, s.engine)
	if err != nil {
		s.finishRecord(ctx, record, nil, err)
		return nil, err
	}

	binds := make([]engine.Bind, 0, len(resources))
	for _, res := range resources {
		binds = append(binds, engine.Bind{
			Source:   res.Source,
			Target:   res.Mount.Key.ContainerPath,
			ReadOnly: res.Mount.Key.ReadOnly,
			Volume:   res.Mount.Spec.Type() == model.VolumeTypeVolume,
		})
	}

	runResult, err := s.engine.Run(ctx, engine.RunSpec{
		Image:      req.Image,
		Command:    req.Command,
		Entrypoint: req.Entrypoint,
		Env:        req.Env,
		PullPolicy: req.PullPolicy,
		Auth:       req.Auth,
		Binds:      binds,
		Timeout:    s.timeout,
	})
	if err != nil {
		s.finishRecord(ctx, record, nil, err)
		return nil, err
	}

	captured, err := s.captureVolumes(resources)
	if err != nil {
		s.finishRecord(ctx, record, nil, err)
		return nil, err
	}

	result := &model.ExecutionResult{
		ExitCode: runResult.ExitCode,
		Stdout:   runResult.Stdout,
		Stderr:   runResult.Stderr,
		Duration: runResult.Duration,
		Volumes:  captured,
	}
	s.finishRecord(ctx, record, result, nil)

	logger.Infof("Execution finished: %s", result.Status())
	return result, nil
}

// captureVolumes reads back the content of every owned resource whose spec
// requested capture. It runs after the container exited, so the content is
// whatever the container left behind.
func (s *Service) captureVolumes(resources []provision.Resource) (map[string]model.CapturedVolume, error) {
	var captured map[string]model.CapturedVolume
	for _, res := range resources {
		if !res.Mount.Spec.Capture() {
			continue
		}

		var content []byte
		var err error
		switch res.Mount.Spec.Type() {
		case model.VolumeTypeFile:
			content, err = os.ReadFile(res.Source)
		case model.VolumeTypeDirectory:
			content, err = archive.Pack(res.Source)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not capture volume %q: %w", res.Mount.Key, err)
		}

		if captured == nil {
			captured = map[string]model.CapturedVolume{}
		}
		captured[res.Mount.Key.String()] = model.CapturedVolume{
			Type:    res.Mount.Spec.Type(),
			Content: content,
		}
	}

	return captured, nil
}

// createRecord writes the initial history entry. History failures are logged,
// they never fail the execution.
func (s *Service) createRecord(ctx context.Context, record model.ExecutionRecord) {
	if s.repo == nil {
		return
	}
	if err := s.repo.CreateExecution(ctx, record); err != nil {
		s.logger.Warningf("Could not record execution %s: %v", record.ID, err)
	}
}

// finishRecord updates the history entry with the terminal state.
func (s *Service) finishRecord(ctx context.Context, record model.ExecutionRecord, result *model.ExecutionResult, runErr error) {
	if s.repo == nil {
		return
	}

	switch {
	case runErr != nil && errors.Is(runErr, model.ErrTimeout):
		record.Status = model.ExecutionStatusTimedOut
		record.Error = runErr.Error()
	case runErr != nil:
		record.Status = model.ExecutionStatusFailed
		record.Error = runErr.Error()
	case result.ExitCode != 0:
		record.Status = model.ExecutionStatusError
		record.ExitCode = result.ExitCode
		record.Duration = result.Duration
	default:
		record.Status = model.ExecutionStatusSuccess
		record.Duration = result.Duration
	}

	if err := s.repo.UpdateExecution(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Warningf("Could not update execution record %s: %v", record.ID, err)
	}
}
