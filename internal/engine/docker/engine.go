package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/runbox/runbox/internal/engine"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

const (
	// defaultRunTimeout bounds container execution when the spec doesn't set one.
	defaultRunTimeout = 5 * time.Minute
	// helperImage is used to populate named volumes from an archive.
	helperImage = "busybox:stable"
	// volumeDataPath is where a volume is mounted inside the helper container.
	volumeDataPath = "/volume-data"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error)
	VolumeInspect(ctx context.Context, volumeID string) (volume.Volume, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	Ping(ctx context.Context) (types.Ping, error)
	ServerVersion(ctx context.Context) (types.Version, error)
}

// EngineConfig is the configuration for the Docker engine.
type EngineConfig struct {
	Client DockerClient
	// RunTimeout is the default bound on container execution.
	RunTimeout time.Duration
	Logger     log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "engine.Docker"})
	return nil
}

// Engine is the Docker implementation of the engine.Engine interface.
type Engine struct {
	client     DockerClient
	runTimeout time.Duration
	logger     log.Logger
}

// NewEngine creates a new Docker engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		client:     cfg.Client,
		runTimeout: cfg.RunTimeout,
		logger:     cfg.Logger,
	}, nil
}

// Run executes a single disposable container to completion.
func (e *Engine) Run(ctx context.Context, spec engine.RunSpec) (*engine.RunResult, error) {
	start := time.Now()

	if err := e.ensureImage(ctx, spec.Image, spec.PullPolicy, spec.Auth); err != nil {
		return nil, err
	}

	containerID, err := e.createContainer(ctx, spec)
	if err != nil {
		return nil, err
	}
	// The container is disposable: remove it on every exit path so no
	// orphans accumulate across requests. Removal failures are logged, they
	// must not mask the run outcome.
	defer e.removeContainer(ctx, containerID)

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, e.mapEngineError(fmt.Errorf("could not start container: %w", err))
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.runTimeout
	}

	exitCode, err := e.waitContainer(ctx, containerID, timeout)
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := e.collectOutput(ctx, containerID)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	e.logger.Debugf("Container %s exited with code %d after %s", containerID[:12], exitCode, elapsed)

	return &engine.RunResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: elapsed,
	}, nil
}

// ensureImage pulls the image or verifies its local presence per the pull policy.
func (e *Engine) ensureImage(ctx context.Context, ref string, policy model.PullPolicy, auth *model.RegistryAuth) error {
	if policy == model.PullPolicyNever {
		_, err := e.client.ImageInspect(ctx, ref)
		if err != nil {
			if client.IsErrNotFound(err) {
				return fmt.Errorf("image %q is not present locally: %w", ref, model.ErrNotFound)
			}
			return e.mapEngineError(fmt.Errorf("could not inspect image %q: %w", ref, err))
		}
		return nil
	}

	opts := image.PullOptions{}
	if auth != nil {
		encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      auth.Username,
			Password:      auth.Password,
			Email:         auth.Email,
			ServerAddress: auth.ServerAddress,
		})
		if err != nil {
			return fmt.Errorf("could not encode registry auth: %w", err)
		}
		opts.RegistryAuth = encoded
	}

	e.logger.Debugf("Pulling image %s", ref)
	pullResp, err := e.client.ImagePull(ctx, ref, opts)
	if err != nil {
		switch {
		case isAuthError(err):
			return fmt.Errorf("registry rejected credentials for %q: %w", ref, model.ErrAuth)
		case client.IsErrNotFound(err) || strings.Contains(err.Error(), "manifest unknown"):
			return fmt.Errorf("image %q: %w", ref, model.ErrNotFound)
		}
		return e.mapEngineError(fmt.Errorf("could not pull image %q: %w", ref, err))
	}
	// Consume the pull response to ensure it completes.
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	return nil
}

func (e *Engine) createContainer(ctx context.Context, spec engine.RunSpec) (string, error) {
	var envVars []string
	for k, v := range spec.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image:      spec.Image,
		Env:        envVars,
		Cmd:        strslice.StrSlice(spec.Command),
		Entrypoint: strslice.StrSlice(spec.Entrypoint),
	}

	mounts := make([]mount.Mount, 0, len(spec.Binds))
	for _, b := range spec.Binds {
		mountType := mount.TypeBind
		if b.Volume {
			mountType = mount.TypeVolume
		}
		mounts = append(mounts, mount.Mount{
			Type:     mountType,
			Source:   b.Source,
			Target:   b.Target,
			ReadOnly: b.ReadOnly,
		})
	}

	hostConfig := &container.HostConfig{Mounts: mounts}

	containerName := fmt.Sprintf("runbox-%s", strings.ToLower(ulid.Make().String()))
	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", fmt.Errorf("image %q: %w", spec.Image, model.ErrNotFound)
		}
		return "", e.mapEngineError(fmt.Errorf("could not create container: %w", err))
	}

	e.logger.Debugf("Created container %s (%s)", containerName, resp.ID[:12])
	return resp.ID, nil
}

// waitContainer blocks until the container exits or the timeout elapses. On
// timeout the deferred removal force-kills the container.
func (e *Engine) waitContainer(ctx context.Context, containerID string, timeout time.Duration) (int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waitCh, errCh := e.client.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return 0, fmt.Errorf("container wait failed: %s", resp.Error.Message)
		}
		return int(resp.StatusCode), nil

	case err := <-errCh:
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return 0, fmt.Errorf("execution exceeded %s: %w", timeout, model.ErrTimeout)
		}
		return 0, e.mapEngineError(fmt.Errorf("could not wait for container: %w", err))
	}
}

// collectOutput reads the complete demultiplexed stdout/stderr streams. The
// containers are short-lived one-offs, buffering fully in memory is fine.
func (e *Engine) collectOutput(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := e.client.ContainerLogs(context.WithoutCancel(ctx), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", e.mapEngineError(fmt.Errorf("could not read container logs: %w", err))
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil {
		return "", "", fmt.Errorf("could not demultiplex container logs: %w", err)
	}

	return outBuf.String(), errBuf.String(), nil
}

func (e *Engine) removeContainer(ctx context.Context, containerID string) {
	err := e.client.ContainerRemove(context.WithoutCancel(ctx), containerID, container.RemoveOptions{
		Force: true, // Force removal even if running (e.g. after a timeout).
	})
	if err != nil && !client.IsErrNotFound(err) {
		e.logger.Warningf("Could not remove container %s: %v", containerID[:12], err)
	}
}

// CreateVolume creates a named engine volume, optionally pre-populated from a
// tar stream via a short-lived helper container.
func (e *Engine) CreateVolume(ctx context.Context, name string, content io.Reader) error {
	exists, err := e.VolumeExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("volume %q: %w", name, model.ErrAlreadyExists)
	}

	if _, err := e.client.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return e.mapEngineError(fmt.Errorf("could not create volume %q: %w", name, err))
	}

	if content == nil {
		return nil
	}

	if err := e.populateVolume(ctx, name, content); err != nil {
		// Don't leave a half-populated volume behind.
		if rmErr := e.client.VolumeRemove(context.WithoutCancel(ctx), name, true); rmErr != nil {
			e.logger.Warningf("Could not remove volume %s after failed populate: %v", name, rmErr)
		}
		return err
	}

	e.logger.Debugf("Created and populated volume %s", name)
	return nil
}

// populateVolume copies a tar stream into the volume through a helper
// container that mounts it.
func (e *Engine) populateVolume(ctx context.Context, name string, content io.Reader) error {
	if _, err := e.client.ImageInspect(ctx, helperImage); err != nil {
		if !client.IsErrNotFound(err) {
			return e.mapEngineError(fmt.Errorf("could not inspect helper image: %w", err))
		}
		if err := e.ensureImage(ctx, helperImage, model.PullPolicyAlways, nil); err != nil {
			return err
		}
	}

	containerName := fmt.Sprintf("runbox-volume-%s", strings.ToLower(ulid.Make().String()))
	resp, err := e.client.ContainerCreate(ctx, &container.Config{
		Image: helperImage,
		Cmd:   strslice.StrSlice{"true"},
	}, &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeVolume, Source: name, Target: volumeDataPath}},
	}, nil, nil, containerName)
	if err != nil {
		return e.mapEngineError(fmt.Errorf("could not create volume helper container: %w", err))
	}
	defer e.removeContainer(ctx, resp.ID)

	err = e.client.CopyToContainer(ctx, resp.ID, volumeDataPath, content, container.CopyToContainerOptions{})
	if err != nil {
		return e.mapEngineError(fmt.Errorf("could not copy archive into volume %q: %w", name, err))
	}

	return nil
}

// VolumeExists reports whether a named engine volume exists.
func (e *Engine) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, err := e.client.VolumeInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, e.mapEngineError(fmt.Errorf("could not inspect volume %q: %w", name, err))
	}
	return true, nil
}

// Health probes the Docker daemon.
func (e *Engine) Health(ctx context.Context) *model.Health {
	if _, err := e.client.Ping(ctx); err != nil {
		return &model.Health{Reachable: false, Error: err.Error()}
	}

	version, err := e.client.ServerVersion(ctx)
	if err != nil {
		return &model.Health{Reachable: false, Error: err.Error()}
	}

	return &model.Health{
		Reachable:  true,
		Version:    version.Version,
		APIVersion: version.APIVersion,
		OS:         version.Os,
		Arch:       version.Arch,
	}
}

// mapEngineError classifies daemon connectivity failures so transports can
// distinguish them from request-level errors.
func (e *Engine) mapEngineError(err error) error {
	if client.IsErrConnectionFailed(err) {
		return fmt.Errorf("%s: %w", err, model.ErrEngineUnavailable)
	}
	return err
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication required") ||
		strings.Contains(msg, "denied")
}
