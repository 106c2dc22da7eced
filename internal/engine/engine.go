package engine

import (
	"context"
	"io"
	"time"

	"github.com/runbox/runbox/internal/model"
)

// Bind maps a provisioned host-side resource into the container.
type Bind struct {
	// Source is the host path to bind, or the volume name when Volume is set.
	Source string
	// Target is the absolute path inside the container.
	Target string
	// ReadOnly mounts the bind read-only.
	ReadOnly bool
	// Volume marks Source as a named engine volume instead of a host path.
	Volume bool
}

// RunSpec describes a single one-shot container run.
type RunSpec struct {
	Image      string
	Command    []string
	Entrypoint []string
	Env        map[string]string
	PullPolicy model.PullPolicy
	Auth       *model.RegistryAuth
	Binds      []Bind
	// Timeout bounds the wait for container completion. Zero means the
	// engine default.
	Timeout time.Duration
}

// RunResult is the raw outcome of a container run.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Engine is the interface for one-shot container execution.
type Engine interface {
	// Run pulls the image per the spec's pull policy, runs the container to
	// completion and returns its output. The container is always removed,
	// whatever the outcome. A nonzero exit code is a result, not an error.
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)

	// CreateVolume creates a named engine volume, optionally pre-populated
	// from a tar stream. A nil content creates an empty volume.
	CreateVolume(ctx context.Context, name string, content io.Reader) error

	// VolumeExists reports whether a named engine volume exists.
	VolumeExists(ctx context.Context, name string) (bool, error)

	// Health probes the engine daemon. It never returns an error; an
	// unreachable daemon is reported in the result.
	Health(ctx context.Context) *model.Health
}
