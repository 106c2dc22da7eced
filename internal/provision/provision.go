// Package provision materializes volume specs into real filesystem and engine
// resources, and guarantees their teardown.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/runbox/runbox/internal/archive"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

// fileMountName is the fixed child name used for file volume content inside
// its owned temp directory.
const fileMountName = "content"

// VolumeChecker verifies that a named engine volume exists.
type VolumeChecker interface {
	VolumeExists(ctx context.Context, name string) (bool, error)
}

// Resource binds a mount to the concrete host-side source that backs it.
type Resource struct {
	Mount model.Mount
	// Source is the host path (file or directory) or the volume name to bind.
	Source string
	// Owned reports whether the workspace created this resource. Owned
	// resources are destroyed on Close; referenced ones (named volumes, host
	// paths) never are.
	Owned bool
}

// WorkspaceConfig is the configuration for a provisioning workspace.
type WorkspaceConfig struct {
	// BaseDir is where the per-request temp namespace is created. Defaults to
	// the system temp directory.
	BaseDir string
	Logger  log.Logger
}

func (c *WorkspaceConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provision.Workspace"})
	return nil
}

// Workspace owns every ephemeral resource created for one execution request.
// All owned resources live under a unique per-request directory, so teardown
// is total even when provisioning fails partway through.
type Workspace struct {
	root      string
	logger    log.Logger
	resources []Resource
	closed    bool
}

// NewWorkspace creates the per-request temp namespace.
func NewWorkspace(cfg WorkspaceConfig) (*Workspace, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	id := strings.ToLower(ulid.Make().String())
	root, err := os.MkdirTemp(cfg.BaseDir, "runbox-"+id+"-")
	if err != nil {
		return nil, fmt.Errorf("could not create workspace directory: %w", err)
	}

	return &Workspace{
		root:   root,
		logger: cfg.Logger.WithValues(log.Kv{"workspace": filepath.Base(root)}),
	}, nil
}

// Provision materializes the given mounts in order. Owned resources are
// recorded before moving to the next entry, so a failure partway through
// still allows Close to roll back everything created so far.
func (w *Workspace) Provision(ctx context.Context, mounts []model.Mount, volumes VolumeChecker) ([]Resource, error) {
	for i, m := range mounts {
		res, err := w.provisionMount(ctx, i, m, volumes)
		if err != nil {
			return nil, fmt.Errorf("mount %q: %w", m.Key, err)
		}
		w.resources = append(w.resources, res)
	}

	w.logger.Debugf("Provisioned %d mounts", len(w.resources))
	return w.resources, nil
}

func (w *Workspace) provisionMount(ctx context.Context, index int, m model.Mount, volumes VolumeChecker) (Resource, error) {
	switch spec := m.Spec.(type) {
	case model.FileSpec:
		dir, err := w.mountDir(index)
		if err != nil {
			return Resource{}, err
		}
		path := filepath.Join(dir, fileMountName)
		if err := os.WriteFile(path, spec.Content, 0o644); err != nil {
			return Resource{}, fmt.Errorf("could not write file content: %w", err)
		}
		if spec.Mode != nil {
			if err := os.Chmod(path, *spec.Mode); err != nil {
				return Resource{}, fmt.Errorf("could not set file mode: %w", err)
			}
		}
		return Resource{Mount: m, Source: path, Owned: true}, nil

	case model.DirectorySpec:
		dir, err := w.mountDir(index)
		if err != nil {
			return Resource{}, err
		}
		if err := archive.Unpack(spec.Archive, dir); err != nil {
			return Resource{}, err
		}
		return Resource{Mount: m, Source: dir, Owned: true}, nil

	case model.NamedVolumeSpec:
		exists, err := volumes.VolumeExists(ctx, spec.Name)
		if err != nil {
			return Resource{}, fmt.Errorf("could not check volume %q: %w", spec.Name, err)
		}
		if !exists {
			return Resource{}, fmt.Errorf("volume %q: %w", spec.Name, model.ErrNotFound)
		}
		return Resource{Mount: m, Source: spec.Name}, nil

	case model.HostPathSpec:
		if _, err := os.Stat(spec.Path); err != nil {
			return Resource{}, fmt.Errorf("host path %q is not accessible: %w", spec.Path, model.ErrNotValid)
		}
		return Resource{Mount: m, Source: spec.Path}, nil
	}

	return Resource{}, fmt.Errorf("unknown volume spec type %T: %w", m.Spec, model.ErrNotValid)
}

// mountDir creates the owned directory backing one mount. Each mount gets its
// own subdirectory so content from different mounts never collides.
func (w *Workspace) mountDir(index int) (string, error) {
	dir := filepath.Join(w.root, fmt.Sprintf("m%d", index))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create mount directory: %w", err)
	}
	return dir, nil
}

// Resources returns the resources provisioned so far.
func (w *Workspace) Resources() []Resource { return w.resources }

// Close removes every owned resource. It is idempotent and never fails the
// request: removal errors are logged, not returned, so they cannot mask the
// primary result.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := os.RemoveAll(w.root); err != nil {
		w.logger.Warningf("Could not remove workspace %s: %v", w.root, err)
		return nil
	}

	w.logger.Debugf("Removed workspace")
	return nil
}
