package model

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// VolumeType identifies the provisioning strategy of a volume spec.
type VolumeType string

const (
	// VolumeTypeFile mounts a single file from inline content.
	VolumeTypeFile VolumeType = "file"
	// VolumeTypeDirectory mounts a directory tree from an inline gzip-tar archive.
	VolumeTypeDirectory VolumeType = "directory"
	// VolumeTypeVolume mounts a pre-existing named engine volume.
	VolumeTypeVolume VolumeType = "volume"
	// VolumeTypeHost bind-mounts a path from the host filesystem.
	VolumeTypeHost VolumeType = "host"
)

// MountKey identifies where and how a volume is mounted inside the container.
// It is parsed from the wire form `<container_path>[:ro|:rw]`.
type MountKey struct {
	ContainerPath string
	ReadOnly      bool

	raw string
}

// ParseMountKey parses a raw mount key. The container path must be absolute.
// The access mode suffix is optional and defaults to read-write.
func ParseMountKey(raw string) (MountKey, error) {
	path := raw
	readOnly := false

	switch {
	case strings.HasSuffix(raw, ":ro"):
		path = strings.TrimSuffix(raw, ":ro")
		readOnly = true
	case strings.HasSuffix(raw, ":rw"):
		path = strings.TrimSuffix(raw, ":rw")
	}

	if path == "" || !strings.HasPrefix(path, "/") {
		return MountKey{}, fmt.Errorf("mount key %q: container path must be absolute: %w", raw, ErrNotValid)
	}

	return MountKey{ContainerPath: path, ReadOnly: readOnly, raw: raw}, nil
}

// String returns the key exactly as the caller supplied it, including the
// access mode suffix. Captured volumes are keyed in the result by this value.
func (k MountKey) String() string { return k.raw }

// VolumeSpec is the closed set of volume provisioning strategies. Each variant
// carries only its valid fields and is validated at construction.
type VolumeSpec interface {
	// Type returns the variant discriminant.
	Type() VolumeType
	// Capture reports whether the volume content must be read back into the
	// response after execution. Only file and directory specs can request it.
	Capture() bool

	isVolumeSpec()
}

// FileSpec mounts a single file with the given content.
type FileSpec struct {
	Content  []byte
	Mode     *os.FileMode
	Response bool
}

// NewFileSpec creates a file volume spec. Mode is an optional octal POSIX
// permission string (e.g. "0755").
func NewFileSpec(content []byte, mode string, capture bool) (FileSpec, error) {
	if content == nil {
		return FileSpec{}, fmt.Errorf("file volume content is required: %w", ErrNotValid)
	}

	spec := FileSpec{Content: content, Response: capture}
	if mode != "" {
		parsed, err := strconv.ParseUint(mode, 8, 32)
		if err != nil {
			return FileSpec{}, fmt.Errorf("invalid file mode %q: %w", mode, ErrNotValid)
		}
		m := os.FileMode(parsed)
		spec.Mode = &m
	}

	return spec, nil
}

func (s FileSpec) Type() VolumeType { return VolumeTypeFile }
func (s FileSpec) Capture() bool    { return s.Response }
func (s FileSpec) isVolumeSpec()    {}

// DirectorySpec mounts a directory tree decompressed from a gzip-tar archive.
type DirectorySpec struct {
	Archive  []byte
	Response bool
}

// NewDirectorySpec creates a directory volume spec from a gzip-tar archive.
func NewDirectorySpec(archive []byte, capture bool) (DirectorySpec, error) {
	if archive == nil {
		return DirectorySpec{}, fmt.Errorf("directory volume content is required: %w", ErrNotValid)
	}

	return DirectorySpec{Archive: archive, Response: capture}, nil
}

func (s DirectorySpec) Type() VolumeType { return VolumeTypeDirectory }
func (s DirectorySpec) Capture() bool    { return s.Response }
func (s DirectorySpec) isVolumeSpec()    {}

// NamedVolumeSpec mounts a pre-existing named engine volume.
type NamedVolumeSpec struct {
	Name string
}

// NewNamedVolumeSpec creates a named volume spec. Response capture is not
// supported for engine volumes and is rejected instead of silently ignored.
func NewNamedVolumeSpec(name string, capture bool) (NamedVolumeSpec, error) {
	if name == "" {
		return NamedVolumeSpec{}, fmt.Errorf("volume name is required: %w", ErrNotValid)
	}
	if capture {
		return NamedVolumeSpec{}, fmt.Errorf("response capture is not supported for volume mounts: %w", ErrNotValid)
	}

	return NamedVolumeSpec{Name: name}, nil
}

func (s NamedVolumeSpec) Type() VolumeType { return VolumeTypeVolume }
func (s NamedVolumeSpec) Capture() bool    { return false }
func (s NamedVolumeSpec) isVolumeSpec()    {}

// HostPathSpec bind-mounts an absolute host path.
type HostPathSpec struct {
	Path string
}

// NewHostPathSpec creates a host bind spec. Response capture is not supported
// for host binds and is rejected instead of silently ignored.
func NewHostPathSpec(path string, capture bool) (HostPathSpec, error) {
	if path == "" {
		return HostPathSpec{}, fmt.Errorf("host path is required: %w", ErrNotValid)
	}
	if !strings.HasPrefix(path, "/") {
		return HostPathSpec{}, fmt.Errorf("host path %q must be absolute: %w", path, ErrNotValid)
	}
	if capture {
		return HostPathSpec{}, fmt.Errorf("response capture is not supported for host mounts: %w", ErrNotValid)
	}

	return HostPathSpec{Path: path}, nil
}

func (s HostPathSpec) Type() VolumeType { return VolumeTypeHost }
func (s HostPathSpec) Capture() bool    { return false }
func (s HostPathSpec) isVolumeSpec()    {}

// Mount binds a volume spec to a container path.
type Mount struct {
	Key  MountKey
	Spec VolumeSpec
}
