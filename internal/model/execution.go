package model

import (
	"fmt"
	"time"

	"github.com/google/shlex"
)

// PullPolicy controls whether the image is pulled from a registry before running.
type PullPolicy string

const (
	// PullPolicyAlways pulls the image on every execution.
	PullPolicyAlways PullPolicy = "always"
	// PullPolicyNever never pulls and fails fast when the image is absent locally.
	PullPolicyNever PullPolicy = "never"
)

// ParsePullPolicy parses a pull policy string. Empty defaults to always.
func ParsePullPolicy(s string) (PullPolicy, error) {
	switch PullPolicy(s) {
	case "":
		return PullPolicyAlways, nil
	case PullPolicyAlways:
		return PullPolicyAlways, nil
	case PullPolicyNever:
		return PullPolicyNever, nil
	}
	return "", fmt.Errorf("unknown pull policy %q: %w", s, ErrNotValid)
}

// RegistryAuth are the credentials used to pull images from a registry.
type RegistryAuth struct {
	Username      string
	Password      string
	Email         string
	ServerAddress string
}

// ExecutionRequest describes a single disposable container execution.
// It is immutable once accepted.
type ExecutionRequest struct {
	Image      string
	Command    []string
	Entrypoint []string
	Env        map[string]string
	PullPolicy PullPolicy
	Auth       *RegistryAuth
	Mounts     []Mount
}

// Validate validates the execution request.
func (r *ExecutionRequest) Validate() error {
	if r.Image == "" {
		return fmt.Errorf("image is required: %w", ErrNotValid)
	}

	if r.PullPolicy != PullPolicyAlways && r.PullPolicy != PullPolicyNever {
		return fmt.Errorf("unknown pull policy %q: %w", r.PullPolicy, ErrNotValid)
	}

	// Container paths must be unique regardless of access mode suffixes.
	seen := map[string]struct{}{}
	for _, m := range r.Mounts {
		if m.Spec == nil {
			return fmt.Errorf("mount %q has no volume spec: %w", m.Key, ErrNotValid)
		}
		if _, ok := seen[m.Key.ContainerPath]; ok {
			return fmt.Errorf("duplicate container path %q: %w", m.Key.ContainerPath, ErrNotValid)
		}
		seen[m.Key.ContainerPath] = struct{}{}
	}

	return nil
}

// SplitCommand splits a single shell-form command string into an argument list.
func SplitCommand(s string) ([]string, error) {
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("could not split command %q: %w", s, ErrNotValid)
	}
	return args, nil
}

// CapturedVolume is the post-execution content of a volume flagged for capture.
type CapturedVolume struct {
	Type VolumeType
	// Content is the raw file bytes for file volumes and a gzip-tar archive
	// for directory volumes.
	Content []byte
}

// ExecutionResult is the outcome of a single execution.
type ExecutionResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	// Volumes maps the caller-supplied mount key (including its access mode
	// suffix) to the captured content.
	Volumes map[string]CapturedVolume
}

// Status returns the wire status literal: "success" for a zero exit code and
// "error: <exit_code>" otherwise.
func (r *ExecutionResult) Status() string {
	if r.ExitCode == 0 {
		return "success"
	}
	return fmt.Sprintf("error: %d", r.ExitCode)
}

// Health is the result of probing the container engine.
type Health struct {
	Reachable  bool
	Version    string
	APIVersion string
	OS         string
	Arch       string
	Error      string
}

// ExecutionStatus is the lifecycle state of an execution history record.
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in flight.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusSuccess indicates the container exited with code zero.
	ExecutionStatusSuccess ExecutionStatus = "success"
	// ExecutionStatusError indicates the container exited with a nonzero code.
	ExecutionStatusError ExecutionStatus = "error"
	// ExecutionStatusFailed indicates the execution never completed (engine or
	// provisioning failure).
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusTimedOut indicates the execution exceeded its time budget.
	ExecutionStatusTimedOut ExecutionStatus = "timed_out"
)

// ExecutionRecord is a history entry for one execution request.
type ExecutionRecord struct {
	ID        string
	Image     string
	Status    ExecutionStatus
	ExitCode  int
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}
