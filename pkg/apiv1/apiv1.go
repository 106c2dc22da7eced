// Package apiv1 has the wire types of the v1 API. The same types are used by
// the REST endpoints, the MCP tools and the CLI request files.
package apiv1

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/shlex"

	"github.com/runbox/runbox/internal/model"
)

// DefaultRegistryServer is used when auth credentials don't name a registry.
const DefaultRegistryServer = "https://index.docker.io/v1/"

// StringOrSlice accepts a command either as a JSON array of arguments or as a
// single shell-form string that gets split into arguments.
type StringOrSlice []string

func (s *StringOrSlice) UnmarshalJSON(data []byte) error {
	var asSlice []string
	if err := json.Unmarshal(data, &asSlice); err == nil {
		*s = asSlice
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return fmt.Errorf("must be a string or an array of strings")
	}

	split, err := shlex.Split(asString)
	if err != nil {
		return fmt.Errorf("could not split command %q: %s", asString, err)
	}
	*s = split
	return nil
}

// EnvVars accepts environment values as strings, numbers or booleans and
// normalizes everything to strings. Numbers keep their literal form.
type EnvVars map[string]string

func (e *EnvVars) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("must be an object")
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case json.Number:
			out[k] = tv.String()
		case bool:
			out[k] = fmt.Sprintf("%t", tv)
		default:
			return fmt.Errorf("variable %q must be a string, number or boolean", k)
		}
	}
	*e = out
	return nil
}

// AuthConfig are registry credentials for pulling private images.
type AuthConfig struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Email         string `json:"email,omitempty"`
	ServerAddress string `json:"serveraddress,omitempty"`
}

func (a AuthConfig) toModel() *model.RegistryAuth {
	server := a.ServerAddress
	if server == "" {
		server = DefaultRegistryServer
	}
	return &model.RegistryAuth{
		Username:      a.Username,
		Password:      a.Password,
		Email:         a.Email,
		ServerAddress: server,
	}
}

// VolumeSpec is the wire form of one volume entry, keyed in the request by
// its mount key ("<container path>[:ro|:rw]").
type VolumeSpec struct {
	Type string `json:"type"`
	// Content is base64: raw file bytes for file volumes, a gzip-compressed
	// tar archive for directory volumes.
	Content string `json:"content,omitempty"`
	// Mode is an octal file mode string such as "0755". File volumes only.
	Mode string `json:"mode,omitempty"`
	// Response requests post-execution content capture.
	Response bool `json:"response,omitempty"`
	// Name is the engine volume name. Volume type only.
	Name string `json:"name,omitempty"`
	// HostPath is the absolute host path to bind. Host type only.
	HostPath string `json:"host_path,omitempty"`
}

// RunRequest is the wire form of a container execution request.
type RunRequest struct {
	Image      string                `json:"image"`
	Command    StringOrSlice         `json:"command,omitempty"`
	Entrypoint StringOrSlice         `json:"entrypoint,omitempty"`
	Env        EnvVars               `json:"env_vars,omitempty"`
	AuthConfig *AuthConfig           `json:"auth_config,omitempty"`
	PullPolicy string                `json:"pull_policy,omitempty"`
	Volumes    map[string]VolumeSpec `json:"volumes,omitempty"`
}

// ToModel validates and converts the request into the domain model. Mounts
// are ordered lexically by mount key so identical requests always provision
// identically.
func (r RunRequest) ToModel() (*model.ExecutionRequest, error) {
	policy, err := model.ParsePullPolicy(r.PullPolicy)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(r.Volumes))
	for k := range r.Volumes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mounts := make([]model.Mount, 0, len(keys))
	for _, rawKey := range keys {
		key, err := model.ParseMountKey(rawKey)
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", rawKey, err)
		}

		spec, err := r.Volumes[rawKey].toModel()
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", rawKey, err)
		}

		mounts = append(mounts, model.Mount{Key: key, Spec: spec})
	}

	var auth *model.RegistryAuth
	if r.AuthConfig != nil {
		auth = r.AuthConfig.toModel()
	}

	req := &model.ExecutionRequest{
		Image:      r.Image,
		Command:    r.Command,
		Entrypoint: r.Entrypoint,
		Env:        r.Env,
		PullPolicy: policy,
		Auth:       auth,
		Mounts:     mounts,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

func (v VolumeSpec) toModel() (model.VolumeSpec, error) {
	switch model.VolumeType(v.Type) {
	case model.VolumeTypeFile:
		content, err := base64.StdEncoding.DecodeString(v.Content)
		if err != nil {
			return nil, fmt.Errorf("content is not valid base64: %w", model.ErrNotValid)
		}
		return model.NewFileSpec(content, v.Mode, v.Response)

	case model.VolumeTypeDirectory:
		archive, err := base64.StdEncoding.DecodeString(v.Content)
		if err != nil {
			return nil, fmt.Errorf("content is not valid base64: %w", model.ErrNotValid)
		}
		return model.NewDirectorySpec(archive, v.Response)

	case model.VolumeTypeVolume:
		return model.NewNamedVolumeSpec(v.Name, v.Response)

	case model.VolumeTypeHost:
		return model.NewHostPathSpec(v.HostPath, v.Response)
	}

	return nil, fmt.Errorf("unknown volume type %q: %w", v.Type, model.ErrNotValid)
}

// CapturedVolume is the wire form of captured post-execution volume content.
type CapturedVolume struct {
	Type string `json:"type"`
	// Content is base64: raw file bytes or a gzip-compressed tar archive.
	Content string `json:"content"`
}

// RunResponse is the wire form of an execution result.
type RunResponse struct {
	// Status is "success" for a zero exit code, "error: <exit_code>" otherwise.
	Status     string                    `json:"status"`
	Stdout     string                    `json:"stdout"`
	Stderr     string                    `json:"stderr"`
	DurationMS int64                     `json:"duration_ms"`
	Volumes    map[string]CapturedVolume `json:"volumes,omitempty"`
}

// NewRunResponse maps a domain execution result to its wire form.
func NewRunResponse(result *model.ExecutionResult) RunResponse {
	resp := RunResponse{
		Status:     result.Status(),
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		DurationMS: result.Duration.Milliseconds(),
	}

	if len(result.Volumes) > 0 {
		resp.Volumes = make(map[string]CapturedVolume, len(result.Volumes))
		for key, v := range result.Volumes {
			resp.Volumes[key] = CapturedVolume{
				Type:    string(v.Type),
				Content: base64.StdEncoding.EncodeToString(v.Content),
			}
		}
	}

	return resp
}

// VolumeCreateRequest is the wire form of a named volume creation request.
type VolumeCreateRequest struct {
	Name string `json:"name"`
	// Content is an optional base64 gzip-compressed tar archive used to seed
	// the volume.
	Content string `json:"content,omitempty"`
}

// VolumeCreateResponse is the wire form of a named volume creation result.
type VolumeCreateResponse struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

// HealthResponse is the wire form of an engine health probe.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
	OS         string `json:"os,omitempty"`
	Arch       string `json:"arch,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewHealthResponse maps a domain health probe to its wire form.
func NewHealthResponse(h *model.Health) HealthResponse {
	status := "healthy"
	if !h.Reachable {
		status = "unhealthy"
	}
	return HealthResponse{
		Status:     status,
		Version:    h.Version,
		APIVersion: h.APIVersion,
		OS:         h.OS,
		Arch:       h.Arch,
		Error:      h.Error,
	}
}

// Execution is the wire form of one execution history record.
type Execution struct {
	ID         string `json:"id"`
	Image      string `json:"image"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// NewExecution maps a domain history record to its wire form.
func NewExecution(e model.ExecutionRecord) Execution {
	return Execution{
		ID:         e.ID,
		Image:      e.Image,
		Status:     string(e.Status),
		ExitCode:   e.ExitCode,
		Error:      e.Error,
		DurationMS: e.Duration.Milliseconds(),
		CreatedAt:  e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
