package io

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/runbox/runbox/internal/model"
	"github.com/runbox/runbox/pkg/apiv1"
)

// RequestYAMLRepository loads execution requests from YAML files. The YAML
// structure mirrors the JSON wire format of the API.
type RequestYAMLRepository struct {
	fs fs.FS
}

// NewRequestYAMLRepository creates a new YAML request repository.
func NewRequestYAMLRepository(filesystem fs.FS) *RequestYAMLRepository {
	return &RequestYAMLRepository{fs: filesystem}
}

// GetRequest loads an execution request from a YAML file and returns a
// validated domain model.
func (r *RequestYAMLRepository) GetRequest(ctx context.Context, path string) (*model.ExecutionRequest, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Decode through JSON so the YAML files get the exact same coercion rules
	// (shell-form commands, numeric env values) as the API.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("converting request: %w", err)
	}

	var req apiv1.RunRequest
	if err := json.Unmarshal(jsonData, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	execReq, err := req.ToModel()
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	return execReq, nil
}
