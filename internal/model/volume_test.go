package model_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbox/runbox/internal/model"
)

func TestParseMountKey(t *testing.T) {
	tests := map[string]struct {
		raw         string
		expPath     string
		expReadOnly bool
		expErr      bool
	}{
		"A plain absolute path should default to read-write": {
			raw:     "/app/data",
			expPath: "/app/data",
		},

		"A ro suffix should set read-only": {
			raw:         "/app/config.yaml:ro",
			expPath:     "/app/config.yaml",
			expReadOnly: true,
		},

		"A rw suffix should set read-write": {
			raw:     "/app/data:rw",
			expPath: "/app/data",
		},

		"A relative path should fail": {
			raw:    "app/data",
			expErr: true,
		},

		"An empty key should fail": {
			raw:    "",
			expErr: true,
		},

		"A bare access mode suffix should fail": {
			raw:    ":ro",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			key, err := model.ParseMountKey(test.raw)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}

			require.NoError(t, err)
			assert.Equal(test.expPath, key.ContainerPath)
			assert.Equal(test.expReadOnly, key.ReadOnly)
			assert.Equal(test.raw, key.String())
		})
	}
}

func TestNewFileSpec(t *testing.T) {
	tests := map[string]struct {
		content []byte
		mode    string
		capture bool
		expMode *os.FileMode
		expErr  bool
	}{
		"A file spec with content should be valid": {
			content: []byte("hello"),
		},

		"A valid octal mode should be parsed": {
			content: []byte("#!/bin/sh\n"),
			mode:    "0755",
			expMode: fileModePtr(0o755),
		},

		"Missing content should fail": {
			expErr: true,
		},

		"An invalid mode string should fail": {
			content: []byte("x"),
			mode:    "rwxr-xr-x",
			expErr:  true,
		},

		"Capture can be requested": {
			content: []byte("x"),
			capture: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			spec, err := model.NewFileSpec(test.content, test.mode, test.capture)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}

			require.NoError(t, err)
			assert.Equal(test.content, spec.Content)
			assert.Equal(test.expMode, spec.Mode)
			assert.Equal(test.capture, spec.Capture())
			assert.Equal(model.VolumeTypeFile, spec.Type())
		})
	}
}

func TestNewNamedVolumeSpec(t *testing.T) {
	tests := map[string]struct {
		volName string
		capture bool
		expErr  bool
	}{
		"A named volume should be valid": {
			volName: "cache",
		},

		"Missing name should fail": {
			expErr: true,
		},

		"Requesting capture should fail": {
			volName: "cache",
			capture: true,
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			spec, err := model.NewNamedVolumeSpec(test.volName, test.capture)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}

			require.NoError(t, err)
			assert.Equal(test.volName, spec.Name)
			assert.False(spec.Capture())
		})
	}
}

func TestNewHostPathSpec(t *testing.T) {
	tests := map[string]struct {
		path    string
		capture bool
		expErr  bool
	}{
		"An absolute host path should be valid": {
			path: "/var/lib/data",
		},

		"A relative host path should fail": {
			path:   "var/lib/data",
			expErr: true,
		},

		"Missing path should fail": {
			expErr: true,
		},

		"Requesting capture should fail": {
			path:    "/var/lib/data",
			capture: true,
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			spec, err := model.NewHostPathSpec(test.path, test.capture)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}

			require.NoError(t, err)
			assert.Equal(test.path, spec.Path)
		})
	}
}

func TestNewDirectorySpec(t *testing.T) {
	assert := assert.New(t)

	_, err := model.NewDirectorySpec(nil, false)
	assert.ErrorIs(err, model.ErrNotValid)

	spec, err := model.NewDirectorySpec([]byte{0x1f, 0x8b}, true)
	assert.NoError(err)
	assert.True(spec.Capture())
	assert.Equal(model.VolumeTypeDirectory, spec.Type())
}

func fileModePtr(m os.FileMode) *os.FileMode { return &m }
