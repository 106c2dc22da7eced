package volumecreate

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runbox/runbox/internal/engine/enginemock"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

func makeArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		req    Request
		mock   func(t *testing.T, mEngine *enginemock.MockEngine)
		expErr error
	}{
		"Creating an empty volume should pass no content to the engine": {
			req: Request{Name: "empty-vol"},
			mock: func(t *testing.T, mEngine *enginemock.MockEngine) {
				mEngine.On("CreateVolume", mock.Anything, "empty-vol", nil).Once().Return(nil)
			},
		},

		"Creating a seeded volume should pass the decompressed tar stream": {
			req: Request{Name: "seeded", Archive: makeArchive(t, map[string]string{"a.txt": "aaa"})},
			mock: func(t *testing.T, mEngine *enginemock.MockEngine) {
				mEngine.On("CreateVolume", mock.Anything, "seeded", mock.MatchedBy(func(content io.Reader) bool {
					if content == nil {
						return false
					}
					// The engine must receive a plain tar stream.
					header, err := tar.NewReader(content).Next()
					return err == nil && header.Name == "a.txt"
				})).Once().Return(nil)
			},
		},

		"A missing name should fail": {
			req:    Request{},
			mock:   func(t *testing.T, mEngine *enginemock.MockEngine) {},
			expErr: model.ErrNotValid,
		},

		"Garbage content should fail without touching the engine": {
			req:    Request{Name: "vol", Archive: []byte("not gzip at all")},
			mock:   func(t *testing.T, mEngine *enginemock.MockEngine) {},
			expErr: model.ErrNotValid,
		},

		"An existing volume should propagate already exists": {
			req: Request{Name: "taken"},
			mock: func(t *testing.T, mEngine *enginemock.MockEngine) {
				mEngine.On("CreateVolume", mock.Anything, "taken", nil).Once().Return(model.ErrAlreadyExists)
			},
			expErr: model.ErrAlreadyExists,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mEngine := &enginemock.MockEngine{}
			test.mock(t, mEngine)

			svc, err := NewService(ServiceConfig{Engine: mEngine, Logger: log.Noop})
			require.NoError(err)

			err = svc.Run(context.TODO(), test.req)

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				assert.NoError(err)
			}

			mEngine.AssertExpectations(t)
		})
	}
}
