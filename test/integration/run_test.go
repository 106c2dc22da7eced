package integration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbox/runbox/internal/model"
)

const testImage = "busybox:stable"

func TestRunContainer(t *testing.T) {
	tests := map[string]struct {
		request     model.ExecutionRequest
		expStdout   []string
		expStderr   []string
		expExitCode int
	}{
		"Simple echo command should succeed": {
			request: model.ExecutionRequest{
				Image:      testImage,
				Command:    []string{"echo", "hello world"},
				PullPolicy: model.PullPolicyAlways,
			},
			expStdout:   []string{"hello world"},
			expExitCode: 0,
		},

		"Nonzero exit code should be a result, not a failure": {
			request: model.ExecutionRequest{
				Image:      testImage,
				Command:    []string{"sh", "-c", "exit 7"},
				PullPolicy: model.PullPolicyAlways,
			},
			expExitCode: 7,
		},

		"Environment variables should be visible in the container": {
			request: model.ExecutionRequest{
				Image:      testImage,
				Command:    []string{"sh", "-c", "echo $GREETING-$TARGET"},
				Env:        map[string]string{"GREETING": "hello", "TARGET": "world"},
				PullPolicy: model.PullPolicyAlways,
			},
			expStdout:   []string{"hello-world"},
			expExitCode: 0,
		},

		"Stdout and stderr should be captured separately": {
			request: model.ExecutionRequest{
				Image:      testImage,
				Command:    []string{"sh", "-c", "echo out; echo err >&2"},
				PullPolicy: model.PullPolicyAlways,
			},
			expStdout:   []string{"out"},
			expStderr:   []string{"err"},
			expExitCode: 0,
		},

		"Custom entrypoint should replace the image entrypoint": {
			request: model.ExecutionRequest{
				Image:      testImage,
				Entrypoint: []string{"echo"},
				Command:    []string{"from-entrypoint"},
				PullPolicy: model.PullPolicyAlways,
			},
			expStdout:   []string{"from-entrypoint"},
			expExitCode: 0,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			requireIntegration(t)
			assert := assert.New(t)
			require := require.New(t)

			svc := newTestRunService(t, newTestEngine(t))

			result, err := svc.Run(t.Context(), test.request)
			require.NoError(err)

			assert.Equal(test.expExitCode, result.ExitCode)
			for _, s := range test.expStdout {
				assert.Contains(result.Stdout, s)
			}
			for _, s := range test.expStderr {
				assert.Contains(result.Stderr, s)
			}
		})
	}
}

func TestRunContainerFileVolume(t *testing.T) {
	requireIntegration(t)
	assert := assert.New(t)
	require := require.New(t)

	inKey, err := model.ParseMountKey("/work/in.txt:ro")
	require.NoError(err)
	outKey, err := model.ParseMountKey("/work/out.txt")
	require.NoError(err)

	inSpec, err := model.NewFileSpec([]byte("hello volumes\n"), "", false)
	require.NoError(err)
	outSpec, err := model.NewFileSpec([]byte(""), "", true)
	require.NoError(err)

	svc := newTestRunService(t, newTestEngine(t))

	result, err := svc.Run(t.Context(), model.ExecutionRequest{
		Image:      testImage,
		Command:    []string{"sh", "-c", "tr a-z A-Z < /work/in.txt > /work/out.txt"},
		PullPolicy: model.PullPolicyAlways,
		Mounts: []model.Mount{
			{Key: inKey, Spec: inSpec},
			{Key: outKey, Spec: outSpec},
		},
	})
	require.NoError(err)

	assert.Equal(0, result.ExitCode)
	captured, ok := result.Volumes["/work/out.txt"]
	require.True(ok, "output file should be captured")
	assert.Equal("HELLO VOLUMES\n", string(captured.Content))
}

func TestRunContainerPullPolicyNever(t *testing.T) {
	requireIntegration(t)
	require := require.New(t)

	svc := newTestRunService(t, newTestEngine(t))

	// Use an image name that is extremely unlikely to exist locally.
	_, err := svc.Run(t.Context(), model.ExecutionRequest{
		Image:      "runbox-integration-missing:" + strings.ToLower(t.Name()),
		Command:    []string{"true"},
		PullPolicy: model.PullPolicyNever,
	})
	require.ErrorIs(err, model.ErrNotFound)
}

func TestEngineHealth(t *testing.T) {
	requireIntegration(t)
	assert := assert.New(t)

	eng := newTestEngine(t)

	health := eng.Health(t.Context())

	assert.True(health.Reachable)
	assert.NotEmpty(health.Version)
}
