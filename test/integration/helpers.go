package integration

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apprun "github.com/runbox/runbox/internal/app/run"
	"github.com/runbox/runbox/internal/engine/docker"
	"github.com/runbox/runbox/internal/storage/memory"
)

const envActivation = "RUNBOX_INTEGRATION"

// requireIntegration skips the test unless integration tests are activated.
// These tests need a reachable Docker daemon and pull small public images.
func requireIntegration(t *testing.T) {
	t.Helper()

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}
}

// newTestEngine creates a Docker engine against the real daemon.
func newTestEngine(t *testing.T) *docker.Engine {
	t.Helper()

	eng, err := docker.NewEngine(docker.EngineConfig{
		RunTimeout: 2 * time.Minute,
	})
	require.NoError(t, err)

	return eng
}

// newTestRunService creates a run service with an in-memory history and a
// temp workspace directory for test isolation.
func newTestRunService(t *testing.T, eng *docker.Engine) *apprun.Service {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	svc, err := apprun.NewService(apprun.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		WorkDir:    t.TempDir(),
		Timeout:    2 * time.Minute,
	})
	require.NoError(t, err)

	return svc
}
