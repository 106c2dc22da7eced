package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/runbox/runbox/internal/engine/docker"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/storage"
	"github.com/runbox/runbox/internal/storage/memory"
	"github.com/runbox/runbox/internal/storage/sqlite"
)

// newDockerEngine creates the Docker engine from the environment
// (DOCKER_HOST and friends).
func newDockerEngine(logger log.Logger, runTimeout time.Duration) (*docker.Engine, error) {
	return docker.NewEngine(docker.EngineConfig{
		RunTimeout: runTimeout,
		Logger:     logger,
	})
}

// repoCloser pairs a repository with its optional close function.
type repoCloser struct {
	storage.Repository
	close func() error
}

func (r repoCloser) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// newRepository creates the execution history repository: SQLite when a db
// path is configured, in-memory otherwise.
func newRepository(ctx context.Context, dbPath string, logger log.Logger) (repoCloser, error) {
	if dbPath == "" {
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
		if err != nil {
			return repoCloser{}, fmt.Errorf("could not create memory repository: %w", err)
		}
		return repoCloser{Repository: repo}, nil
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: dbPath,
		Logger: logger,
	})
	if err != nil {
		return repoCloser{}, fmt.Errorf("could not create repository: %w", err)
	}
	return repoCloser{Repository: repo, close: repo.Close}, nil
}
