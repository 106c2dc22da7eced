package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbox/runbox/internal/model"
	"github.com/runbox/runbox/internal/storage/memory"
)

func newRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	return repo
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	e := model.ExecutionRecord{
		ID:        "id-1",
		Image:     "alpine:3.20",
		Status:    model.ExecutionStatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateExecution(ctx, e))

	err := repo.CreateExecution(ctx, e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	got, err := repo.GetExecution(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "alpine:3.20", got.Image)

	e.Status = model.ExecutionStatusSuccess
	require.NoError(t, repo.UpdateExecution(ctx, e))

	updated, err := repo.GetExecution(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusSuccess, updated.Status)

	err = repo.UpdateExecution(ctx, model.ExecutionRecord{ID: "id-x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	base := time.Now().UTC()
	for i, id := range []string{"id-1", "id-2", "id-3"} {
		require.NoError(t, repo.CreateExecution(ctx, model.ExecutionRecord{
			ID:        id,
			Image:     "alpine:3.20",
			Status:    model.ExecutionStatusSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.ListExecutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "id-3", all[0].ID)

	limited, err := repo.ListExecutions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "id-3", limited[0].ID)
}
