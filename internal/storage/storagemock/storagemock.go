// Package storagemock has mocks for the storage boundary.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/runbox/runbox/internal/model"
)

// MockRepository is a testify mock of storage.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateExecution(ctx context.Context, e model.ExecutionRecord) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepository) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*model.ExecutionRecord)
	return rec, args.Error(1)
}

func (m *MockRepository) ListExecutions(ctx context.Context, limit int) ([]model.ExecutionRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]model.ExecutionRecord)
	return recs, args.Error(1)
}

func (m *MockRepository) UpdateExecution(ctx context.Context, e model.ExecutionRecord) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
