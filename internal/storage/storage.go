package storage

import (
	"context"

	"github.com/runbox/runbox/internal/model"
)

// Repository is the interface for execution history persistence.
type Repository interface {
	CreateExecution(ctx context.Context, e model.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error)
	ListExecutions(ctx context.Context, limit int) ([]model.ExecutionRecord, error)
	UpdateExecution(ctx context.Context, e model.ExecutionRecord) error
}
