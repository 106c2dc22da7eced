package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	executions map[string]model.ExecutionRecord
	mu         sync.RWMutex
	logger     log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		executions: make(map[string]model.ExecutionRecord),
		logger:     cfg.Logger,
	}, nil
}

// CreateExecution creates a new execution record.
func (r *Repository) CreateExecution(ctx context.Context, e model.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[e.ID]; ok {
		return fmt.Errorf("execution with id %s: %w", e.ID, model.ErrAlreadyExists)
	}

	r.executions[e.ID] = e
	r.logger.Debugf("Created execution in repository: %s", e.ID)

	return nil
}

// GetExecution retrieves an execution record by ID.
func (r *Repository) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, model.ErrNotFound)
	}

	// Return a copy
	executionCopy := execution
	return &executionCopy, nil
}

// ListExecutions returns execution records, newest first. A zero limit returns
// everything.
func (r *Repository) ListExecutions(ctx context.Context, limit int) ([]model.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]model.ExecutionRecord, 0, len(r.executions))
	for _, execution := range r.executions {
		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		if !executions[i].CreatedAt.Equal(executions[j].CreatedAt) {
			return executions[i].CreatedAt.After(executions[j].CreatedAt)
		}
		return executions[i].ID > executions[j].ID
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

// UpdateExecution updates an existing execution record.
func (r *Repository) UpdateExecution(ctx context.Context, e model.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[e.ID]; !ok {
		return fmt.Errorf("execution %s: %w", e.ID, model.ErrNotFound)
	}

	r.executions[e.ID] = e
	r.logger.Debugf("Updated execution in repository: %s", e.ID)

	return nil
}
