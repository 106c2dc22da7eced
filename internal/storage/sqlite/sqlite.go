package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
	"github.com/runbox/runbox/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateExecution creates a new execution record.
func (r *Repository) CreateExecution(ctx context.Context, e model.ExecutionRecord) error {
	query := `
		INSERT INTO executions (id, image, status, exit_code, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.ID,
		e.Image,
		e.Status,
		e.ExitCode,
		e.Error,
		e.Duration.Milliseconds(),
		e.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: executions.") {
			return fmt.Errorf("execution already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert execution: %w", err)
	}

	r.logger.Debugf("Created execution in repository: %s", e.ID)
	return nil
}

// GetExecution retrieves an execution record by ID.
func (r *Repository) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	query := `
		SELECT id, image, status, exit_code, error, duration_ms, created_at
		FROM executions
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, query, id)
	execution, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query execution: %w", err)
	}

	return &execution, nil
}

// ListExecutions returns execution records, newest first. A zero limit returns
// everything.
func (r *Repository) ListExecutions(ctx context.Context, limit int) ([]model.ExecutionRecord, error) {
	query := `
		SELECT id, image, status, exit_code, error, duration_ms, created_at
		FROM executions
		ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query executions: %w", err)
	}
	defer rows.Close()

	var executions []model.ExecutionRecord
	for rows.Next() {
		execution, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return executions, nil
}

// UpdateExecution updates an existing execution record.
func (r *Repository) UpdateExecution(ctx context.Context, e model.ExecutionRecord) error {
	query := `
		UPDATE executions
		SET image = ?, status = ?, exit_code = ?, error = ?, duration_ms = ?, created_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		e.Image,
		e.Status,
		e.ExitCode,
		e.Error,
		e.Duration.Milliseconds(),
		e.CreatedAt.Unix(),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution %s: %w", e.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated execution in repository: %s", e.ID)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.ExecutionRecord, error) {
	var execution model.ExecutionRecord
	var durationMS int64
	var createdAt int64

	err := s.Scan(
		&execution.ID,
		&execution.Image,
		&execution.Status,
		&execution.ExitCode,
		&execution.Error,
		&durationMS,
		&createdAt,
	)
	if err != nil {
		return model.ExecutionRecord{}, err
	}

	execution.Duration = time.Duration(durationMS) * time.Millisecond
	execution.CreatedAt = time.Unix(createdAt, 0).UTC()

	return execution, nil
}
