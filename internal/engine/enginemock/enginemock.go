// Package enginemock has mocks for the engine boundary.
package enginemock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/runbox/runbox/internal/engine"
	"github.com/runbox/runbox/internal/model"
)

// MockEngine is a testify mock of engine.Engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Run(ctx context.Context, spec engine.RunSpec) (*engine.RunResult, error) {
	args := m.Called(ctx, spec)
	res, _ := args.Get(0).(*engine.RunResult)
	return res, args.Error(1)
}

func (m *MockEngine) CreateVolume(ctx context.Context, name string, content io.Reader) error {
	args := m.Called(ctx, name, content)
	return args.Error(0)
}

func (m *MockEngine) VolumeExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) Health(ctx context.Context) *model.Health {
	args := m.Called(ctx)
	return args.Get(0).(*model.Health)
}
