package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runbox/runbox/internal/engine/enginemock"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/model"
)

func TestServiceStatus(t *testing.T) {
	tests := map[string]struct {
		health *model.Health
	}{
		"A reachable engine should be reported with its version": {
			health: &model.Health{Reachable: true, Version: "27.3.1", APIVersion: "1.47"},
		},

		"An unreachable engine should be a result, not an error": {
			health: &model.Health{Reachable: false, Error: "connection refused"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mEngine := &enginemock.MockEngine{}
			mEngine.On("Health", mock.Anything).Once().Return(test.health)

			svc, err := NewService(ServiceConfig{Engine: mEngine, Logger: log.Noop})
			require.NoError(err)

			got := svc.Status(context.TODO())
			assert.Equal(test.health, got)

			mEngine.AssertExpectations(t)
		})
	}
}
