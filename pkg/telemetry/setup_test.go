package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutCollectorIsNoop(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	assert.False(t, Enabled())

	shutdown, err := Setup(context.Background(), "webstream-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEnabledFollowsEnvironment(t *testing.T) {
	t.Setenv(EndpointEnv, "http://otel-collector:4317")
	assert.True(t, Enabled())
}
