package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceiq/resourceiq/internal/testutil"
)

func TestSetup_DefaultEndpoint(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{
		Environment: "test",
		ServiceName: "test-service",
	}, testutil.DiscardLogger())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
}

func TestSetup_CollectorUnreachable(t *testing.T) {
	ctx := context.Background()

	// Nothing listens here; spans queue in the batch processor and are
	// dropped, but setup and shutdown still succeed.
	shutdown, err := Setup(ctx, Config{
		Endpoint:    "localhost:1",
		Environment: "test",
		ServiceName: "unreachable-test",
	}, testutil.DiscardLogger())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NotPanics(t, func() { _ = shutdown(ctx) })
}

func TestSetup_EmptyConfig(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestDefaultEndpoint_Value(t *testing.T) {
	assert.Equal(t, "localhost:4318", DefaultEndpoint)
}
