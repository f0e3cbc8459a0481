package adaptertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Factory creates an adapter wired to a fresh backing platform (usually an
// httptest server) together with a target addressing it.
type Factory func(t *testing.T) (domain.TargetAdapter, domain.Target)

// Run exercises the [domain.TargetAdapter] contract: Apply converges the
// target and is idempotent, and CurrentState reads back what was applied.
func Run(t *testing.T, factory Factory) {
	t.Run("ApplyThenReadBack", func(t *testing.T) {
		adapter, target := factory(t)
		ctx := context.Background()

		applied, err := adapter.Apply(ctx, target, "demo:v2", 2)
		require.NoError(t, err)
		require.Equal(t, "demo:v2", applied.ArtifactRef)
		require.Equal(t, 2, applied.Replicas)

		state, err := adapter.CurrentState(ctx, target)
		require.NoError(t, err)
		require.Equal(t, "demo:v2", state.ArtifactRef)
		require.Equal(t, 2, state.Replicas)
	})

	t.Run("ApplyIsIdempotent", func(t *testing.T) {
		adapter, target := factory(t)
		ctx := context.Background()

		_, err := adapter.Apply(ctx, target, "demo:v2", 2)
		require.NoError(t, err)
		applied, err := adapter.Apply(ctx, target, "demo:v2", 2)
		require.NoError(t, err)
		require.Equal(t, "demo:v2", applied.ArtifactRef)
	})

	t.Run("ScaleKeepsArtifact", func(t *testing.T) {
		adapter, target := factory(t)
		ctx := context.Background()

		_, err := adapter.Apply(ctx, target, "demo:v2", 2)
		require.NoError(t, err)
		_, err = adapter.Apply(ctx, target, "demo:v2", 5)
		require.NoError(t, err)

		state, err := adapter.CurrentState(ctx, target)
		require.NoError(t, err)
		require.Equal(t, "demo:v2", state.ArtifactRef)
		require.Equal(t, 5, state.Replicas)
	})
}
