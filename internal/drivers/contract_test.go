package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/FairForge/sal/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackendContract runs the behavior every engine.Backend must share
func testBackendContract(t *testing.T, b engine.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "contract/a.bin", []byte("alpha"), map[string]string{"security_level": "STANDARD"}))
		data, err := b.Get(ctx, "contract/a.bin")
		require.NoError(t, err)
		assert.Equal(t, []byte("alpha"), data)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "contract/b.bin", []byte("one"), nil))
		require.NoError(t, b.Put(ctx, "contract/b.bin", []byte("two"), nil))
		data, err := b.Get(ctx, "contract/b.bin")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), data)
	})

	t.Run("empty payload", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "contract/empty", []byte{}, nil))
		data, err := b.Get(ctx, "contract/empty")
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("miss wraps ErrNotFound", func(t *testing.T) {
		_, err := b.Get(ctx, "contract/missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, engine.ErrNotFound), "got %v", err)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, b.HealthCheck(ctx))
	})
}
