package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Defaults(t *testing.T) {
	p := NewProvider("", ProviderRedis, newFakeBackend())
	assert.Equal(t, "redis", p.Name())
	assert.Equal(t, ProviderRedis, p.Type())
	assert.True(t, p.Enabled())

	disabled := NewProvider("cold", ProviderLocal, newFakeBackend(), WithDisabled(), WithPriority(7))
	assert.False(t, disabled.Enabled())
	assert.Equal(t, 7, disabled.Priority())
}

func TestProvider_StoreRetrieve(t *testing.T) {
	ctx := context.Background()
	p := NewProvider("s3", ProviderS3, newFakeBackend())

	assert.True(t, p.Store(ctx, "k", []byte("v"), nil))
	data, ok := p.Retrieve(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	_, ok = p.Retrieve(ctx, "missing")
	assert.False(t, ok)

	m := p.RawMetrics()
	assert.Equal(t, int64(3), m.TotalOperations)
	assert.Equal(t, int64(3), m.SuccessCount, "a miss is not a failure")
	assert.Zero(t, m.FailureCount)
}

func TestProvider_FailuresBecomeFalse(t *testing.T) {
	ctx := context.Background()

	t.Run("backend error", func(t *testing.T) {
		b := newFakeBackend()
		b.putErr = errBackendDown
		b.getErr = errBackendDown
		p := NewProvider("s3", ProviderS3, b)

		assert.False(t, p.Store(ctx, "k", []byte("v"), nil))
		_, ok := p.Retrieve(ctx, "k")
		assert.False(t, ok)

		err := p.Write(ctx, "k", []byte("v"), nil)
		assert.True(t, errors.Is(err, ErrProviderFailure))
		var opErr *OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "store", opErr.Op)
		assert.Equal(t, "s3", opErr.Provider)

		m := p.RawMetrics()
		assert.Equal(t, int64(3), m.FailureCount)
		assert.Contains(t, m.LastError, "backend down")
		assert.False(t, m.LastErrorAt.IsZero())
	})

	t.Run("panic is contained", func(t *testing.T) {
		b := newFakeBackend()
		b.panicOn = "put"
		p := NewProvider("lob", ProviderLOB, b)

		assert.NotPanics(t, func() {
			assert.False(t, p.Store(ctx, "k", []byte("v"), nil))
		})
		assert.Equal(t, int64(1), p.RawMetrics().FailureCount)

		b.panicOn = "get"
		assert.NotPanics(t, func() {
			_, ok := p.Retrieve(ctx, "k")
			assert.False(t, ok)
		})
	})

	t.Run("miss wraps ErrNotFound", func(t *testing.T) {
		p := NewProvider("local", ProviderLocal, newFakeBackend())
		_, err := p.Read(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrProviderFailure))
	})
}

func TestProvider_MetricsInvariant(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.failPuts[2] = true
	b.failPuts[5] = true
	p := NewProvider("s3", ProviderS3, b)

	for i := 0; i < 10; i++ {
		p.Store(ctx, "k", []byte("v"), nil)
		m := p.RawMetrics()
		assert.Equal(t, m.TotalOperations, m.SuccessCount+m.FailureCount)
	}

	snap := p.Metrics()
	assert.Equal(t, int64(10), snap.TotalOperations)
	assert.InDelta(t, 0.2, snap.ErrorRate, 1e-9)
	assert.InDelta(t, 0.8, snap.SuccessRate, 1e-9)
	assert.GreaterOrEqual(t, snap.AverageLatencyMs, 0.0)
}

func TestProvider_EmptyMetrics(t *testing.T) {
	snap := NewProvider("s3", ProviderS3, newFakeBackend()).Metrics()
	assert.Zero(t, snap.TotalOperations)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.SuccessRate)
}

func TestProvider_EnableDisable(t *testing.T) {
	p := NewProvider("s3", ProviderS3, newFakeBackend())
	p.Disable()
	p.Disable()
	assert.False(t, p.Enabled())
	p.Enable()
	assert.True(t, p.Enabled())
}
