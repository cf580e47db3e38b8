package drivers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDriver(t *testing.T) {
	d := NewMemoryDriver()
	assert.Equal(t, "memory", d.Name())
	testBackendContract(t, d)
}

func TestMemoryDriver_Isolation(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	data := []byte("abc")
	md := map[string]string{"owner": "u-1"}
	require.NoError(t, d.Put(ctx, "k", data, md))
	data[0] = 'x'
	md["owner"] = "u-2"

	got, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, _ := d.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)

	meta, err := d.Metadata(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "u-1", meta["owner"])
	assert.Equal(t, 1, d.Len())
}

func TestMemoryDriver_Health(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()
	d.SetHealthy(false)
	assert.Error(t, d.HealthCheck(ctx))
	d.SetHealthy(true)
	assert.NoError(t, d.HealthCheck(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, d.Put(cancelled, "k", []byte("v"), nil))
}
