package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/FairForge/sal/internal/engine"
)

type memoryObject struct {
	data     []byte
	metadata map[string]string
}

// MemoryDriver keeps blobs in process memory
type MemoryDriver struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	healthy bool
}

// NewMemoryDriver creates an empty in-memory driver
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		objects: make(map[string]memoryObject),
		healthy: true,
	}
}

// Name returns the driver name
func (d *MemoryDriver) Name() string {
	return "memory"
}

// SetHealthy controls what HealthCheck reports
func (d *MemoryDriver) SetHealthy(ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.healthy = ok
}

// Put stores a copy of data
func (d *MemoryDriver) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	obj := memoryObject{
		data:     append([]byte(nil), data...),
		metadata: make(map[string]string, len(metadata)),
	}
	for k, v := range metadata {
		obj.metadata[k] = v
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = obj
	return nil
}

// Get returns a copy of the stored blob
func (d *MemoryDriver) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
	}
	return append([]byte(nil), obj.data...), nil
}

// Metadata returns the metadata stored with key
func (d *MemoryDriver) Metadata(_ context.Context, key string) (map[string]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
	}
	md := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		md[k] = v
	}
	return md, nil
}

// Len returns the number of stored objects
func (d *MemoryDriver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.objects)
}

// HealthCheck reports the configured health
func (d *MemoryDriver) HealthCheck(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.healthy {
		return fmt.Errorf("memory driver marked unhealthy")
	}
	return nil
}
