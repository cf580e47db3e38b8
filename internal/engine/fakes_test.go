package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/FairForge/sal/internal/alerting"
	"github.com/FairForge/sal/internal/audit"
	"github.com/FairForge/sal/internal/metrics"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory Backend with injectable failures
type fakeBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	puts     int

	putErr    error
	getErr    error
	healthErr error
	panicOn   string // "put", "get" or "health"
	hang      bool   // HealthCheck blocks until ctx is done

	// failPuts fails the listed 1-based put calls
	failPuts map[int]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
		failPuts: make(map[int]bool),
	}
}

func (b *fakeBackend) Put(_ context.Context, key string, data []byte, md map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.panicOn == "put" {
		panic("put exploded")
	}
	if b.putErr != nil {
		return b.putErr
	}
	if b.failPuts[b.puts] {
		return fmt.Errorf("%w: put %d", errBackendDown, b.puts)
	}
	b.objects[key] = append([]byte(nil), data...)
	b.metadata[key] = md
	return nil
}

func (b *fakeBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.panicOn == "get" {
		panic("get exploded")
	}
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (b *fakeBackend) HealthCheck(ctx context.Context) error {
	if b.panicOn == "health" {
		panic("health exploded")
	}
	if b.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return b.healthErr
}

func (b *fakeBackend) raw(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key]
}

// testEnv is a manager wired to recording sinks and one fake backend
// per provider type
type testEnv struct {
	manager  *Manager
	audit    *audit.Logger
	alerts   *alerting.Recorder
	metrics  *metrics.Memory
	backends map[ProviderType]*fakeBackend
	byType   map[ProviderType]*Provider
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		audit:    audit.NewLogger(),
		alerts:   alerting.NewRecorder(0),
		metrics:  metrics.NewMemory(),
		backends: make(map[ProviderType]*fakeBackend),
		byType:   make(map[ProviderType]*Provider),
	}
	base := []Option{
		WithAuditLogger(env.audit),
		WithAlerter(env.alerts),
		WithMetrics(env.metrics),
	}
	env.manager = NewManager(append(base, opts...)...)

	for _, pt := range []ProviderType{ProviderS3, ProviderLOB, ProviderLocal} {
		b := newFakeBackend()
		p := NewProvider("", pt, b)
		if err := env.manager.Register(p); err != nil {
			t.Fatalf("register %s: %v", pt, err)
		}
		env.backends[pt] = b
		env.byType[pt] = p
	}
	return env
}

func (e *testEnv) accessAttempts() []audit.Event {
	return e.audit.Trail(audit.EventTypeAccessAttempt, 0)
}
