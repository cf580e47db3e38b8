package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ProviderMetrics accumulates per-provider operation counts.
// SuccessCount + FailureCount == TotalOperations at all times.
type ProviderMetrics struct {
	TotalOperations int64         `json:"total_operations"`
	SuccessCount    int64         `json:"success_count"`
	FailureCount    int64         `json:"failure_count"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error,omitempty"`
	LastErrorAt     time.Time     `json:"last_error_at,omitempty"`
}

// MetricsSnapshot is the derived view of ProviderMetrics
type MetricsSnapshot struct {
	SuccessRate      float64 `json:"success_rate"`
	ErrorRate        float64 `json:"error_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	TotalOperations  int64   `json:"total_operations"`
	SuccessCount     int64   `json:"success_count"`
	FailureCount     int64   `json:"failure_count"`
}

// Provider is a handle to one backend. Only the enabled flag and the
// metrics change after construction.
type Provider struct {
	name     string
	ptype    ProviderType
	priority int
	backend  Backend
	logger   *zap.Logger

	enabled atomic.Bool

	mu      sync.Mutex
	metrics ProviderMetrics
}

// ProviderOption configures a provider
type ProviderOption func(*Provider)

// WithPriority sets the display priority. Selection order comes from
// the routing policy, never from this value.
func WithPriority(p int) ProviderOption {
	return func(pr *Provider) {
		pr.priority = p
	}
}

// WithDisabled registers the provider in the disabled state
func WithDisabled() ProviderOption {
	return func(pr *Provider) {
		pr.enabled.Store(false)
	}
}

// WithProviderLogger sets the provider logger
func WithProviderLogger(logger *zap.Logger) ProviderOption {
	return func(pr *Provider) {
		pr.logger = logger
	}
}

// NewProvider wraps a backend. An empty name defaults to the type.
func NewProvider(name string, ptype ProviderType, backend Backend, opts ...ProviderOption) *Provider {
	if name == "" {
		name = string(ptype)
	}
	p := &Provider{
		name:    name,
		ptype:   ptype,
		backend: backend,
		logger:  zap.NewNop(),
	}
	p.enabled.Store(true)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string       { return p.name }
func (p *Provider) Type() ProviderType { return p.ptype }
func (p *Provider) Priority() int      { return p.priority }
func (p *Provider) Enabled() bool      { return p.enabled.Load() }

// Enable marks the provider selectable
func (p *Provider) Enable() {
	if !p.enabled.Swap(true) {
		p.logger.Info("provider enabled", zap.String("provider", p.name))
	}
}

// Disable removes the provider from selection
func (p *Provider) Disable() {
	if p.enabled.Swap(false) {
		p.logger.Warn("provider disabled", zap.String("provider", p.name))
	}
}

// Store writes data and reports success. Backend errors and panics are
// converted to false.
func (p *Provider) Store(ctx context.Context, key string, data []byte, metadata map[string]string) bool {
	return p.Write(ctx, key, data, metadata) == nil
}

// Retrieve returns the stored data, or false on a miss or failure
func (p *Provider) Retrieve(ctx context.Context, key string) ([]byte, bool) {
	data, err := p.Read(ctx, key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Write is Store with the failure reason preserved
func (p *Provider) Write(ctx context.Context, key string, data []byte, metadata map[string]string) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProviderFailure, r)
		}
		if err != nil {
			err = &OperationError{Op: "store", Provider: p.name, Key: key, Err: err}
		}
		p.record(time.Since(start), err)
	}()

	if err := p.backend.Put(ctx, key, data, metadata); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return nil
}

// Read is Retrieve with the failure reason preserved. A miss wraps
// ErrNotFound and counts as a completed operation.
func (p *Provider) Read(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: panic: %v", ErrProviderFailure, r)
		}
		failed := err
		if errors.Is(err, ErrNotFound) {
			failed = nil
		}
		if err != nil {
			err = &OperationError{Op: "retrieve", Provider: p.name, Key: key, Err: err}
		}
		p.record(time.Since(start), failed)
	}()

	data, err = p.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return data, nil
}

// HealthCheck probes the backend. Panics are not recovered here; the
// manager isolates each probe.
func (p *Provider) HealthCheck(ctx context.Context) error {
	return p.backend.HealthCheck(ctx)
}

// RawMetrics returns a copy of the accumulated counters
func (p *Provider) RawMetrics() ProviderMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Metrics returns the derived rates
func (p *Provider) Metrics() MetricsSnapshot {
	m := p.RawMetrics()
	snap := MetricsSnapshot{
		TotalOperations:  m.TotalOperations,
		SuccessCount:     m.SuccessCount,
		FailureCount:     m.FailureCount,
		AverageLatencyMs: float64(m.AverageLatency) / float64(time.Millisecond),
	}
	if m.TotalOperations > 0 {
		snap.SuccessRate = float64(m.SuccessCount) / float64(m.TotalOperations)
		snap.ErrorRate = float64(m.FailureCount) / float64(m.TotalOperations)
	}
	return snap
}

func (p *Provider) record(latency time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.TotalOperations++
	if err != nil {
		p.metrics.FailureCount++
		p.metrics.LastError = err.Error()
		p.metrics.LastErrorAt = time.Now()
	} else {
		p.metrics.SuccessCount++
	}

	// cumulative mean
	n := time.Duration(p.metrics.TotalOperations)
	p.metrics.AverageLatency += (latency - p.metrics.AverageLatency) / n
}
