// internal/engine/health.go
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// HealthCheckAll probes every registered provider in parallel. A probe
// that errors, panics or exceeds the health timeout marks only its own
// provider unhealthy. Results are keyed by provider name.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]bool {
	providers := m.Providers()
	results := make(map[string]bool, len(providers))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range providers {
		wg.Add(1)
		go func(p *Provider) {
			defer wg.Done()

			err := m.probe(ctx, p)
			healthy := err == nil
			if !healthy {
				m.logger.Warn("provider health check failed",
					zap.String("provider", p.Name()),
					zap.String("type", string(p.Type())),
					zap.Error(err))
			}
			if r, ok := m.metrics.(healthRecorder); ok {
				r.SetProviderHealth(p.Name(), healthy)
			}

			mu.Lock()
			results[p.Name()] = healthy
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	return results
}

// probe runs one health check under the health timeout. The check runs
// in its own goroutine so a backend that ignores its context cannot
// hold the sweep past the deadline.
func (m *Manager) probe(ctx context.Context, p *Provider) error {
	checkCtx, cancel := context.WithTimeout(ctx, m.healthTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("health check panicked: %v", r)
			}
		}()
		done <- p.HealthCheck(checkCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-checkCtx.Done():
		return fmt.Errorf("health check: %w", checkCtx.Err())
	}
}
