// internal/metrics/memory.go
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Labels represents metric labels
type Labels map[string]string

// Key returns a sorted key for the labels
func (l Labels) Key() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, l[k]))
	}
	return strings.Join(parts, ",")
}

// Memory is an in-process sink that keeps counters and gauges in maps.
// It backs tests and deployments without a scrape endpoint.
type Memory struct {
	mu        sync.RWMutex
	counters  map[string]float64
	gauges    map[string]float64
	latencies map[string][]float64
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{
		counters:  make(map[string]float64),
		gauges:    make(map[string]float64),
		latencies: make(map[string][]float64),
	}
}

func series(name string, labels Labels) string {
	return name + "{" + labels.Key() + "}"
}

// ObserveLatency records one operation duration
func (m *Memory) ObserveLatency(provider, op string, seconds float64) {
	key := series("latency", Labels{"provider": provider, "operation": op})
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[key] = append(m.latencies[key], seconds)
}

// RecordError increments the error counter
func (m *Memory) RecordError(provider, kind string) {
	m.add(series("errors", Labels{"provider": provider, "kind": kind}), 1)
}

// RecordAPICall increments the call counter
func (m *Memory) RecordAPICall(provider, op string) {
	m.add(series("api_calls", Labels{"provider": provider, "operation": op}), 1)
}

// SetSuccessRate sets the provider success rate
func (m *Memory) SetSuccessRate(provider string, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[series("success_rate", Labels{"provider": provider})] = rate
}

// RecordFailover increments the failover counter
func (m *Memory) RecordFailover(from, to string) {
	m.add(series("failovers", Labels{"from": from, "to": to}), 1)
}

func (m *Memory) add(key string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] += v
}

// Counter returns a counter value
func (m *Memory) Counter(name string, labels Labels) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[series(name, labels)]
}

// Gauge returns a gauge value and whether it was ever set
func (m *Memory) Gauge(name string, labels Labels) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.gauges[series(name, labels)]
	return v, ok
}

// Observations returns the number of latency samples recorded
func (m *Memory) Observations(provider, op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.latencies[series("latency", Labels{"provider": provider, "operation": op})])
}
