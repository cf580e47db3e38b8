package engine

import (
	"context"
)

// Backend is the I/O contract every storage adapter implements.
// Get must return an error wrapping ErrNotFound on a miss so the
// provider layer can tell a miss from a backend failure.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// MetricsSink receives operational metrics from the manager
type MetricsSink interface {
	ObserveLatency(provider, op string, seconds float64)
	RecordError(provider, kind string)
	RecordAPICall(provider, op string)
	SetSuccessRate(provider string, rate float64)
	RecordFailover(from, to string)
}

// Cipher is the encryption engine the manager delegates payload
// encryption to when a policy requires it
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	Algorithm() string
}

// Compressor compresses payloads for policies with compression enabled
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() string
}

type nopMetrics struct{}

func (nopMetrics) ObserveLatency(string, string, float64) {}
func (nopMetrics) RecordError(string, string)             {}
func (nopMetrics) RecordAPICall(string, string)           {}
func (nopMetrics) SetSuccessRate(string, float64)         {}
func (nopMetrics) RecordFailover(string, string)          {}
