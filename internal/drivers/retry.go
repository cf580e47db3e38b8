// internal/drivers/retry.go
package drivers

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"go.uber.org/zap"
)

// RetryPolicy describes exponential backoff between attempts.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy tries three times starting at 100ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// backoff returns the wait after the given zero-based attempt
func (p RetryPolicy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2.0
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// transient reports whether another attempt could change the outcome
func transient(err error) bool {
	return !errors.Is(err, engine.ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// RetryBackend retries transient Put and Get failures of the wrapped
// backend. Health checks pass straight through so a sweep sees the
// backend as it is.
type RetryBackend struct {
	backend engine.Backend
	policy  RetryPolicy
	logger  *zap.Logger
}

func NewRetryBackend(backend engine.Backend, policy RetryPolicy, logger *zap.Logger) *RetryBackend {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryBackend{backend: backend, policy: policy, logger: logger}
}

func (r *RetryBackend) do(ctx context.Context, op, key string, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil {
			if attempt > 0 {
				r.logger.Debug("backend recovered after retry",
					zap.String("op", op),
					zap.String("key", key),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if !transient(err) || attempt == r.policy.MaxAttempts-1 {
			break
		}

		wait := r.policy.backoff(attempt)
		r.logger.Debug("backend call failed, backing off",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err),
			zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if transient(err) && r.policy.MaxAttempts > 1 {
		r.logger.Warn("backend call failed after retries",
			zap.String("op", op),
			zap.String("key", key),
			zap.Int("attempts", r.policy.MaxAttempts),
			zap.Error(err))
	}
	return err
}

// Put overwrites the whole object, so repeating it is safe
func (r *RetryBackend) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	return r.do(ctx, "put", key, func() error {
		return r.backend.Put(ctx, key, data, metadata)
	})
}

func (r *RetryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := r.do(ctx, "get", key, func() error {
		var err error
		out, err = r.backend.Get(ctx, key)
		return err
	})
	return out, err
}

func (r *RetryBackend) HealthCheck(ctx context.Context) error {
	return r.backend.HealthCheck(ctx)
}

// Unwrap returns the wrapped backend
func (r *RetryBackend) Unwrap() engine.Backend {
	return r.backend
}
