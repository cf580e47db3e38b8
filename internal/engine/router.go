// internal/engine/router.go
package engine

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Router maps security levels to routing policies and picks providers
type Router struct {
	mu       sync.RWMutex
	policies map[SecurityLevel]RoutingPolicy
	logger   *zap.Logger
}

// NewRouter creates a router. A nil policy table installs DefaultPolicies.
func NewRouter(logger *zap.Logger, policies map[SecurityLevel]RoutingPolicy) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	table := make(map[SecurityLevel]RoutingPolicy, len(policies))
	for level, p := range policies {
		p = p.Clone()
		p.SecurityLevel = level
		table[level] = p
	}
	return &Router{
		policies: table,
		logger:   logger,
	}
}

// Policy returns a copy of the policy for level
func (r *Router) Policy(level SecurityLevel) (RoutingPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[level]
	if !ok {
		return RoutingPolicy{}, false
	}
	return p.Clone(), true
}

// Policies returns every policy ordered by level
func (r *Router) Policies() []RoutingPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoutingPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SecurityLevel < out[j].SecurityLevel
	})
	return out
}

// SelectProvider returns the first enabled provider matching the policy
// primary, then each fallback type in order. Among several providers of
// one type the earliest in available wins.
func (r *Router) SelectProvider(level SecurityLevel, available []*Provider) (*Provider, error) {
	policy, ok := r.Policy(level)
	if !ok {
		r.logger.Error("no routing policy for level",
			zap.Stringer("level", level))
		return nil, &SelectionError{Level: level, Err: ErrPolicyMissing}
	}

	if p := firstEnabled(policy.Primary, available); p != nil {
		return p, nil
	}

	for _, fallback := range policy.FallbackChain {
		if p := firstEnabled(fallback, available); p != nil {
			r.logger.Debug("primary unavailable, using fallback",
				zap.Stringer("level", level),
				zap.String("primary", string(policy.Primary)),
				zap.String("fallback", string(fallback)))
			return p, nil
		}
	}

	r.logger.Error("no available provider",
		zap.Stringer("level", level),
		zap.String("primary", string(policy.Primary)))
	return nil, &SelectionError{Level: level, Err: ErrNoProvider}
}

func firstEnabled(t ProviderType, available []*Provider) *Provider {
	for _, p := range available {
		if p != nil && p.Type() == t && p.Enabled() {
			return p
		}
	}
	return nil
}

// ShouldEncrypt reports the policy flag. Unknown levels fail closed.
func (r *Router) ShouldEncrypt(level SecurityLevel) bool {
	policy, ok := r.Policy(level)
	if !ok {
		return true
	}
	return policy.EncryptionRequired
}

// ShouldCompress reports the policy flag. Unknown levels default to true.
func (r *Router) ShouldCompress(level SecurityLevel) bool {
	policy, ok := r.Policy(level)
	if !ok {
		return true
	}
	return policy.CompressionEnabled
}

// UpdatePolicy replaces the whole policy for policy.SecurityLevel and
// returns the one it replaced, if any.
func (r *Router) UpdatePolicy(policy RoutingPolicy) (RoutingPolicy, bool, error) {
	if err := policy.Validate(); err != nil {
		return RoutingPolicy{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous, existed := r.policies[policy.SecurityLevel]
	r.policies[policy.SecurityLevel] = policy.Clone()

	r.logger.Info("routing policy updated",
		zap.Stringer("level", policy.SecurityLevel),
		zap.String("primary", string(policy.Primary)),
		zap.Int("fallbacks", len(policy.FallbackChain)))

	return previous, existed, nil
}
