package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/sal/internal/alerting"
	"github.com/FairForge/sal/internal/audit"
	"go.uber.org/zap"
)

// DefaultErrorThreshold is the provider error rate at which an alert fires
const DefaultErrorThreshold = 0.005

// ComponentName identifies the manager in alerts
const ComponentName = "storage_abstraction_layer"

// PolicyAlgorithm is recorded on encryption events when no cipher is
// configured and only the intent is logged
const PolicyAlgorithm = "XChaCha20-Poly1305"

type healthRecorder interface {
	SetProviderHealth(provider string, healthy bool)
}

type alertRecorder interface {
	RecordAlert(severity string)
}

// Manager routes store and retrieve calls across providers by security
// level. It never fails over on its own: crossing the error threshold
// only alerts, and FailoverToBackup must be called by an operator or
// controller.
type Manager struct {
	mu        sync.RWMutex
	providers []*Provider
	byName    map[string]*Provider

	router     *Router
	audit      *audit.Logger
	metrics    MetricsSink
	alerter    alerting.Alerter
	cipher     Cipher
	compressor Compressor

	errorThreshold float64
	healthTimeout  time.Duration
	logger         *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithRouter replaces the default router
func WithRouter(r *Router) Option {
	return func(m *Manager) {
		m.router = r
	}
}

// WithAuditLogger sets the audit trail
func WithAuditLogger(a *audit.Logger) Option {
	return func(m *Manager) {
		m.audit = a
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(s MetricsSink) Option {
	return func(m *Manager) {
		m.metrics = s
	}
}

// WithAlerter sets the alert sink
func WithAlerter(a alerting.Alerter) Option {
	return func(m *Manager) {
		m.alerter = a
	}
}

// WithCipher enables payload encryption for policies that require it
func WithCipher(c Cipher) Option {
	return func(m *Manager) {
		m.cipher = c
	}
}

// WithCompressor enables payload compression for policies that allow it
func WithCompressor(c Compressor) Option {
	return func(m *Manager) {
		m.compressor = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithHealthTimeout bounds each provider health check
func WithHealthTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.healthTimeout = d
	}
}

// WithErrorThreshold sets the alerting error rate, in [0,1]
func WithErrorThreshold(t float64) Option {
	return func(m *Manager) {
		m.errorThreshold = t
	}
}

// NewManager creates a manager with default policies, an unbounded
// audit trail and no-op metrics and alerting
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byName:         make(map[string]*Provider),
		metrics:        nopMetrics{},
		alerter:        alerting.Nop{},
		errorThreshold: DefaultErrorThreshold,
		healthTimeout:  5 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.router == nil {
		m.router = NewRouter(m.logger, nil)
	}
	if m.audit == nil {
		m.audit = audit.NewLogger(audit.WithLogger(m.logger))
	}
	return m
}

// Register adds a provider. Registration order breaks ties between
// providers of the same type.
func (m *Manager) Register(p *Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[p.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name())
	}
	m.providers = append(m.providers, p)
	m.byName[p.Name()] = p

	m.logger.Info("provider registered",
		zap.String("provider", p.Name()),
		zap.String("type", string(p.Type())),
		zap.Int("priority", p.Priority()),
		zap.Bool("enabled", p.Enabled()))
	return nil
}

// Provider looks up a provider by name
func (m *Manager) Provider(name string) (*Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byName[name]
	return p, ok
}

// Providers returns the registry in registration order
func (m *Manager) Providers() []*Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Provider(nil), m.providers...)
}

func (m *Manager) Router() *Router      { return m.router }
func (m *Manager) Audit() *audit.Logger { return m.audit }

// Policy returns the active policy for level
func (m *Manager) Policy(level SecurityLevel) (RoutingPolicy, bool) {
	return m.router.Policy(level)
}

// CallOption adjusts a single store or retrieve
type CallOption func(*callOptions)

type callOptions struct {
	userID   string
	metadata map[string]string
}

// ForUser records the caller on audit events
func ForUser(userID string) CallOption {
	return func(o *callOptions) {
		o.userID = userID
	}
}

// WithObjectMetadata passes metadata through to the backend
func WithObjectMetadata(md map[string]string) CallOption {
	return func(o *callOptions) {
		o.metadata = md
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store writes data to the provider the level's policy selects.
// A nil error means the backend accepted the write.
func (m *Manager) Store(ctx context.Context, key string, data []byte, level SecurityLevel, opts ...CallOption) error {
	o := applyCallOptions(opts)

	p, err := m.selectProvider(level)
	if err != nil {
		return err
	}

	encrypt := m.router.ShouldEncrypt(level)
	var compressor Compressor
	if m.router.ShouldCompress(level) {
		compressor = m.compressor
	}
	var cipher Cipher
	if encrypt {
		cipher = m.cipher
	}

	payload, env, err := seal(data, compressor, cipher)
	if err != nil {
		m.logger.Error("payload transform failed",
			zap.String("key", key),
			zap.Stringer("level", level),
			zap.Error(err))
		return err
	}

	if encrypt {
		m.audit.LogEncryptionEvent(audit.EncryptionRecord{
			UserID:    o.userID,
			Key:       key,
			Level:     level.String(),
			Algorithm: m.encryptionAlgorithm(),
			Applied:   env.encrypted,
		})
	}

	metadata := make(map[string]string, len(o.metadata)+1)
	for k, v := range o.metadata {
		metadata[k] = v
	}
	metadata["security_level"] = level.String()

	start := time.Now()
	err = p.Write(ctx, key, payload, metadata)
	m.observe(p, "store", time.Since(start), err)

	m.audit.LogAccessAttempt(audit.AccessAttempt{
		UserID:    o.userID,
		Operation: "store",
		Key:       key,
		Provider:  string(p.Type()),
		Level:     level.String(),
		Success:   err == nil,
		Error:     errString(err),
	})

	if err == nil {
		m.metrics.SetSuccessRate(p.Name(), p.Metrics().SuccessRate)
	} else {
		m.logger.Warn("store failed",
			zap.String("key", key),
			zap.String("provider", p.Name()),
			zap.Stringer("level", level),
			zap.Error(err))
	}

	m.checkErrorThreshold(ctx, p)
	return err
}

// Retrieve reads data from the provider the level's policy selects.
// A miss returns an error wrapping ErrNotFound.
func (m *Manager) Retrieve(ctx context.Context, key string, level SecurityLevel, opts ...CallOption) ([]byte, error) {
	o := applyCallOptions(opts)

	p, err := m.selectProvider(level)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := p.Read(ctx, key)
	m.observe(p, "retrieve", time.Since(start), err)

	var data []byte
	var env envelope
	if err == nil {
		data, env, err = open(raw, m.compressor, m.cipher)
		if err != nil {
			m.metrics.RecordError(p.Name(), "transform")
			m.logger.Error("payload transform failed",
				zap.String("key", key),
				zap.String("provider", p.Name()),
				zap.Error(err))
		}
	}

	if err == nil && m.router.ShouldEncrypt(level) {
		m.audit.LogEncryptionEvent(audit.EncryptionRecord{
			UserID:    o.userID,
			Decrypt:   true,
			Key:       key,
			Level:     level.String(),
			Algorithm: m.encryptionAlgorithm(),
			Applied:   env.encrypted,
		})
	}

	m.audit.LogAccessAttempt(audit.AccessAttempt{
		UserID:    o.userID,
		Operation: "retrieve",
		Key:       key,
		Provider:  string(p.Type()),
		Level:     level.String(),
		Success:   err == nil,
		Error:     errString(err),
	})

	if err != nil {
		return nil, err
	}
	m.metrics.SetSuccessRate(p.Name(), p.Metrics().SuccessRate)
	return data, nil
}

// selectProvider runs routing and records a provider switch when the
// policy primary could not be used
func (m *Manager) selectProvider(level SecurityLevel) (*Provider, error) {
	p, err := m.router.SelectProvider(level, m.Providers())
	if err != nil {
		m.logger.Error("no_provider_available",
			zap.Stringer("level", level),
			zap.Error(err))
		m.metrics.RecordError("none", "no_provider_available")
		return nil, err
	}

	if policy, ok := m.router.Policy(level); ok && p.Type() != policy.Primary {
		m.audit.LogProviderSwitch(string(policy.Primary), string(p.Type()), "primary_unavailable")
	}
	return p, nil
}

func (m *Manager) observe(p *Provider, op string, elapsed time.Duration, err error) {
	m.metrics.RecordAPICall(p.Name(), op)
	m.metrics.ObserveLatency(p.Name(), op, elapsed.Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		m.metrics.RecordError(p.Name(), op+"_failed")
	}
}

func (m *Manager) encryptionAlgorithm() string {
	if m.cipher != nil {
		return m.cipher.Algorithm()
	}
	return PolicyAlgorithm
}

// checkErrorThreshold alerts when the provider's error rate is at or
// above the threshold. It never triggers failover.
func (m *Manager) checkErrorThreshold(ctx context.Context, p *Provider) {
	snap := p.Metrics()
	if snap.TotalOperations == 0 || snap.ErrorRate < m.errorThreshold {
		return
	}

	m.sendAlert(ctx, alerting.NewAlert(
		"High Storage Error Rate",
		fmt.Sprintf("Provider %s error rate %.2f%% exceeds threshold %.2f%%",
			p.Name(), snap.ErrorRate*100, m.errorThreshold*100),
		alerting.SeverityError,
		ComponentName,
		map[string]interface{}{
			"provider":         p.Name(),
			"provider_type":    string(p.Type()),
			"error_rate":       snap.ErrorRate,
			"threshold":        m.errorThreshold,
			"total_operations": snap.TotalOperations,
			"failure_count":    snap.FailureCount,
		},
	))
}

// FailoverToBackup disables original and selects its replacement under
// the level's policy. With no replacement it fires a critical alert and
// returns an error wrapping ErrFailoverExhausted.
func (m *Manager) FailoverToBackup(ctx context.Context, original *Provider, level SecurityLevel, reason string) (*Provider, error) {
	original.Disable()

	backup, err := m.router.SelectProvider(level, m.Providers())
	if err != nil {
		m.logger.Error("storage failover failed",
			zap.String("provider", original.Name()),
			zap.Stringer("level", level),
			zap.String("reason", reason),
			zap.Error(err))

		m.sendAlert(ctx, alerting.NewAlert(
			"Storage Failover Failed",
			fmt.Sprintf("No backup provider available for %s after disabling %s",
				level, original.Type()),
			alerting.SeverityCritical,
			ComponentName,
			map[string]interface{}{
				"original_provider": string(original.Type()),
				"provider_name":     original.Name(),
				"security_level":    level.String(),
				"reason":            reason,
			},
		))
		return nil, fmt.Errorf("%w: %v", ErrFailoverExhausted, err)
	}

	m.audit.LogFailover(string(original.Type()), string(backup.Type()), reason, true)
	m.metrics.RecordFailover(original.Name(), backup.Name())

	m.logger.Warn("storage failover",
		zap.String("from", original.Name()),
		zap.String("to", backup.Name()),
		zap.Stringer("level", level),
		zap.String("reason", reason))

	m.sendAlert(ctx, alerting.NewAlert(
		"Storage Failover",
		fmt.Sprintf("Switched %s storage from %s to %s: %s",
			level, original.Type(), backup.Type(), reason),
		alerting.SeverityWarning,
		ComponentName,
		map[string]interface{}{
			"from_provider":  string(original.Type()),
			"to_provider":    string(backup.Type()),
			"security_level": level.String(),
			"reason":         reason,
		},
	))
	return backup, nil
}

// FailoverByName is FailoverToBackup for a registered provider name
func (m *Manager) FailoverByName(ctx context.Context, name string, level SecurityLevel, reason string) (*Provider, error) {
	p, ok := m.Provider(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return m.FailoverToBackup(ctx, p, level, reason)
}

// EnableProvider returns a disabled provider to selection
func (m *Manager) EnableProvider(ctx context.Context, name string) error {
	p, ok := m.Provider(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if p.Enabled() {
		return nil
	}
	p.Enable()
	m.audit.LogProviderSwitch("disabled", string(p.Type()), "provider_recovered")
	m.sendAlert(ctx, alerting.NewAlert(
		"Storage Provider Recovered",
		fmt.Sprintf("Provider %s re-enabled", p.Name()),
		alerting.SeverityInfo,
		ComponentName,
		map[string]interface{}{"provider": p.Name(), "provider_type": string(p.Type())},
	))
	return nil
}

// UpdatePolicy replaces a level's policy and records the change
func (m *Manager) UpdatePolicy(ctx context.Context, policy RoutingPolicy, changedBy string) error {
	previous, existed, err := m.router.UpdatePolicy(policy)
	if err != nil {
		return err
	}

	var old interface{}
	if existed {
		old = previous
	}
	m.audit.LogPolicyChange(policy.SecurityLevel.String(), old, policy.Clone(), changedBy)
	return nil
}

func (m *Manager) sendAlert(ctx context.Context, alert alerting.Alert) {
	if r, ok := m.metrics.(alertRecorder); ok {
		r.RecordAlert(string(alert.Severity))
	}
	if err := m.alerter.SendAlert(ctx, alert); err != nil {
		m.logger.Error("failed to deliver alert",
			zap.String("title", alert.Title),
			zap.String("severity", string(alert.Severity)),
			zap.Error(err))
	}
}

// ProviderSummary is one row of the metrics summary
type ProviderSummary struct {
	Name     string          `json:"name"`
	Type     ProviderType    `json:"type"`
	Priority int             `json:"priority"`
	Enabled  bool            `json:"enabled"`
	Metrics  MetricsSnapshot `json:"metrics"`
}

// MetricsSummary reports every provider in registration order
func (m *Manager) MetricsSummary() []ProviderSummary {
	providers := m.Providers()
	out := make([]ProviderSummary, 0, len(providers))
	for _, p := range providers {
		out = append(out, ProviderSummary{
			Name:     p.Name(),
			Type:     p.Type(),
			Priority: p.Priority(),
			Enabled:  p.Enabled(),
			Metrics:  p.Metrics(),
		})
	}
	return out
}

// AuditSummary aggregates the audit trail
func (m *Manager) AuditSummary() audit.Summary {
	return m.audit.Summary()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
