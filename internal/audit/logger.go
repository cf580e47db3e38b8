package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultComponent is recorded on events when no component is configured
const DefaultComponent = "storage_abstraction_layer"

// ErrChainBroken is returned by Verify when the hash chain does not hold
var ErrChainBroken = errors.New("audit: hash chain broken")

// Archiver receives events evicted from the in-memory trail
type Archiver interface {
	Archive(ctx context.Context, events []Event) error
}

// Logger is an append-only audit trail. Events are never mutated;
// they leave memory only through eviction to an Archiver or
// ExportAndClear.
type Logger struct {
	mu        sync.Mutex
	events    []Event
	seq       uint64
	lastHash  string
	evicted   uint64
	maxEvents int
	archiver  Archiver
	component string
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Logger
type Option func(*Logger)

// WithMaxEvents bounds the in-memory trail. Zero means unbounded.
func WithMaxEvents(n int) Option {
	return func(l *Logger) {
		l.maxEvents = n
	}
}

// WithArchiver sets where evicted events go
func WithArchiver(a Archiver) Option {
	return func(l *Logger) {
		l.archiver = a
	}
}

// WithComponent sets the component recorded on each event
func WithComponent(component string) Option {
	return func(l *Logger) {
		l.component = component
	}
}

// WithLogger sets the zap logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// NewLogger creates an empty audit trail
func NewLogger(opts ...Option) *Logger {
	l := &Logger{
		events:    make([]Event, 0, 1024),
		component: DefaultComponent,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogFailover records a storage failover
func (l *Logger) LogFailover(from, to, reason string, success bool) Event {
	return l.append(EventTypeStorageFailover, "", false, map[string]interface{}{
		"from_provider": from,
		"to_provider":   to,
		"reason":        reason,
		"success":       success,
	})
}

// LogProviderSwitch records selection moving from one provider to another
func (l *Logger) LogProviderSwitch(from, to, reason string) Event {
	return l.append(EventTypeProviderSwitch, "", false, map[string]interface{}{
		"from_provider": from,
		"to_provider":   to,
		"reason":        reason,
	})
}

// LogAccessAttempt records a store or retrieve against a provider
func (l *Logger) LogAccessAttempt(a AccessAttempt) Event {
	details := map[string]interface{}{
		"operation": a.Operation,
		"key":       a.Key,
		"provider":  a.Provider,
		"level":     a.Level,
		"success":   a.Success,
	}
	if a.Error != "" {
		details["error"] = a.Error
	}
	return l.append(EventTypeAccessAttempt, a.UserID, false, details)
}

// LogPolicyChange records a routing policy replacement. Policies must
// be JSON-serializable and are stored in their JSON form.
func (l *Logger) LogPolicyChange(level string, oldPolicy, newPolicy interface{}, changedBy string) Event {
	return l.append(EventTypePolicyChange, changedBy, false, map[string]interface{}{
		"level":      level,
		"old_policy": oldPolicy,
		"new_policy": newPolicy,
		"changed_by": changedBy,
	})
}

// LogEncryptionEvent records an encryption or decryption decision
func (l *Logger) LogEncryptionEvent(r EncryptionRecord) Event {
	eventType := EventTypeEncryptionApplied
	if r.Decrypt {
		eventType = EventTypeDecryptionApplied
	}
	return l.append(eventType, r.UserID, r.Applied, map[string]interface{}{
		"key":       r.Key,
		"level":     r.Level,
		"algorithm": r.Algorithm,
		"applied":   r.Applied,
	})
}

func (l *Logger) append(eventType EventType, userID string, encrypted bool, details map[string]interface{}) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	normalized, normErr := normalizeDetails(details)
	if normErr != nil {
		// details that cannot be serialized are replaced, the event is still recorded
		l.logger.Error("audit details not serializable",
			zap.String("event_type", string(eventType)),
			zap.Error(normErr))
		normalized = map[string]interface{}{"serialization_error": normErr.Error()}
	}

	l.seq++
	event := Event{
		ID:        uuid.New().String(),
		Sequence:  l.seq,
		Type:      eventType,
		Timestamp: l.now().UTC(),
		Component: l.component,
		UserID:    userID,
		Details:   normalized,
		Encrypted: encrypted,
		PrevHash:  l.lastHash,
	}

	hash, err := event.computeHash()
	if err != nil {
		l.logger.Error("audit event hash failed",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
	event.Hash = hash
	l.lastHash = hash
	l.events = append(l.events, event)

	if l.maxEvents > 0 && len(l.events) > l.maxEvents {
		l.evictLocked()
	}

	return event.clone()
}

// evictLocked drops the oldest tenth of the trail (at least the overflow)
func (l *Logger) evictLocked() {
	n := len(l.events) - l.maxEvents + l.maxEvents/10
	if n > len(l.events) {
		n = len(l.events)
	}
	batch := make([]Event, n)
	copy(batch, l.events[:n])

	if l.archiver != nil {
		if err := l.archiver.Archive(context.Background(), batch); err != nil {
			l.logger.Error("failed to archive evicted audit events",
				zap.Int("count", n),
				zap.Uint64("first_sequence", batch[0].Sequence),
				zap.Error(err))
		}
	} else {
		l.logger.Warn("audit trail at capacity, dropping oldest events",
			zap.Int("count", n),
			zap.Int("max_events", l.maxEvents))
	}

	remaining := make([]Event, len(l.events)-n, cap(l.events))
	copy(remaining, l.events[n:])
	l.events = remaining
	l.evicted += uint64(n)
}

// Trail returns at most limit of the most recent events, optionally
// filtered to one type, oldest first. An empty filter matches every
// type; limit <= 0 returns the whole match.
func (l *Logger) Trail(filter EventType, limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []int
	for i := len(l.events) - 1; i >= 0; i-- {
		if filter != "" && l.events[i].Type != filter {
			continue
		}
		matched = append(matched, i)
		if limit > 0 && len(matched) == limit {
			break
		}
	}

	out := make([]Event, len(matched))
	for j, idx := range matched {
		out[len(matched)-1-j] = l.events[idx].clone()
	}
	return out
}

// Event looks up a retained event by ID
func (l *Logger) Event(id string) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].ID == id {
			return l.events[i].clone(), true
		}
	}
	return Event{}, false
}

// Len returns the number of retained events
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Summary counts retained events per type
func (l *Logger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{
		TotalEvents: len(l.events),
		ByType:      make(map[EventType]int),
		Evicted:     l.evicted,
		ChainHead:   l.lastHash,
	}
	for _, e := range l.events {
		s.ByType[e.Type]++
	}
	if len(l.events) > 0 {
		earliest := l.events[0].Timestamp
		latest := l.events[len(l.events)-1].Timestamp
		s.Earliest = &earliest
		s.Latest = &latest
	}
	return s
}

// Verify recomputes every retained hash and checks the links between
// consecutive events
func (l *Logger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyChain(l.events)
}

func verifyChain(events []Event) error {
	for i, e := range events {
		hash, err := e.computeHash()
		if err != nil {
			return fmt.Errorf("%w: event %d: %v", ErrChainBroken, e.Sequence, err)
		}
		if hash != e.Hash {
			return fmt.Errorf("%w: event %d hash mismatch", ErrChainBroken, e.Sequence)
		}
		if i > 0 && e.PrevHash != events[i-1].Hash {
			return fmt.Errorf("%w: event %d does not link to %d", ErrChainBroken, e.Sequence, events[i-1].Sequence)
		}
	}
	return nil
}

// ExportTo writes the full retained trail as a JSON array
func (l *Logger) ExportTo(w io.Writer) error {
	l.mu.Lock()
	events := make([]Event, len(l.events))
	copy(events, l.events)
	l.mu.Unlock()

	return writeJSON(w, events)
}

// Export writes the full retained trail to path, replacing it atomically
func (l *Logger) Export(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exportLocked(path)
}

// ExportAndClear exports the trail then drops it from memory. The hash
// chain continues from the last exported event.
func (l *Logger) ExportAndClear(path string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.exportLocked(path); err != nil {
		return 0, err
	}
	n := len(l.events)
	l.events = make([]Event, 0, 1024)
	l.logger.Info("audit trail exported and cleared",
		zap.String("path", path),
		zap.Int("events", n))
	return n, nil
}

func (l *Logger) exportLocked(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".audit-export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeJSON(tmp, l.events); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write audit export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close audit export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename audit export: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

// ReadExport loads a trail written by Export
func ReadExport(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var events []Event
	if err := json.NewDecoder(f).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode audit export: %w", err)
	}
	return events, nil
}
