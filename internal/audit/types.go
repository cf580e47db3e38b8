package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeStorageFailover   EventType = "STORAGE_FAILOVER"
	EventTypeProviderSwitch    EventType = "PROVIDER_SWITCH"
	EventTypeAccessAttempt     EventType = "ACCESS_ATTEMPT"
	EventTypePolicyChange      EventType = "POLICY_CHANGE"
	EventTypeEncryptionApplied EventType = "ENCRYPTION_APPLIED"
	EventTypeDecryptionApplied EventType = "DECRYPTION_APPLIED"
)

// EventTypes lists every audit event type
func EventTypes() []EventType {
	return []EventType{
		EventTypeStorageFailover,
		EventTypeProviderSwitch,
		EventTypeAccessAttempt,
		EventTypePolicyChange,
		EventTypeEncryptionApplied,
		EventTypeDecryptionApplied,
	}
}

// Event is an immutable audit record. Hash covers every other field,
// PrevHash links it to the event appended before it.
type Event struct {
	ID        string                 `json:"event_id"`
	Sequence  uint64                 `json:"sequence"`
	Type      EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	UserID    string                 `json:"user_id,omitempty"`
	Details   map[string]interface{} `json:"details"`
	Encrypted bool                   `json:"encrypted"`
	PrevHash  string                 `json:"prev_hash"`
	Hash      string                 `json:"hash"`
}

// clone copies the event so callers cannot reach the stored details
func (e Event) clone() Event {
	c := e
	if e.Details != nil {
		c.Details = copyValue(e.Details).(map[string]interface{})
	}
	return c
}

// normalizeDetails converts details to the plain JSON form they take
// after an export or archive round trip: nested maps, slices, strings,
// float64s, bools and nils. Hashing that form keeps the chain
// verifiable once events leave memory.
func normalizeDetails(details map[string]interface{}) (map[string]interface{}, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// copyValue deep-copies a normalized detail value
func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, item := range t {
			m[k] = copyValue(item)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, item := range t {
			s[i] = copyValue(item)
		}
		return s
	default:
		return v
	}
}

// computeHash returns the hex SHA-256 over the canonical JSON form of
// every field except Hash. encoding/json sorts map keys, so the digest
// is stable.
func (e Event) computeHash() (string, error) {
	canonical := struct {
		ID        string                 `json:"event_id"`
		Sequence  uint64                 `json:"sequence"`
		Type      EventType              `json:"event_type"`
		Timestamp string                 `json:"timestamp"`
		Component string                 `json:"component"`
		UserID    string                 `json:"user_id"`
		Details   map[string]interface{} `json:"details"`
		Encrypted bool                   `json:"encrypted"`
		PrevHash  string                 `json:"prev_hash"`
	}{
		ID:        e.ID,
		Sequence:  e.Sequence,
		Type:      e.Type,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Component: e.Component,
		UserID:    e.UserID,
		Details:   e.Details,
		Encrypted: e.Encrypted,
		PrevHash:  e.PrevHash,
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// AccessAttempt describes one store or retrieve against a provider
type AccessAttempt struct {
	UserID    string
	Operation string
	Key       string
	Provider  string
	Level     string
	Success   bool
	Error     string
}

// EncryptionRecord describes an encryption or decryption decision
type EncryptionRecord struct {
	UserID    string
	Decrypt   bool
	Key       string
	Level     string
	Algorithm string
	// Applied is true when the payload was actually transformed, false
	// when only the intent was recorded.
	Applied bool
}

// Summary aggregates the retained trail
type Summary struct {
	TotalEvents int               `json:"total_events"`
	ByType      map[EventType]int `json:"by_type"`
	Earliest    *time.Time        `json:"earliest,omitempty"`
	Latest      *time.Time        `json:"latest,omitempty"`
	Evicted     uint64            `json:"evicted"`
	ChainHead   string            `json:"chain_head"`
}
