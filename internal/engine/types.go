package engine

import (
	"fmt"
	"strings"
)

// SecurityLevel classifies data sensitivity. Levels are ordered from least
// to most sensitive.
type SecurityLevel int

const (
	LevelPublic SecurityLevel = iota
	LevelStandard
	LevelConfidential
	LevelSecret
)

var levelNames = map[SecurityLevel]string{
	LevelPublic:       "PUBLIC",
	LevelStandard:     "STANDARD",
	LevelConfidential: "CONFIDENTIAL",
	LevelSecret:       "SECRET",
}

// AllLevels returns every security level in ascending sensitivity
func AllLevels() []SecurityLevel {
	return []SecurityLevel{LevelPublic, LevelStandard, LevelConfidential, LevelSecret}
}

func (l SecurityLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Valid reports whether l is one of the known levels
func (l SecurityLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (l SecurityLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("unknown security level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *SecurityLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseSecurityLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseSecurityLevel parses a level name, case-insensitively
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for level, name := range levelNames {
		if name == want {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown security level %q", s)
}

// ProviderType identifies a backend kind
type ProviderType string

const (
	ProviderS3    ProviderType = "s3"
	ProviderLOB   ProviderType = "lob" // chat-platform-backed large-object storage
	ProviderLocal ProviderType = "local"
	ProviderRedis ProviderType = "redis"
	ProviderMongo ProviderType = "mongo"
)

// ProviderTypes returns the closed set of backend kinds
func ProviderTypes() []ProviderType {
	return []ProviderType{ProviderS3, ProviderLOB, ProviderLocal, ProviderRedis, ProviderMongo}
}

// ParseProviderType validates a backend kind name
func ParseProviderType(s string) (ProviderType, error) {
	want := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range ProviderTypes() {
		if t == want {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown provider type %q", s)
}

// RoutingPolicy decides where data of one security level goes
type RoutingPolicy struct {
	SecurityLevel      SecurityLevel  `json:"security_level"`
	Primary            ProviderType   `json:"primary"`
	FallbackChain      []ProviderType `json:"fallback_chain"`
	EncryptionRequired bool           `json:"encryption_required"`
	CompressionEnabled bool           `json:"compression_enabled"`
}

// Clone returns a deep copy so callers cannot mutate a stored policy
func (p RoutingPolicy) Clone() RoutingPolicy {
	c := p
	c.FallbackChain = append([]ProviderType(nil), p.FallbackChain...)
	return c
}

// Equal reports whether both policies route the same way. A nil and an
// empty fallback chain are equal.
func (p RoutingPolicy) Equal(o RoutingPolicy) bool {
	if p.SecurityLevel != o.SecurityLevel ||
		p.Primary != o.Primary ||
		p.EncryptionRequired != o.EncryptionRequired ||
		p.CompressionEnabled != o.CompressionEnabled ||
		len(p.FallbackChain) != len(o.FallbackChain) {
		return false
	}
	for i := range p.FallbackChain {
		if p.FallbackChain[i] != o.FallbackChain[i] {
			return false
		}
	}
	return true
}

// Validate checks that the policy names only known levels and providers
func (p RoutingPolicy) Validate() error {
	if !p.SecurityLevel.Valid() {
		return fmt.Errorf("%w: level %d", ErrInvalidPolicy, int(p.SecurityLevel))
	}
	if _, err := ParseProviderType(string(p.Primary)); err != nil {
		return fmt.Errorf("%w: primary: %v", ErrInvalidPolicy, err)
	}
	for _, t := range p.FallbackChain {
		if _, err := ParseProviderType(string(t)); err != nil {
			return fmt.Errorf("%w: fallback: %v", ErrInvalidPolicy, err)
		}
	}
	return nil
}

// DefaultPolicies returns the built-in routing table
func DefaultPolicies() map[SecurityLevel]RoutingPolicy {
	return map[SecurityLevel]RoutingPolicy{
		LevelPublic: {
			SecurityLevel:      LevelPublic,
			Primary:            ProviderLOB,
			FallbackChain:      []ProviderType{ProviderS3, ProviderLocal},
			EncryptionRequired: false,
			CompressionEnabled: true,
		},
		LevelStandard: {
			SecurityLevel:      LevelStandard,
			Primary:            ProviderS3,
			FallbackChain:      []ProviderType{ProviderLOB, ProviderLocal},
			EncryptionRequired: true,
			CompressionEnabled: true,
		},
		LevelConfidential: {
			SecurityLevel:      LevelConfidential,
			Primary:            ProviderS3,
			FallbackChain:      []ProviderType{ProviderLocal},
			EncryptionRequired: true,
			CompressionEnabled: true,
		},
		LevelSecret: {
			SecurityLevel:      LevelSecret,
			Primary:            ProviderLocal,
			FallbackChain:      nil,
			EncryptionRequired: true,
			CompressionEnabled: false,
		},
	}
}
