// internal/alerting/alert.go
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity ranks an alert
type Severity string

// Severities
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities, higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// ParseSeverity validates a severity name
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev.Rank() < 0 {
		return "", fmt.Errorf("alerting: invalid severity: %s", s)
	}
	return sev, nil
}

// Alert represents a fired alert
type Alert struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Severity    Severity               `json:"severity"`
	Component   string                 `json:"component"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	FiredAt     time.Time              `json:"fired_at"`
}

// NewAlert builds an alert with a fresh ID and timestamp
func NewAlert(title, description string, severity Severity, component string, metadata map[string]interface{}) Alert {
	return Alert{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Severity:    severity,
		Component:   component,
		Metadata:    metadata,
		FiredAt:     time.Now().UTC(),
	}
}

// Alerter delivers alerts
type Alerter interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// Multi fans an alert out to every alerter, attempting all of them
type Multi []Alerter

// SendAlert delivers to each alerter and joins the failures
func (m Multi) SendAlert(ctx context.Context, alert Alert) error {
	var errs []error
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.SendAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards alerts
type Nop struct{}

// SendAlert does nothing
func (Nop) SendAlert(context.Context, Alert) error { return nil }
