// internal/alerting/recorder.go
package alerting

import (
	"context"
	"sync"
)

// Recorder keeps delivered alerts in memory and notifies callbacks
type Recorder struct {
	mu        sync.RWMutex
	alerts    []Alert
	callbacks []func(Alert)
	limit     int
}

// NewRecorder creates a recorder keeping at most limit alerts (0 = all)
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		alerts:    make([]Alert, 0),
		callbacks: make([]func(Alert), 0),
		limit:     limit,
	}
}

// SendAlert records the alert
func (r *Recorder) SendAlert(_ context.Context, alert Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	if r.limit > 0 && len(r.alerts) > r.limit {
		r.alerts = append([]Alert(nil), r.alerts[len(r.alerts)-r.limit:]...)
	}
	callbacks := r.callbacks
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(alert)
	}
	return nil
}

// OnAlert registers an alert callback
func (r *Recorder) OnAlert(callback func(Alert)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Alerts returns recorded alerts, optionally only those of one severity
func (r *Recorder) Alerts(severity Severity) []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Alert
	for _, a := range r.alerts {
		if severity == "" || a.Severity == severity {
			result = append(result, a)
		}
	}
	return result
}

// Reset drops recorded alerts
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = r.alerts[:0]
}
