package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookAlerter POSTs alerts as JSON to an HTTP endpoint
type WebhookAlerter struct {
	url         string
	minSeverity Severity
	headers     map[string]string
	client      *http.Client
}

// WebhookOption configures a webhook alerter
type WebhookOption func(*WebhookAlerter)

// WithMinSeverity drops alerts below s
func WithMinSeverity(s Severity) WebhookOption {
	return func(w *WebhookAlerter) {
		w.minSeverity = s
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) WebhookOption {
	return func(w *WebhookAlerter) {
		w.headers[key] = value
	}
}

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookAlerter) {
		w.client = c
	}
}

// NewWebhookAlerter creates a webhook alerter
func NewWebhookAlerter(url string, opts ...WebhookOption) *WebhookAlerter {
	w := &WebhookAlerter{
		url:         url,
		minSeverity: SeverityInfo,
		headers:     make(map[string]string),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SendAlert posts the alert. Non-2xx responses are errors.
func (w *WebhookAlerter) SendAlert(ctx context.Context, alert Alert) error {
	if alert.Severity.Rank() < w.minSeverity.Rank() {
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("alerting: marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("alerting: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerting: deliver alert %s: %w", alert.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alerting: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
