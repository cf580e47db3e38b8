package drivers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LOBConfig configures a chat-platform-backed large-object gateway.
// Chat platforms throttle bots aggressively and cap attachment size, so
// both are enforced client-side.
type LOBConfig struct {
	Endpoint          string
	Token             string
	Channel           string
	RequestsPerSecond float64
	Burst             int
	MaxObjectSize     int64
	Timeout           time.Duration
}

// DefaultLOBMaxObjectSize matches the common bot-upload cap
const DefaultLOBMaxObjectSize = 20 << 20

const lobMetaHeaderPrefix = "X-Sal-Meta-"

// LOBDriver stores blobs as channel attachments behind an HTTP gateway
type LOBDriver struct {
	endpoint *url.URL
	token    string
	channel  string
	maxSize  int64
	limiter  *rate.Limiter
	client   *http.Client
	logger   *zap.Logger
}

// NewLOBDriver creates a LOB driver
func NewLOBDriver(cfg LOBConfig, logger *zap.Logger) (*LOBDriver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("lob driver: endpoint is required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("lob driver: channel is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("lob driver: parse endpoint: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxSize := cfg.MaxObjectSize
	if maxSize <= 0 {
		maxSize = DefaultLOBMaxObjectSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &LOBDriver{
		endpoint: u,
		token:    cfg.Token,
		channel:  cfg.Channel,
		maxSize:  maxSize,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

// Name returns the driver name
func (d *LOBDriver) Name() string {
	return "lob"
}

func (d *LOBDriver) blobURL(key string) string {
	return d.endpoint.String() + "/v1/channels/" + url.PathEscape(d.channel) + "/blobs/" + url.PathEscape(key)
}

func (d *LOBDriver) do(ctx context.Context, method, target string, body []byte, header http.Header) (*http.Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	return d.client.Do(req)
}

// Put uploads a blob
func (d *LOBDriver) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if int64(len(data)) > d.maxSize {
		return fmt.Errorf("lob put %s: object size %d exceeds limit %d", key, len(data), d.maxSize)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	for k, v := range metadata {
		header.Set(lobMetaHeaderPrefix+k, v)
	}

	resp, err := d.do(ctx, http.MethodPut, d.blobURL(key), data, header)
	if err != nil {
		return fmt.Errorf("lob put %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if err := statusError(resp); err != nil {
		return fmt.Errorf("lob put %s: %w", key, err)
	}
	return nil
}

// Get downloads a blob
func (d *LOBDriver) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := d.do(ctx, http.MethodGet, d.blobURL(key), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("lob get %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
	}
	if err := statusError(resp); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("lob get %s: %w", key, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("lob get %s: read body: %w", key, err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, fmt.Errorf("lob get %s: response exceeds limit %d", key, d.maxSize)
	}
	return data, nil
}

// HealthCheck calls the gateway health endpoint
func (d *LOBDriver) HealthCheck(ctx context.Context) error {
	resp, err := d.do(ctx, http.MethodGet, d.endpoint.String()+"/v1/health", nil, nil)
	if err != nil {
		return fmt.Errorf("lob health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return statusError(resp)
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limited by platform (retry after %q)", resp.Header.Get("Retry-After"))
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
