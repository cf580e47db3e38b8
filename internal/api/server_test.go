// internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FairForge/sal/internal/alerting"
	"github.com/FairForge/sal/internal/audit"
	"github.com/FairForge/sal/internal/drivers"
	"github.com/FairForge/sal/internal/engine"
	"github.com/FairForge/sal/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server   *Server
	manager  *engine.Manager
	alerts   *alerting.Recorder
	backends map[string]*drivers.MemoryDriver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	alerts := alerting.NewRecorder(0)
	prom := metrics.NewPrometheus("api_test")
	m := engine.NewManager(
		engine.WithAlerter(alerts),
		engine.WithMetrics(prom),
	)

	backends := make(map[string]*drivers.MemoryDriver)
	for _, pt := range []engine.ProviderType{engine.ProviderS3, engine.ProviderLOB, engine.ProviderLocal} {
		b := drivers.NewMemoryDriver()
		backends[string(pt)] = b
		require.NoError(t, m.Register(engine.NewProvider("", pt, b)))
	}

	s := NewServer(":0", m,
		WithMetricsHandler(prom.Handler()),
		WithAlertRecorder(alerts))
	return &testServer{server: s, manager: m, alerts: alerts, backends: backends}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestServer_Liveness(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestServer_Readiness(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready before the first sweep")

	ts.backends["s3"].SetHealthy(false)
	w = ts.do(t, http.MethodPost, "/api/v1/health/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)
	assert.Equal(t, false, results["s3"])
	assert.Equal(t, true, results["lob"])

	w = ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.NotNil(t, resp["checked_at"])

	for _, b := range ts.backends {
		b.SetHealthy(false)
	}
	ts.server.Sweep(context.Background())
	w = ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_ListProviders(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.manager.Store(context.Background(), "k", []byte("v"), engine.LevelStandard))

	w := ts.do(t, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Providers []engine.ProviderSummary `json:"providers"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Providers, 3)
	assert.Equal(t, "s3", resp.Providers[0].Name)
	assert.Equal(t, int64(1), resp.Providers[0].Metrics.TotalOperations)
	assert.True(t, resp.Providers[0].Enabled)
}

func TestServer_Failover(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/providers/s3/failover",
		map[string]string{"level": "STANDARD", "reason": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "s3", resp["disabled"])
	assert.Equal(t, "lob", resp["backup"])

	p, _ := ts.manager.Provider("s3")
	assert.False(t, p.Enabled())
	assert.Len(t, ts.alerts.Alerts(alerting.SeverityWarning), 1)

	t.Run("enable", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/providers/s3/enable", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, p.Enabled())
	})

	t.Run("unknown provider", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/providers/gcs/failover", map[string]string{"level": "PUBLIC"})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = ts.do(t, http.MethodPost, "/api/v1/providers/gcs/enable", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad level", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/providers/s3/failover", map[string]string{"level": "TOP"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("exhausted", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/providers/local/failover", map[string]string{"level": "SECRET"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Len(t, ts.alerts.Alerts(alerting.SeverityCritical), 1)
	})
}

func TestServer_Policies(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Policies []engine.RoutingPolicy `json:"policies"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Policies, 4)
	assert.Equal(t, engine.LevelPublic, list.Policies[0].SecurityLevel)

	w = ts.do(t, http.MethodPut, "/api/v1/policies/public",
		map[string]interface{}{"primary": "local", "fallback": []string{"s3"}, "encryption": true},
		"X-Operator", "alice")
	require.Equal(t, http.StatusOK, w.Code)

	p, ok := ts.manager.Router().Policy(engine.LevelPublic)
	require.True(t, ok)
	assert.Equal(t, engine.ProviderLocal, p.Primary)
	assert.True(t, p.EncryptionRequired)

	changes := ts.manager.Audit().Trail(audit.EventTypePolicyChange, 0)
	require.Len(t, changes, 1)
	assert.Equal(t, "alice", changes[0].Details["changed_by"])

	w = ts.do(t, http.MethodPut, "/api/v1/policies/public", map[string]interface{}{"primary": "tape"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/policies/public", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Alerts(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.manager.FailoverByName(context.Background(), "s3", engine.LevelStandard, "drill")
	require.NoError(t, err)
	require.NoError(t, ts.manager.EnableProvider(context.Background(), "s3"))

	w := ts.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = ts.do(t, http.MethodGet, "/api/v1/alerts?severity=warning", nil)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	w = ts.do(t, http.MethodGet, "/api/v1/alerts?severity=loud", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_MetricsAndAudit(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.manager.Store(context.Background(), "k", []byte("v"), engine.LevelPublic))

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `api_test_api_calls_total{operation="store",provider="lob"} 1`))

	w = ts.do(t, http.MethodGet, "/api/v1/audit/events?event_type=ACCESS_ATTEMPT", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/audit/verify", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
