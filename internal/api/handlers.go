package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FairForge/sal/internal/alerting"
	"github.com/FairForge/sal/internal/config"
	"github.com/FairForge/sal/internal/engine"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HealthResponse is the readiness payload
type HealthResponse struct {
	Status    string          `json:"status"`
	Providers map[string]bool `json:"providers,omitempty"`
	CheckedAt *time.Time      `json:"checked_at,omitempty"`
}

type failoverRequest struct {
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReadiness is ready once a sweep has seen at least one healthy
// provider
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	resp := HealthResponse{Status: "unavailable", Providers: s.health}
	if !s.checkedAt.IsZero() {
		checked := s.checkedAt
		resp.CheckedAt = &checked
	}
	for _, ok := range s.health {
		if ok {
			resp.Status = "ok"
			break
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	results := s.Sweep(r.Context())
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.manager.MetricsSummary(),
	})
}

func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req failoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	level, err := engine.ParseSecurityLevel(req.Level)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "operator_request"
	}

	backup, err := s.manager.FailoverByName(r.Context(), name, level, req.Reason)
	switch {
	case errors.Is(err, engine.ErrUnknownProvider):
		s.respondError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, engine.ErrFailoverExhausted):
		s.respondError(w, http.StatusConflict, err)
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"disabled": name,
		"backup":   backup.Name(),
		"type":     string(backup.Type()),
	})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.manager.EnableProvider(r.Context(), name); err != nil {
		if errors.Is(err, engine.ErrUnknownProvider) {
			s.respondError(w, http.StatusNotFound, err)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"enabled": name})
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"policies": s.manager.Router().Policies(),
	})
}

func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	var pc config.PolicyConfig
	if err := json.NewDecoder(r.Body).Decode(&pc); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	pc.Level = chi.URLParam(r, "level")

	policy, err := pc.RoutingPolicy()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	changedBy := r.Header.Get("X-Operator")
	if changedBy == "" {
		changedBy = "api"
	}
	if err := s.manager.UpdatePolicy(r.Context(), policy, changedBy); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.respondJSON(w, http.StatusOK, policy)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var severity alerting.Severity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		parsed, err := alerting.ParseSeverity(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err)
			return
		}
		severity = parsed
	}
	alerts := s.alerts.Alerts(severity)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("API error", zap.Error(err), zap.Int("status", status))
	s.respondJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
