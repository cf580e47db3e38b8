package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// APIHandler serves the in-memory audit trail read-only
type APIHandler struct {
	trail  *Logger
	logger *zap.Logger
}

// NewAPIHandler creates a new audit API handler
func NewAPIHandler(trail *Logger, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		trail:  trail,
		logger: logger,
	}
}

// RegisterRoutes registers all audit API routes
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/summary", h.GetSummary)
		r.Get("/verify", h.VerifyChain)
	})
}

// ListEvents returns the most recent events, oldest first
func (h *APIHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter EventType
	if eventType := query.Get("event_type"); eventType != "" {
		filter = EventType(eventType)
		if !knownType(filter) {
			h.respondError(w, http.StatusBadRequest, fmt.Errorf("unknown event type %q", eventType))
			return
		}
	}

	limit := 100
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	events := h.trail.Trail(filter, limit)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// GetEvent retrieves a single audit event by ID
func (h *APIHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	event, ok := h.trail.Event(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, fmt.Errorf("event %s not found", id))
		return
	}
	h.respondJSON(w, http.StatusOK, event)
}

// GetSummary returns per-type counts
func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.trail.Summary())
}

// VerifyChain checks the hash chain of the retained trail
func (h *APIHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	if err := h.trail.Verify(); err != nil {
		h.respondJSON(w, http.StatusConflict, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"events": h.trail.Len(),
	})
}

func knownType(t EventType) bool {
	for _, known := range EventTypes() {
		if known == t {
			return true
		}
	}
	return false
}

// Helper methods

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, err error) {
	h.logger.Warn("API error", zap.Error(err), zap.Int("status", status))
	h.respondJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
