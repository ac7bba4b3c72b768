// Package rest exposes the security core over HTTP. The surface is thin:
// request clearing, alert triage, audit queries, and operational snapshots.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/domain/errors"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
	"github.com/okwaro/pesasentinel/internal/service/orchestrator"
	"github.com/okwaro/pesasentinel/internal/service/policy"
)

// Handler carries the service dependencies for the HTTP surface.
type Handler struct {
	flow     *orchestrator.Service
	alerts   *alerts.Manager
	audit    *auditlog.Log
	policies *policy.Service
	logger   *zap.Logger
}

// NewHandler wires the services into the HTTP handler set.
func NewHandler(flow *orchestrator.Service, alertMgr *alerts.Manager, auditLog *auditlog.Log, policySvc *policy.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		flow:     flow,
		alerts:   alertMgr,
		audit:    auditLog,
		policies: policySvc,
		logger:   logger,
	}
}

func (h *Handler) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_BODY", "malformed request body"))
		return
	}

	resp, err := h.flow.ProcessRequest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	resolved := r.URL.Query().Get("resolved") == "true"
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": h.alerts.List(resolved),
	})
}

func (h *Handler) handleAlertSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.alerts.Summarize())
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Note string `json:"note"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if !h.alerts.Resolve(id, body.Note) {
		h.writeError(w, errors.NewUnknownAlertError(id))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"resolved": true,
	})
}

func (h *Handler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, errors.NewValidationError("INVALID_SINCE", "since must be RFC 3339"))
			return
		}
		since = parsed
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.audit.Query(since),
	})
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": h.policies.Policies(),
	})
}

func (h *Handler) handleSetPolicyActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !h.policies.SetActive(id, active) {
			h.writeError(w, errors.NewNotFoundError("policy"))
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     id,
			"active": active,
		})
	}
}

func (h *Handler) handleSecurityMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.flow.GetMetrics())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := errors.GetStatusCode(err)

	var payload interface{}
	if appErr, ok := err.(*errors.AppError); ok {
		payload = map[string]interface{}{"error": appErr}
	} else {
		payload = map[string]interface{}{
			"error": map[string]string{"message": err.Error()},
		}
	}
	h.writeJSON(w, status, payload)
}
