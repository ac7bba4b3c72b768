package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/metrics"
)

// RouterConfig carries the router's tunables.
type RouterConfig struct {
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter builds the route table and wraps it in the middleware chain.
func NewRouter(h *Handler, reg *metrics.Registry, logger *zap.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 2 * cfg.RateLimitRPS
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/requests", h.handleProcessRequest)

	mux.HandleFunc("GET /api/v1/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/v1/alerts/summary", h.handleAlertSummary)
	mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", h.handleResolveAlert)

	mux.HandleFunc("GET /api/v1/audit", h.handleQueryAudit)

	mux.HandleFunc("GET /api/v1/policies", h.handleListPolicies)
	mux.Handle("POST /api/v1/policies/{id}/activate", h.handleSetPolicyActive(true))
	mux.Handle("POST /api/v1/policies/{id}/deactivate", h.handleSetPolicyActive(false))

	mux.HandleFunc("GET /api/v1/metrics", h.handleSecurityMetrics)

	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return Chain(mux,
		Recovery(logger),
		RequestID(),
		Logging(logger),
		Metrics(reg),
		RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
}
