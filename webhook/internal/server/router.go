package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haulwatch/haulwatch-stack/common/middleware"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/handlers"
)

// WebhookPath is where the provider posts location events.
const WebhookPath = "/webhook-endpoint"

// NewRouter constructs a ServeMux with the webhook routes registered.
// statsHandler is mounted at /stats when non-nil.
func NewRouter(h *handlers.WebhookHandler, statsHandler http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc(WebhookPath, h.HandleWebhook)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	if statsHandler != nil {
		mux.Handle("/stats", statsHandler)
	}

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.Recover(logger)(handler)
	handler = middleware.AccessLog(logger)(handler)
	return middleware.RequestID(handler)
}
