package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invodesk/internal/infrastructure"
)

// MetricsHandler exposes the Prometheus scrape endpoint backed by the
// OpenTelemetry meter provider
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler creates a metrics handler over the given provider
func NewMetricsHandler(provider *infrastructure.MetricsProvider) *MetricsHandler {
	return &MetricsHandler{
		handler: promhttp.HandlerFor(provider.Registry, promhttp.HandlerOpts{}),
	}
}

// Metrics handles GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
