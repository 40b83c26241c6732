package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Oliskey-School/School-app--sub008/internal/service"
	"github.com/Oliskey-School/School-app--sub008/pkg/response"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	ready   func() error
}

// NewMetricsHandler constructs a metrics handler. ready reports whether the
// backing stores are reachable and may be nil.
func NewMetricsHandler(metrics *service.MetricsService, ready func() error) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, ready: ready}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Aggregated request, cache and solver statistics
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether dependencies answer.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
