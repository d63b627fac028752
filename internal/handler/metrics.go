package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// Metrics holds Prometheus metrics for the delivery pipeline
type Metrics struct {
	notificationsSent   prometheus.Counter
	notificationsFailed *prometheus.CounterVec
	dispatchesTotal     *prometheus.CounterVec
	drainDuration       prometheus.Histogram
	queueDepth          prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		notificationsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_notifications_sent_total",
				Help: "Total number of notifications delivered to at least one device",
			},
		),
		notificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_notifications_failed_total",
				Help: "Total number of notifications that reached no device",
			},
			[]string{"reason"},
		),
		dispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fcm_dispatches_total",
				Help: "Total number of per-token FCM sends",
			},
			[]string{"result"},
		),
		drainDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "queue_drain_duration_seconds",
				Help:    "Duration of one queue drain cycle",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chat_notification_queue_depth",
				Help: "Current number of pending notifications",
			},
		),
	}
}

// RecordNotificationSent records a successful notification delivery
func (m *Metrics) RecordNotificationSent() {
	m.notificationsSent.Inc()
}

// RecordNotificationFailed records a failed notification
func (m *Metrics) RecordNotificationFailed(reason string) {
	m.notificationsFailed.WithLabelValues(reason).Inc()
}

// RecordDispatchOutcomes records the per-token results of one fan-out
func (m *Metrics) RecordDispatchOutcomes(outcome domain.NotificationOutcome) {
	if outcome.SuccessCount > 0 {
		m.dispatchesTotal.WithLabelValues("success").Add(float64(outcome.SuccessCount))
	}
	if outcome.FailureCount > 0 {
		m.dispatchesTotal.WithLabelValues("failure").Add(float64(outcome.FailureCount))
	}
}

// RecordDrainDuration records the duration of one drain cycle
func (m *Metrics) RecordDrainDuration(d time.Duration) {
	m.drainDuration.Observe(d.Seconds())
}

// SetQueueDepth sets the current queue depth gauge
func (m *Metrics) SetQueueDepth(depth float64) {
	m.queueDepth.Set(depth)
}

// MetricsHandler handles metrics endpoints
type MetricsHandler struct {
	metrics *Metrics
	queue   domain.NotificationQueue
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler(metrics *Metrics, queue domain.NotificationQueue) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		queue:   queue,
	}
}

// Handler returns the Prometheus HTTP handler
func (h *MetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

// RealtimeMetrics handles real-time metrics requests
// @Summary Real-time metrics
// @Description Get the current notification queue depth
// @Tags metrics
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 500 {object} Response
// @Router /metrics/realtime [get]
func (h *MetricsHandler) RealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	depth, err := h.queue.PendingDepth(ctx)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "METRICS_ERROR", "Failed to get queue depth", nil)
		return
	}

	h.metrics.SetQueueDepth(float64(depth))

	JSON(w, http.StatusOK, map[string]int64{
		"pending_depth": depth,
	})
}
