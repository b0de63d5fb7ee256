package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// WebSocket specific metrics
	wsConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	wsFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_frames_dropped_total",
			Help: "Frames dropped because a client send queue was full",
		},
	)

	// =========================================================================
	// Business Metrics - 시그널링 서비스 전용
	// =========================================================================

	signalingOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_online_users",
			Help: "Number of users currently registered in the presence registry",
		},
	)

	callsInitiatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_calls_initiated_total",
			Help: "Total number of call initiations that passed validation",
		},
	)

	callsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_calls_started_total",
			Help: "Total number of calls that were accepted",
		},
	)

	callsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_calls_active",
			Help: "Number of calls currently active",
		},
	)

	relayDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_relay_dropped_total",
			Help: "Relay events dropped because the target was not online",
		},
	)
)

// MetricsMiddleware returns a Gin middleware that collects Prometheus metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpRequestsInFlight.Inc()

		c.Next()

		httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns the Prometheus metrics handler for Gin
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordWebSocketConnection increments WebSocket connection counters
func RecordWebSocketConnection() {
	wsConnectionsTotal.Inc()
	wsActiveConnections.Inc()
}

// RecordWebSocketDisconnection decrements active WebSocket connection gauge
func RecordWebSocketDisconnection() {
	wsActiveConnections.Dec()
}

// RecordFrameDropped counts an outbound frame lost to backpressure
func RecordFrameDropped() {
	wsFramesDropped.Inc()
}

// =============================================================================
// Business Metrics Helper Functions
// =============================================================================

// SetOnlineUsers sets the presence registry size
func SetOnlineUsers(count float64) {
	signalingOnlineUsers.Set(count)
}

// RecordCallInitiated counts a validated initiate
func RecordCallInitiated() {
	callsInitiatedTotal.Inc()
}

// RecordCallStarted counts an accepted call and bumps the active gauge
func RecordCallStarted() {
	callsStartedTotal.Inc()
	callsActive.Inc()
}

// RecordCallEnded decrements the active call gauge
func RecordCallEnded() {
	callsActive.Dec()
}

// RecordRelayDropped counts a relay event with no reachable target
func RecordRelayDropped() {
	relayDroppedTotal.Inc()
}
