// Package metrics holds the Prometheus instruments of the notification
// service and exposes them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Consume results used as label values on EventsConsumed.
const (
	ResultCreated   = "created"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultInvalid   = "invalid"
)

var (
	// Fan-out metrics
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_consumed_total",
			Help: "Total number of notification events consumed by result",
		},
		[]string{"result"},
	)

	ConsumeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_consume_duration_seconds",
			Help:    "Time taken to persist and fan out one event in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_pushes_total",
			Help: "Total number of realtime pushes queued to sessions by event name",
		},
		[]string{"event"},
	)

	PushesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_push_dropped_total",
			Help: "Total number of pushes dropped because a session was closed or its buffer was full",
		},
	)

	// Producer metrics
	ProducerPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_producer_publish_failures_total",
			Help: "Total number of events that could not be handed to the broker by event type",
		},
		[]string{"type"},
	)

	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_sessions_active",
			Help: "Number of authenticated realtime sessions on this instance",
		},
	)

	AuthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_auth_failures_total",
			Help: "Total number of failed realtime authentications",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(EventsConsumed)
	prometheus.MustRegister(ConsumeDuration)
	prometheus.MustRegister(PushesTotal)
	prometheus.MustRegister(PushesDropped)
	prometheus.MustRegister(ProducerPublishFailures)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(AuthFailures)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetSessions records the current session count. Its signature matches the
// registry observer hook.
func SetSessions(n int) {
	SessionsActive.Set(float64(n))
}

// Timer measures an operation and records it in a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time in h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(time.Since(t.start).Seconds())
}
