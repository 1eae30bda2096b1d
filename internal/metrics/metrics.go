package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderlyflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderlyflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Calendar Metrics
	EventsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderlyflow_events_created_total",
			Help: "Calendar events created, by origin",
		},
		[]string{"origin"}, // event, task, import
	)

	InstancesGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderlyflow_recurrence_instances_generated_total",
			Help: "Event instances produced by recurrence expansion",
		},
	)

	ExpansionsTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderlyflow_recurrence_truncated_total",
			Help: "Expansions stopped by the instance cap before their end date",
		},
	)

	UnknownPatternTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderlyflow_recurrence_unknown_pattern_total",
			Help: "Expansions that fell back to daily for an unrecognized pattern",
		},
	)

	SubscriptionImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderlyflow_subscription_imports_total",
			Help: "Subscription import runs by result",
		},
		[]string{"subscription", "result"}, // ok, error
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderlyflow_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"}, // db, validation, sync, import
	)
)

// Middleware records request counts and latency. The path label uses the
// route template so ids do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// TrackExpansion records the outcome of one recurrence expansion.
func TrackExpansion(instances int, truncated, unknownPattern bool) {
	InstancesGeneratedTotal.Add(float64(instances))
	if truncated {
		ExpansionsTruncatedTotal.Inc()
	}
	if unknownPattern {
		UnknownPatternTotal.Inc()
	}
}

// TrackEventsCreated adds n to the created-events counter for origin.
func TrackEventsCreated(origin string, n int) {
	EventsCreatedTotal.WithLabelValues(origin).Add(float64(n))
}

// TrackSubscriptionImport records one subscription import run.
func TrackSubscriptionImport(subscription string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SubscriptionImportsTotal.WithLabelValues(subscription, result).Inc()
}

// TrackError increments the error counter by type.
func TrackError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}
