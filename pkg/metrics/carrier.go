package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CarrierMetrics records latency and outcomes for carrier API calls.
type CarrierMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCarrierMetrics registers the carrier metrics on the provided registerer.
func NewCarrierMetrics(reg prometheus.Registerer) *CarrierMetrics {
	if reg == nil {
		return &CarrierMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrier_request_duration_seconds",
		Help:    "Duration of carrier API requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_request_success",
		Help: "Successful carrier API requests.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_request_failure",
		Help: "Failed carrier API requests.",
	}, []string{"operation"})
	reg.MustRegister(duration, success, failure)
	return &CarrierMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// Observe records one carrier call outcome.
func (c *CarrierMetrics) Observe(operation string, duration time.Duration, err error) {
	if c == nil || c.duration == nil {
		return
	}
	label := normalizeLabel(operation)
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
	if err != nil {
		c.failure.WithLabelValues(label).Inc()
		return
	}
	c.success.WithLabelValues(label).Inc()
}

func normalizeLabel(value string) string {
	label := strings.TrimSpace(strings.ToLower(value))
	if label == "" {
		return "unknown"
	}
	return strings.ReplaceAll(label, " ", "_")
}
