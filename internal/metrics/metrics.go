// Package metrics exposes Prometheus collectors for receipt validation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	VendorAppStore    = "app_store"
	VendorGoogleOAuth = "google_oauth"
	VendorGooglePlay  = "google_play"

	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"

	platformUnknown = "unknown"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	validations *prometheus.CounterVec
	vendorCalls *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "validations_total",
			Help:      "Receipt validation attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
		vendorCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receipts",
			Name:      "vendor_request_duration_seconds",
			Help:      "Latency of outbound vendor calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"vendor", "result"}),
	}
}

func (m *Metrics) ObserveValidation(platform, outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(platformLabel(platform), outcome).Inc()
}

func (m *Metrics) ObserveVendorCall(vendor string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.vendorCalls.WithLabelValues(vendor, result).Observe(time.Since(start).Seconds())
}

// platformLabel keeps caller-supplied platform strings out of label values.
func platformLabel(platform string) string {
	switch platform {
	case "ios", "android":
		return platform
	default:
		return platformUnknown
	}
}

// Validation returns the counter for a platform/outcome pair. Used by tests.
func (m *Metrics) Validation(platform, outcome string) prometheus.Counter {
	return m.validations.WithLabelValues(platformLabel(platform), outcome)
}
