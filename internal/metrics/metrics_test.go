package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveValidation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveValidation("ios", OutcomeValid)
	m.ObserveValidation("ios", OutcomeValid)
	m.ObserveValidation("android", OutcomeInvalid)
	m.ObserveValidation("windows", OutcomeError)
	m.ObserveValidation("", OutcomeError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Validation("ios", OutcomeValid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validation("android", OutcomeInvalid)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Validation("unknown", OutcomeError)))
}

func TestObserveVendorCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVendorCall(VendorAppStore, time.Now(), nil)
	m.ObserveVendorCall(VendorGooglePlay, time.Now(), errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.vendorCalls))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveValidation("ios", OutcomeValid)
		m.ObserveVendorCall(VendorAppStore, time.Now(), nil)
	})
}
