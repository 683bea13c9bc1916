package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPaymentMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPaymentMetrics(registry, Config{ServiceName: "walletpay", Environment: "test"})

	m.ObserveCommand("ecom", "capture", OutcomeSuccess, 20*time.Millisecond)
	m.ObserveCommand("ecom", "capture", OutcomeSuccess, 30*time.Millisecond)
	m.ObserveCommand("ecom", "cancel", OutcomeRefused, 0)
	m.IncTransition("EXPIRED", "PENDING")
	m.ObserveJob("poll_pending", time.Second, errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.commands.WithLabelValues("ecom", "capture", OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("ecom", "cancel", OutcomeRefused)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("EXPIRED", "PENDING")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("poll_pending")))
}

func TestPaymentMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewPaymentMetrics(registry, Config{})
	second := NewPaymentMetrics(registry, Config{})

	first.IncTokenRefresh("expired")
	second.IncTokenRefresh("expired")

	assert.Equal(t, float64(2), testutil.ToFloat64(first.tokenRefreshes.WithLabelValues("expired")))
}

func TestNilPaymentMetrics(t *testing.T) {
	var m *PaymentMetrics
	m.ObserveCommand("ecom", "status", OutcomeSuccess, time.Millisecond)
	m.ObserveJob("sweep", time.Millisecond, nil)
}
