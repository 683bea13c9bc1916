package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess         = "success"
	OutcomeSkipped         = "skipped"
	OutcomeRefused         = "refused"
	OutcomeProviderError   = "provider_error"
	OutcomeValidationError = "validation_error"
	OutcomeTransportError  = "transport_error"
)

// PaymentMetrics are the prometheus series scraped from /metrics.
type PaymentMetrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// PaymentsWithConfig returns the process-wide payment metrics registered on the default registerer.
func PaymentsWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = NewPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// NewPaymentMetrics registers the series on registerer. Already registered
// collectors are reused.
func NewPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "walletpay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &PaymentMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "walletpay_gateway_commands_total",
			Help:        "Provider commands by protocol, operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"protocol", "operation", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "walletpay_gateway_command_duration_seconds",
			Help:        "Provider command latency including auth retry.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"protocol", "operation"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "walletpay_gateway_token_refreshes_total",
			Help:        "Access token fetches by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "walletpay_attempt_transitions_total",
			Help:        "Payment attempt status transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "walletpay_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "walletpay_scheduler_job_errors_total",
			Help:        "Scheduler job runs that returned an error.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "walletpay_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	m.commands = register(registerer, m.commands)
	m.commandDuration = register(registerer, m.commandDuration)
	m.tokenRefreshes = register(registerer, m.tokenRefreshes)
	m.transitions = register(registerer, m.transitions)
	m.jobRuns = register(registerer, m.jobRuns)
	m.jobErrors = register(registerer, m.jobErrors)
	m.jobDuration = register(registerer, m.jobDuration)
	return m
}

func register[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *PaymentMetrics) ObserveCommand(protocol, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(protocol, operation, outcome).Inc()
	m.commandDuration.WithLabelValues(protocol, operation).Observe(elapsed.Seconds())
}

func (m *PaymentMetrics) IncTokenRefresh(reason string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(reason).Inc()
}

func (m *PaymentMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *PaymentMetrics) ObserveJob(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.jobErrors.WithLabelValues(job).Inc()
	}
}
