package corepay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for one payment core
// instance, mirroring the teacher's metrics.go shape (one struct of
// pre-registered collectors, handed to every component that needs to
// record an outcome) generalized from WebSocket/auth/transfer counters to
// payment-pipeline counters.
type Metrics struct {
	PaymentAttemptsTotal  *prometheus.CounterVec
	PaymentAttemptsFail   *prometheus.CounterVec
	GuardBlockedTotal     *prometheus.CounterVec
	CircuitStateGauge     *prometheus.GaugeVec
	RetryAttemptsTotal    *prometheus.CounterVec
	ReservationTotalGauge *prometheus.GaugeVec
}

// NewMetrics registers against the default Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry registers against registry, or the default
// registerer when nil. A non-default registry is used by tests so
// repeated construction never panics on a duplicate collector.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		PaymentAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corepay_payment_attempts_total",
			Help: "Total number of pay() invocations, labeled by transport and terminal status",
		}, []string{"transport", "status"}),
		PaymentAttemptsFail: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corepay_payment_attempts_fail_total",
			Help: "Total number of failed pay() invocations, labeled by error kind",
		}, []string{"error_kind"}),
		GuardBlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corepay_guard_blocked_total",
			Help: "Total number of guard rejections, labeled by guard name",
		}, []string{"guard"}),
		CircuitStateGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corepay_circuit_state",
			Help: "Current circuit breaker state per service (0=closed, 1=half_open, 2=open)",
		}, []string{"service"}),
		RetryAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corepay_retry_attempts_total",
			Help: "Total number of retry attempts issued by the retry policy, labeled by service",
		}, []string{"service"}),
		ReservationTotalGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corepay_reservation_total",
			Help: "Current total amount held in open intent reservations per wallet",
		}, []string{"wallet_id"}),
	}
}

func circuitStateValue(s string) float64 {
	switch s {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}
