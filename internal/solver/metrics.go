package solver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry       *prometheus.Registry
	payoutAttempts *prometheus.CounterVec
	intentsTotal   *prometheus.CounterVec
	dlqDepth       prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intentledger_solver_payout_attempts_total",
		Help: "Payout attempts by result",
	}, []string{"result"})

	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intentledger_solver_intents_total",
		Help: "Open intents handled by the solver, by outcome",
	}, []string{"status"})

	dlq := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intentledger_solver_dlq_depth",
		Help: "Number of items in the DLQ",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(attempts, intents, dlq)

	return &metricsRegistry{
		registry:       r,
		payoutAttempts: attempts,
		intentsTotal:   intents,
		dlqDepth:       dlq,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incPayoutAttempt(result string) {
	m.payoutAttempts.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) addIntents(status string, n int) {
	if n > 0 {
		m.intentsTotal.WithLabelValues(status).Add(float64(n))
	}
}

func (m *metricsRegistry) setDLQDepth(depth int) {
	m.dlqDepth.Set(float64(depth))
}
