package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry          *prometheus.Registry
	intentsCreated    *prometheus.CounterVec
	fulfillmentsTotal *prometheus.CounterVec
	queriesTotal      *prometheus.CounterVec
	openIntents       prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intentledger_intents_created_total",
		Help: "Total number of create_intent calls by outcome",
	}, []string{"status"})

	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intentledger_fulfillments_total",
		Help: "Total number of mark_fulfilled calls by outcome",
	}, []string{"status"})

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intentledger_queries_total",
		Help: "Read queries served",
	}, []string{"kind"})

	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intentledger_open_intents",
		Help: "Number of open intents as of the last call that observed them",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(created, fulfillments, queries, open)

	return &metricsRegistry{
		registry:          r,
		intentsCreated:    created,
		fulfillmentsTotal: fulfillments,
		queriesTotal:      queries,
		openIntents:       open,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incCreated(status string) {
	m.intentsCreated.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incFulfillment(status string) {
	m.fulfillmentsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incQuery(kind string) {
	m.queriesTotal.WithLabelValues(kind).Inc()
}

func (m *metricsRegistry) setOpenIntents(n int) {
	m.openIntents.Set(float64(n))
}
