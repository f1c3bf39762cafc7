package core

import (
	"github.com/prometheus/client_golang/prometheus"

	"vivarium/pkg/domain"
)

// Metrics counts mutation outcomes and tracks the installed revision.
type Metrics struct {
	mutations *prometheus.CounterVec
	failures  *prometheus.CounterVec
	revision  prometheus.Gauge
}

// NewMetrics builds and registers the engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vivarium",
			Name:      "mutations_total",
			Help:      "Mutation attempts by operation and result.",
		}, []string{"operation", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vivarium",
			Name:      "mutation_failures_total",
			Help:      "Rejected mutations by operation and error kind.",
		}, []string{"operation", "kind"}),
		revision: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vivarium",
			Name:      "snapshot_revision",
			Help:      "Sequence number of the installed snapshot.",
		}),
	}
	reg.MustRegister(m.mutations, m.failures, m.revision)
	return m
}

func (m *Metrics) observe(op string, seq uint64, out domain.Outcome) {
	result := "ok"
	if out.Failed() {
		result = "error"
		m.failures.WithLabelValues(op, string(out.Kind)).Inc()
	}
	m.mutations.WithLabelValues(op, result).Inc()
	m.revision.Set(float64(seq))
}
