package migration

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps Prometheus metrics for the migration service. It owns its
// registry so multiple services can be instrumented side by side.
type Metrics struct {
	registry *prometheus.Registry

	Calls     *prometheus.CounterVec
	Saved     prometheus.Counter
	Squashed  prometheus.Counter
	GraphSize prometheus.Gauge
}

// NewMetrics creates a Metrics with its own Prometheus registry. namespace
// prefixes every metric name; empty means no prefix.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migrations",
			Name:      "calls_total",
			Help:      "Total service calls by operation and status",
		}, []string{"operation", "status"}),
		Saved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migrations",
			Name:      "saved_total",
			Help:      "Total migrations persisted to the repository",
		}),
		Squashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migrations",
			Name:      "squashed_total",
			Help:      "Total migrations superseded by a squash",
		}),
		GraphSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "migrations",
			Name:      "graph_size",
			Help:      "Number of migrations in the most recently built graph",
		}),
	}

	reg.MustRegister(m.Calls, m.Saved, m.Squashed, m.GraphSize)
	return m
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observeCall records one service call outcome. Safe on a nil receiver so the
// service can run uninstrumented.
func (m *Metrics) observeCall(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Calls.WithLabelValues(operation, status).Inc()
}
