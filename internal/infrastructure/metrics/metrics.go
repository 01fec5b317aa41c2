package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "negotiation"

// Metrics holds the engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted      prometheus.Counter
	LiveSessions         prometheus.Gauge
	EventsAppended       *prometheus.CounterVec
	CommandsRejected     *prometheus.CounterVec
	Deadlocks            prometheus.Counter
	CollaboratorFailures *prometheus.CounterVec
	CollaboratorLatency  *prometheus.HistogramVec
	Deliveries           *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_started_total",
			Help: "Sessions opened.",
		}),
		LiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_sessions",
			Help: "Sessions currently owned by the registry.",
		}),
		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_appended_total",
			Help: "Ledger entries appended, by kind.",
		}, []string{"kind"}),
		CommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_rejected_total",
			Help: "Commands refused before reaching the ledger, by reason.",
		}, []string{"reason"}),
		Deadlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deadlocks_total",
			Help: "Stalls detected and escalated to a compromise.",
		}),
		CollaboratorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collaborator_failures_total",
			Help: "Soft failures of external collaborators.",
		}, []string{"collaborator"}),
		CollaboratorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "collaborator_duration_seconds",
			Help:    "Collaborator call latency.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"collaborator"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Delivery outcomes: delivered, retried, parked, duplicate.",
		}, []string{"outcome"}),
	}
}

// ObserveCollaborator records one call and whether it failed.
func (m *Metrics) ObserveCollaborator(name string, started time.Time, failed bool) {
	m.CollaboratorLatency.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if failed {
		m.CollaboratorFailures.WithLabelValues(name).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
