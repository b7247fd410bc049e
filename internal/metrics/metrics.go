package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"danceimport/internal/model"
)

const namespace = "danceimport"

// Metrics holds the refresh collectors on a private registry, so tests and
// multiple runners never collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	events        *prometheus.GaugeVec
	runDuration   prometheus.Summary
	lastSuccessTS prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Number of refresh runs by result",
	}, []string{"result"})
	m.events = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events",
		Help:      "Events in the latest snapshot by state",
	}, []string{"state"})
	m.runDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Time spent on one refresh run",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful refresh",
	})

	m.registry.MustRegister(m.runsTotal, m.events, m.runDuration, m.lastSuccessTS)
	return m
}

// ObserveSuccess records a completed run and the counts of its result.
func (m *Metrics) ObserveSuccess(res model.Result, took time.Duration, at time.Time) {
	m.runsTotal.WithLabelValues("ok").Inc()
	m.runDuration.Observe(took.Seconds())
	m.events.WithLabelValues("upcoming").Set(float64(res.UpcomingCount))
	m.events.WithLabelValues("past").Set(float64(res.PastCount))
	m.events.WithLabelValues("dropped").Set(float64(res.DroppedCount))
	m.lastSuccessTS.Set(float64(at.Unix()))
}

// ObserveFailure records a run that produced no snapshot. Event gauges keep
// describing the previous snapshot.
func (m *Metrics) ObserveFailure(took time.Duration) {
	m.runsTotal.WithLabelValues("error").Inc()
	m.runDuration.Observe(took.Seconds())
}

// Handler exposes the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
