package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linefleet"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the agent's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Heartbeats         *prometheus.CounterVec
	Registrations      *prometheus.CounterVec
	ConnectionFailures prometheus.Gauge
	Commands           *prometheus.CounterVec
	SyncPushes         *prometheus.CounterVec
	SyncSkipped        *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Heartbeats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats sent to the controller, by result.",
		}, []string{"result"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts, by result.",
		}, []string{"result"}),
		ConnectionFailures: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_failures",
			Help:      "Current number of consecutive controller failures.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands, by type and final status.",
		}, []string{"type", "status"}),
		SyncPushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_pushes_total",
			Help:      "Snapshot pushes to the controller, by kind and result.",
		}, []string{"kind", "result"}),
		SyncSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_skipped_total",
			Help:      "Snapshot pushes skipped because nothing changed.",
		}, []string{"kind"}),
	}
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

func (m *Metrics) ObserveHeartbeat(ok bool) {
	if m == nil {
		return
	}
	m.Heartbeats.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ObserveRegistration(ok bool) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetConnectionFailures(n int) {
	if m == nil {
		return
	}
	m.ConnectionFailures.Set(float64(n))
}

func (m *Metrics) ObserveCommand(commandType, status string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(commandType, status).Inc()
}

func (m *Metrics) ObservePush(kind string, ok bool) {
	if m == nil {
		return
	}
	m.SyncPushes.WithLabelValues(kind, result(ok)).Inc()
}

func (m *Metrics) ObserveSkip(kind string) {
	if m == nil {
		return
	}
	m.SyncSkipped.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
