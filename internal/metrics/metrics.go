// Package metrics exposes Prometheus metrics for FlashKV.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flashkv"

// Metrics holds the server collectors. It implements command.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	commands    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	writes      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	clients     prometheus.Gauge
	connections prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry. keys
// reports the current number of live keys; expired reports how many keys
// have been removed by expiration. Either may be nil.
func New(keys func() int, expired func() int64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of commands processed",
		}, []string{"command"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Total number of commands that replied with an error",
		}, []string{"command", "kind"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "writes_total",
			Help:      "Total number of successful write commands",
		}, []string{"command"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution latency",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"command"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of open client connections",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.errors,
		m.writes,
		m.duration,
		m.clients,
		m.connections,
		prometheus.NewGoCollector(),
	)

	if keys != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "keys",
			Help:      "Number of live keys",
		}, func() float64 { return float64(keys()) }))
	}
	if expired != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "expired_keys_total",
			Help:      "Total number of keys removed because they expired",
		}, func() float64 { return float64(expired()) }))
	}
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one executed command.
func (m *Metrics) ObserveCommand(name string, took time.Duration) {
	m.commands.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(took.Seconds())
}

// ObserveError records a command that replied with an error of kind.
func (m *Metrics) ObserveError(name, kind string) {
	m.errors.WithLabelValues(name, kind).Inc()
}

// ObserveWrite records a successful write command.
func (m *Metrics) ObserveWrite(name string) {
	m.writes.WithLabelValues(name).Inc()
}

// ClientConnected records a new client connection.
func (m *Metrics) ClientConnected() {
	m.clients.Inc()
	m.connections.Inc()
}

// ClientDisconnected records a closed client connection.
func (m *Metrics) ClientDisconnected() {
	m.clients.Dec()
}
