package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by archive and store metrics.
const (
	ResultOK       = "ok"
	ResultAuth     = "auth_failed"
	ResultNotFound = "not_found"
	ResultCorrupt  = "corrupt"
	ResultIOError  = "io_error"
	ResultInvalid  = "invalid"
)

// Metrics records container and store activity on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	archiveOps      *prometheus.CounterVec
	archiveDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	migrations      *prometheus.CounterVec
	keysGenerated   prometheus.Counter
}

// New creates a Metrics instance with its own registry, including the Go
// runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		archiveOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyphernodeconf_archive_operations_total",
				Help: "Total number of archive entry reads and writes by result",
			},
			[]string{"op", "result"},
		),
		archiveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cyphernodeconf_archive_operation_seconds",
				Help:    "Duration of archive operations, dominated by key derivation",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
			},
			[]string{"op"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyphernodeconf_store_transitions_total",
				Help: "Configuration session state transitions",
			},
			[]string{"from", "to"},
		),
		migrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyphernodeconf_migrations_total",
				Help: "Configuration documents migrated between format versions",
			},
			[]string{"from", "to"},
		),
		keysGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cyphernodeconf_api_keys_generated_total",
				Help: "Gatekeeper API keys generated",
			},
		),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordArchiveOp records one archive operation and its duration.
func (m *Metrics) RecordArchiveOp(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.archiveOps.WithLabelValues(op, result).Inc()
	m.archiveDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordMigration records one migration step.
func (m *Metrics) RecordMigration(from, to string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(from, to).Inc()
}

// RecordKeysGenerated adds n generated API keys.
func (m *Metrics) RecordKeysGenerated(n int) {
	if m == nil {
		return
	}
	m.keysGenerated.Add(float64(n))
}

// WriteTextfile writes a text exposition snapshot of all metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
