package metric

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lockbox"

// Operation results used as label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Storage holds the storage engine metrics. A nil *Storage is valid and
// records nothing.
type Storage struct {
	Operations        *prometheus.CounterVec
	Duration          *prometheus.HistogramVec
	SchemaVersion     prometheus.Gauge
	MigrationsApplied prometheus.Counter
	Backups           prometheus.Gauge
}

// NewStorage creates the storage metrics and registers them with reg.
// Metrics already registered on reg are reused.
func NewStorage(reg prometheus.Registerer) (*Storage, error) {
	s := &Storage{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage engine operations by operation and result.",
		}, []string{"op", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage engine operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		SchemaVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "schema_version",
			Help:      "Schema version of the primary box.",
		}),
		MigrationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "migrations_applied_total",
			Help:      "Migrations applied since process start.",
		}),
		Backups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "backups",
			Help:      "Number of named backups in the backup box.",
		}),
	}

	if reg == nil {
		return s, nil
	}

	s.Operations = register(reg, s.Operations)
	s.Duration = register(reg, s.Duration)
	s.SchemaVersion = register(reg, s.SchemaVersion)
	s.MigrationsApplied = register(reg, s.MigrationsApplied)
	s.Backups = register(reg, s.Backups)

	return s, nil
}

// register registers c, returning the existing collector when an identical
// one is already present.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveOp records the outcome and latency of one operation.
func (s *Storage) ObserveOp(op string, start time.Time, err error) {
	if s == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	s.Operations.WithLabelValues(op, result).Inc()
	s.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetSchemaVersion records the current schema version.
func (s *Storage) SetSchemaVersion(v int) {
	if s == nil {
		return
	}
	s.SchemaVersion.Set(float64(v))
}

// MigrationApplied counts one applied migration.
func (s *Storage) MigrationApplied() {
	if s == nil {
		return
	}
	s.MigrationsApplied.Inc()
}

// SetBackups records the number of stored backups.
func (s *Storage) SetBackups(n int) {
	if s == nil {
		return
	}
	s.Backups.Set(float64(n))
}
