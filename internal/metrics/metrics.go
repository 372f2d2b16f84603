// Package metrics exposes Prometheus counters for scans, operations and
// rollbacks. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "embress"

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	// Scan metrics
	ScansTotal      *prometheus.CounterVec
	ScanDuration    *prometheus.HistogramVec
	ScansRejected   *prometheus.CounterVec
	UnrenamedFiles  prometheus.Gauge
	ScanWarnings    prometheus.Counter
	ScheduledSkips  prometheus.Counter
	CoordinatorBusy prometheus.Gauge

	// Operation metrics
	OperationsTotal *prometheus.CounterVec
	RollbacksTotal  *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,

		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Scan runs by trigger and final status",
			},
			[]string{"trigger", "status"},
		),
		ScanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Duration of scan runs including execution",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"trigger"},
		),
		ScansRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_rejected_total",
				Help:      "Mutating requests rejected because the coordinator was busy",
			},
			[]string{"kind"},
		),
		UnrenamedFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unrenamed_files",
				Help:      "Unrenamed files reported by the last scan",
			},
		),
		ScanWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scan_warnings_total",
				Help:      "Directories that could not be read during scans",
			},
		),
		ScheduledSkips: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_scans_skipped_total",
				Help:      "Scheduled scans skipped because the coordinator was busy",
			},
		),
		CoordinatorBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "coordinator_busy",
				Help:      "1 while a scan or rollback holds the run token",
			},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Filesystem operations attempted by the executor",
			},
			[]string{"operation", "result"},
		),
		RollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Change records processed by rollbacks",
			},
			[]string{"result"},
		),
	}
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records a finished run.
func (m *Metrics) ObserveScan(trigger, status string, d time.Duration, unrenamed, warnings int) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(trigger, status).Inc()
	m.ScanDuration.WithLabelValues(trigger).Observe(d.Seconds())
	m.UnrenamedFiles.Set(float64(unrenamed))
	m.ScanWarnings.Add(float64(warnings))
}

// ObserveOperation records one executor operation. result is "ok" or a
// failure reason.
func (m *Metrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveRollback records one rollback attempt on a change record.
func (m *Metrics) ObserveRollback(result string) {
	if m == nil {
		return
	}
	m.RollbacksTotal.WithLabelValues(result).Inc()
}

// Rejected records a request refused because the coordinator was busy.
func (m *Metrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.ScansRejected.WithLabelValues(kind).Inc()
}

// SkippedScheduled records a scheduled scan that did not run.
func (m *Metrics) SkippedScheduled() {
	if m == nil {
		return
	}
	m.ScheduledSkips.Inc()
}

// SetBusy tracks the coordinator state.
func (m *Metrics) SetBusy(busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.CoordinatorBusy.Set(1)
	} else {
		m.CoordinatorBusy.Set(0)
	}
}
