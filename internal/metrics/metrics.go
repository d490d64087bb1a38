package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/codepatrol/internal/models"
)

const (
	namespace = "codepatrol"
	subsystem = "patrol"
)

// Metrics holds Prometheus instrumentation for patrol runs.
// All methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	probeFailures *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	verification  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	findings      *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

var (
	defaultInstance *Metrics
	defaultOnce     sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInstance = New()
	})
	return defaultInstance
}

// New creates metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total patrol runs by outcome",
			},
			[]string{"outcome"},
		),
		probeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "probe_failures_total",
				Help:      "Total scan probe failures that fell back to an empty result",
			},
			[]string{"probe"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "probe_duration_seconds",
				Help:      "Scan probe wall time",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"probe"},
		),
		verification: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "verification_total",
				Help:      "Total verification results",
			},
			[]string{"result"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline state",
				Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
			},
			[]string{"stage"},
		),
		findings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "findings",
				Help:      "Findings per kind in the latest before/after snapshot",
			},
			[]string{"phase", "kind"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed patrol run",
			},
		),
	}

	m.registry.MustRegister(
		m.runs,
		m.probeFailures,
		m.probeDuration,
		m.verification,
		m.stageDuration,
		m.findings,
		m.lastRun,
	)

	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveProbe records one probe run.
func (m *Metrics) ObserveProbe(probe string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.probeDuration.WithLabelValues(probe).Observe(d.Seconds())
	if failed {
		m.probeFailures.WithLabelValues(probe).Inc()
	}
}

// ObserveStage records time spent in one pipeline state.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordVerification records a verification result ("passed" or "failed").
func (m *Metrics) RecordVerification(passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.verification.WithLabelValues(result).Inc()
}

// RecordRun records a finished run by outcome.
func (m *Metrics) RecordRun(outcome string, at time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.lastRun.Set(float64(at.Unix()))
}

// SetFindings publishes the per-kind counts of a snapshot.
func (m *Metrics) SetFindings(phase string, s models.ScanSnapshot) {
	if m == nil {
		return
	}
	for kind, n := range s.CountsByKind() {
		m.findings.WithLabelValues(phase, string(kind)).Set(float64(n))
	}
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
