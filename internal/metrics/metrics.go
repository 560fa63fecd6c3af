package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "icon_tester"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobs             *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	stagedFiles      *prometheus.CounterVec
	transformResults *prometheus.CounterVec
	previewFailures  *prometheus.CounterVec
	toolExits        *prometheus.CounterVec
	toolDuration     prometheus.Histogram
	cleanupFailures  prometheus.Counter
	inFlight         prometheus.Gauge
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs handled, by job name and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from allocation to cleanup.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		stagedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staged_files_total",
			Help:      "Files accepted into job workspaces.",
		}, []string{"job"}),
		transformResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_files_total",
			Help:      "Per-file transform results.",
		}, []string{"transform", "result"}),
		previewFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_failures_total",
			Help:      "Files whose preview could not be rendered.",
		}, []string{"job"}),
		toolExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_runs_total",
			Help:      "External tool runs, by exit code and artifact presence.",
		}, []string{"exit_code", "artifact"}),
		toolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "External tool wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Workspaces that could not be removed.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently holding a workspace.",
		}),
	}

	m.registry.MustRegister(
		m.jobs,
		m.jobDuration,
		m.stagedFiles,
		m.transformResults,
		m.previewFailures,
		m.toolExits,
		m.toolDuration,
		m.cleanupFailures,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobStarted marks a job as holding a workspace
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// JobFinished records the outcome once the workspace is gone
func (m *Metrics) JobFinished(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.jobs.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// JobRejected records a job that failed before a workspace existed
func (m *Metrics) JobRejected(job, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(job, outcome).Inc()
}

// FilesStaged counts accepted files
func (m *Metrics) FilesStaged(job string, n int) {
	if m == nil {
		return
	}
	m.stagedFiles.WithLabelValues(job).Add(float64(n))
}

// TransformResult counts one per-file transform result
func (m *Metrics) TransformResult(transform string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.transformResults.WithLabelValues(transform, result).Inc()
}

// PreviewFailed counts a preview that could not be rendered
func (m *Metrics) PreviewFailed(job string) {
	if m == nil {
		return
	}
	m.previewFailures.WithLabelValues(job).Inc()
}

// ToolRun records an external tool run
func (m *Metrics) ToolRun(exitCode int, artifact bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	present := "absent"
	if artifact {
		present = "present"
	}
	m.toolExits.WithLabelValues(strconv.Itoa(exitCode), present).Inc()
	m.toolDuration.Observe(elapsed.Seconds())
}

// CleanupFailed counts a workspace removal failure
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
