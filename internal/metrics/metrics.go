package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

// Metrics holds all Prometheus metrics for pipescope. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Analysis metrics
	Analyses         *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	PipelineJobs     *prometheus.HistogramVec

	// Pass metrics
	PassDuration *prometheus.HistogramVec
	PassFailures *prometheus.CounterVec

	// Finding metrics
	Findings       *prometheus.CounterVec
	CriticalPath   *prometheus.GaugeVec
	OptimizedPath  *prometheus.GaugeVec
	PotentialSaved *prometheus.GaugeVec

	// Watch metrics
	WatchRuns *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipescope_analyses_total",
				Help: "Total number of pipeline analyses",
			},
			[]string{"provider", "status"},
		),
		AnalysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipescope_analysis_duration_seconds",
				Help:    "Wall time of one analysis",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"provider"},
		),
		PipelineJobs: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipescope_pipeline_jobs",
				Help:    "Number of jobs in analyzed pipelines",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"provider"},
		),

		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipescope_pass_duration_seconds",
				Help:    "Wall time of one analysis pass",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"pass"},
		),
		PassFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipescope_pass_failures_total",
				Help: "Analysis passes that panicked",
			},
			[]string{"pass"},
		),

		Findings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipescope_findings_total",
				Help: "Findings reported, by severity and category",
			},
			[]string{"severity", "category"},
		),
		CriticalPath: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipescope_critical_path_seconds",
				Help: "Estimated critical path duration of the last analysis",
			},
			[]string{"pipeline"},
		),
		OptimizedPath: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipescope_optimized_duration_seconds",
				Help: "Estimated duration after applying every finding",
			},
			[]string{"pipeline"},
		),
		PotentialSaved: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipescope_potential_savings_seconds",
				Help: "Sum of finding savings of the last analysis",
			},
			[]string{"pipeline"},
		),

		WatchRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipescope_watch_runs_total",
				Help: "Re-analyses triggered by file changes",
			},
			[]string{"status"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipescope_errors_total",
				Help: "Errors by error code",
			},
			[]string{"code"},
		),
	}
}

// ObservePass records one pass run
func (m *Metrics) ObservePass(pass string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(pass).Observe(elapsed.Seconds())
	if failed {
		m.PassFailures.WithLabelValues(pass).Inc()
	}
}

// ObserveReport records a finished analysis
func (m *Metrics) ObserveReport(r *report.AnalysisReport, elapsed time.Duration) {
	if m == nil || r == nil {
		return
	}
	provider := string(r.Provider)
	m.Analyses.WithLabelValues(provider, "ok").Inc()
	m.AnalysisDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.PipelineJobs.WithLabelValues(provider).Observe(float64(r.JobCount))

	for _, f := range r.Findings {
		m.Findings.WithLabelValues(f.Severity.String(), string(f.Category)).Inc()
	}
	m.CriticalPath.WithLabelValues(r.PipelineName).Set(r.CriticalPathDurationSecs)
	m.OptimizedPath.WithLabelValues(r.PipelineName).Set(r.OptimizedDurationSecs)
	m.PotentialSaved.WithLabelValues(r.PipelineName).Set(r.Summary.TotalSavingsSecs)
}

// ObserveFailure records an analysis that did not produce a report
func (m *Metrics) ObserveFailure(provider string, err error) {
	if m == nil || err == nil {
		return
	}
	m.Analyses.WithLabelValues(provider, "error").Inc()
	m.ObserveError(err)
}

// ObserveError counts err under its error code, or "unknown"
func (m *Metrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "unknown"
	}
	m.Errors.WithLabelValues(code).Inc()
}

// ObserveWatchRun records one watch-triggered analysis
func (m *Metrics) ObserveWatchRun(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.WatchRuns.WithLabelValues(status).Inc()
}
