// Package analysis runs the heuristic passes over a pipeline graph and merges
// their findings into one ranked report.
package analysis

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/log"
	"github.com/felixgeelhaar/pipescope/internal/metrics"
	"github.com/felixgeelhaar/pipescope/internal/report"
	"github.com/felixgeelhaar/pipescope/internal/sizing"
	"github.com/felixgeelhaar/pipescope/internal/telemetry"
)

// Input is what every pass sees. Passes must not modify it.
type Input struct {
	Dag          *dag.PipelineDag
	CriticalPath CriticalPath
	Config       Config
}

// PassFunc is one independent analyzer
type PassFunc func(in Input) []finding.Finding

// Pass names a PassFunc for diagnostics
type Pass struct {
	Name string
	Run  PassFunc
}

// Analyzer orchestrates the passes
type Analyzer struct {
	cfg        Config
	sizer      *sizing.Sizer
	extra      []Pass
	concurrent bool
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithSizer replaces the default runner sizer
func WithSizer(s *sizing.Sizer) Option {
	return func(a *Analyzer) { a.sizer = s }
}

// WithPass appends a pass that runs after the built-in ones
func WithPass(name string, run PassFunc) Option {
	return func(a *Analyzer) { a.extra = append(a.extra, Pass{Name: name, Run: run}) }
}

// WithConcurrency runs passes on separate goroutines. Output order is unchanged.
func WithConcurrency(enabled bool) Option {
	return func(a *Analyzer) { a.concurrent = enabled }
}

// WithLogger sets the logger used for pass diagnostics
func WithLogger(l *log.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics records pass and report metrics into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// NewAnalyzer creates an analyzer over cfg
func NewAnalyzer(cfg Config, opts ...Option) *Analyzer {
	a := &Analyzer{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.sizer == nil {
		a.sizer = sizing.Default()
	}
	if a.logger == nil {
		a.logger = log.DefaultLogger()
	}
	a.logger = a.logger.WithComponent("analysis")
	return a
}

// Passes lists the passes in run order
func (a *Analyzer) Passes() []Pass {
	passes := []Pass{
		{Name: "critical-path", Run: func(in Input) []finding.Finding {
			return AnalyzeCriticalPath(in.Dag, in.CriticalPath, in.Config)
		}},
		{Name: "cache", Run: func(in Input) []finding.Finding {
			return DetectMissingCaches(in.Dag, in.Config)
		}},
		{Name: "parallel", Run: func(in Input) []finding.Finding {
			return FindParallelOpportunities(in.Dag, in.CriticalPath, in.Config)
		}},
		{Name: "waste", Run: func(in Input) []finding.Finding {
			return DetectWaste(in.Dag, in.Config)
		}},
		{Name: "runner-sizing", Run: func(in Input) []finding.Finding {
			return AnalyzeRunnerSizing(in.Dag, a.sizer, in.Config)
		}},
	}
	return append(passes, a.extra...)
}

// Analyze validates d, runs every pass and assembles the report
func (a *Analyzer) Analyze(ctx context.Context, d *dag.PipelineDag) (*report.AnalysisReport, error) {
	if d == nil {
		return nil, errors.New(errors.ErrCodeAnalysisFailed, "no pipeline to analyze")
	}

	start := time.Now()
	ctx, span := telemetry.StartAnalysisSpan(ctx, d.Name(), string(d.Provider()), d.JobCount())
	defer span.End()

	r, err := a.analyze(ctx, d)
	if err != nil {
		telemetry.RecordError(span, err)
		a.metrics.ObserveFailure(string(d.Provider()), err)
		return nil, err
	}
	telemetry.RecordSuccess(span,
		attribute.Int("findings", len(r.Findings)),
		attribute.Float64("critical_path_secs", r.CriticalPathDurationSecs),
	)
	a.metrics.ObserveReport(r, time.Since(start))
	return r, nil
}

func (a *Analyzer) analyze(ctx context.Context, d *dag.PipelineDag) (*report.AnalysisReport, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "invalid analysis configuration", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cp, err := FindCriticalPath(d, a.cfg.DefaultStepSecs)
	if err != nil {
		return nil, err
	}
	in := Input{Dag: d, CriticalPath: cp, Config: a.cfg}

	passes := a.Passes()
	results := make([][]finding.Finding, len(passes))
	diags := make([][]string, len(passes))

	if a.concurrent {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range passes {
			i := i
			g.Go(func() error {
				results[i], diags[i] = a.runPass(ctx, passes[i], in)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range passes {
			results[i], diags[i] = a.runPass(ctx, passes[i], in)
		}
	}

	var findings []finding.Finding
	var diagnostics []string
	for i := range passes {
		findings = append(findings, results[i]...)
		diagnostics = append(diagnostics, diags[i]...)
	}
	finding.Sort(findings)

	total := cp.DurationSecs
	r := &report.AnalysisReport{
		PipelineName:               d.Name(),
		SourceFile:                 d.SourceFile(),
		Provider:                   d.Provider(),
		JobCount:                   d.JobCount(),
		StepCount:                  d.StepCount(),
		MaxParallelism:             d.MaxParallelism(),
		CriticalPath:               cp.IDs,
		CriticalPathDurationSecs:   total,
		TotalEstimatedDurationSecs: total,
		OptimizedDurationSecs:      report.OptimizedDuration(total, findings),
		Findings:                   findings,
		Summary:                    report.Summarize(findings),
		Diagnostics:                diagnostics,
	}
	if r.CriticalPath == nil {
		r.CriticalPath = []string{}
	}
	if r.Findings == nil {
		r.Findings = []finding.Finding{}
	}
	if err := r.Seal(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAnalysisFailed, "failed to derive report id", err)
	}

	a.logger.DebugContext(ctx, "analysis complete",
		"pipeline", d.Name(),
		"jobs", r.JobCount,
		"findings", len(findings),
		"critical_path_secs", total,
		"optimized_secs", r.OptimizedDurationSecs,
	)
	return r, nil
}

// runPass isolates a pass: a panic or an invalid finding is recorded as a
// diagnostic and never affects other passes.
func (a *Analyzer) runPass(ctx context.Context, p Pass, in Input) (out []finding.Finding, diags []string) {
	start := time.Now()
	ctx, span := telemetry.StartPassSpan(ctx, p.Name)
	defer func() {
		failed := false
		if rec := recover(); rec != nil {
			failed = true
			out = nil
			diags = append(diags, fmt.Sprintf("pass %s failed: %v", p.Name, rec))
			a.logger.Error("analysis pass panicked", "pass", p.Name, "panic", fmt.Sprint(rec))
			telemetry.RecordError(span, fmt.Errorf("pass %s panicked: %v", p.Name, rec))
		}
		a.metrics.ObservePass(p.Name, time.Since(start), failed)
		span.End()
	}()

	for _, f := range p.Run(in) {
		f.Confidence = finding.Confidence(f.Confidence)
		if err := f.Validate(); err != nil {
			diags = append(diags, fmt.Sprintf("pass %s: dropped finding: %v", p.Name, err))
			continue
		}
		out = append(out, f)
	}
	a.logger.DebugContext(ctx, "pass finished", "pass", p.Name, "findings", len(out))
	return out, diags
}
