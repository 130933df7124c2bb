package analysis

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/metrics"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

// fixture is a small but busy GitHub Actions pipeline
func fixture(t *testing.T) *dag.PipelineDag {
	t.Helper()
	build := dag.JobNode{ID: "build", RunsOn: "ubuntu-latest", Artifacts: []string{"dist/"}, Steps: []dag.StepInfo{
		{Uses: "actions/checkout@v4", EstimatedDurationSecs: dag.Float(5)},
		step("npm install", 90),
		step("npm run build", 120),
	}}
	lint := dag.JobNode{ID: "lint", RunsOn: "ubuntu-latest", Steps: []dag.StepInfo{
		step("npm ci", 90),
		step("npm run lint", 45),
	}}
	typecheck := dag.JobNode{ID: "typecheck", RunsOn: "ubuntu-latest", Steps: []dag.StepInfo{
		step("npx tsc --noEmit", 60),
	}}
	test := dag.JobNode{ID: "test", RunsOn: "ubuntu-latest", Steps: []dag.StepInfo{
		{Uses: "actions/download-artifact@v4"},
		step("npm ci", 90),
		step("npm test", 700),
	}}
	e2e := dag.JobNode{ID: "e2e", RunsOn: "ubuntu-latest", Steps: []dag.StepInfo{
		step("npx playwright test --workers 4", 650),
	}}
	deploy := dag.JobNode{ID: "deploy", RunsOn: "ubuntu-latest", Condition: "github.ref == 'refs/heads/main'", Steps: []dag.StepInfo{
		step("./deploy.sh", 30),
	}}

	d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{build, lint, typecheck, test, e2e, deploy},
		edge{"build", "lint"}, edge{"lint", "typecheck"}, edge{"build", "test"}, edge{"build", "e2e"}, edge{"test", "deploy"}, edge{"e2e", "deploy"})
	d.SetTriggers([]string{"push", "pull_request"})
	return d
}

func TestAnalyzeReport(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	r, err := a.Analyze(context.Background(), fixture(t))
	require.NoError(t, err)

	assert.Equal(t, "ci", r.PipelineName)
	assert.Equal(t, domain.ProviderGitHubActions, r.Provider)
	assert.Equal(t, 6, r.JobCount)
	assert.Equal(t, 11, r.StepCount)
	assert.Equal(t, 3, r.MaxParallelism)
	assert.Equal(t, []string{"build", "test", "deploy"}, r.CriticalPath)
	assert.Equal(t, 1035.0, r.CriticalPathDurationSecs)
	assert.Equal(t, r.CriticalPathDurationSecs, r.TotalEstimatedDurationSecs)
	assert.Empty(t, r.Diagnostics)
	assert.NotEmpty(t, r.ID)

	require.NoError(t, r.Validate())
	assert.True(t, finding.IsSorted(r.Findings))
	assert.Equal(t, report.OptimizedDuration(r.TotalEstimatedDurationSecs, r.Findings), r.OptimizedDurationSecs)
	assert.Equal(t, len(r.Findings), r.Summary.TotalFindings)

	categories := make(map[domain.Category]bool)
	for _, f := range r.Findings {
		categories[f.Category] = true
	}
	for _, c := range []domain.Category{
		domain.CategoryCriticalPath,
		domain.CategoryMissingCache,
		domain.CategoryParallelization,
		domain.CategoryWaste,
		domain.CategoryRunnerSizing,
	} {
		assert.True(t, categories[c], "expected a %s finding", c)
	}
}

func TestAnalyzeTiesKeepPassOrder(t *testing.T) {
	r, err := NewAnalyzer(DefaultConfig()).Analyze(context.Background(), fixture(t))
	require.NoError(t, err)

	rank := map[domain.Category]int{
		domain.CategoryCriticalPath:    0,
		domain.CategoryMissingCache:    1,
		domain.CategoryParallelization: 2,
		domain.CategoryWaste:           3,
		domain.CategoryRunnerSizing:    4,
	}
	for i := 1; i < len(r.Findings); i++ {
		prev, cur := r.Findings[i-1], r.Findings[i]
		if prev.Severity == cur.Severity {
			assert.LessOrEqual(t, rank[prev.Category], rank[cur.Category], "%q before %q", prev.Title, cur.Title)
		}
	}
}

func TestAnalyzeConcurrentMatchesSequential(t *testing.T) {
	seq, err := NewAnalyzer(DefaultConfig()).Analyze(context.Background(), fixture(t))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		par, err := NewAnalyzer(DefaultConfig(), WithConcurrency(true)).Analyze(context.Background(), fixture(t))
		require.NoError(t, err)
		assert.Equal(t, seq, par)
	}
}

func TestAnalyzeIsolatesFailingPasses(t *testing.T) {
	extra := finding.Finding{
		Severity:   domain.SeverityCritical,
		Category:   domain.CategoryCustomPlugin,
		Title:      "custom",
		Confidence: 3,
	}
	a := NewAnalyzer(DefaultConfig(),
		WithPass("boom", func(Input) []finding.Finding { panic("kaboom") }),
		WithPass("invalid", func(Input) []finding.Finding { return []finding.Finding{{Title: "no severity"}} }),
		WithPass("custom", func(Input) []finding.Finding { return []finding.Finding{extra} }),
		WithConcurrency(true),
	)

	r, err := a.Analyze(context.Background(), fixture(t))
	require.NoError(t, err)

	require.Len(t, r.Diagnostics, 2)
	assert.Equal(t, "pass boom failed: kaboom", r.Diagnostics[0])
	assert.Contains(t, r.Diagnostics[1], "pass invalid: dropped finding")

	require.NotEmpty(t, r.Findings)
	assert.Equal(t, "custom", r.Findings[0].Title)
	assert.Equal(t, 1.0, r.Findings[0].Confidence, "confidence is clamped")
	assert.Greater(t, len(r.Findings), 1, "built-in passes still report")
}

func TestAnalyzeRecordsMetrics(t *testing.T) {
	_, m := metrics.NewRegistry()
	a := NewAnalyzer(DefaultConfig(),
		WithPass("boom", func(Input) []finding.Finding { panic("kaboom") }),
		WithMetrics(m),
	)

	d := fixture(t)
	r, err := a.Analyze(context.Background(), d)
	require.NoError(t, err)

	provider := string(d.Provider())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues(provider, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassFailures.WithLabelValues("boom")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PassFailures.WithLabelValues("cache")))
	assert.Equal(t, r.CriticalPathDurationSecs, testutil.ToFloat64(m.CriticalPath.WithLabelValues(r.PipelineName)))
	assert.Equal(t, len(a.Passes()), testutil.CollectAndCount(m.PassDuration))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, fixture(t))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues(provider, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("unknown")))
}

func TestAnalyzeOptimizedFloor(t *testing.T) {
	huge := func(in Input) []finding.Finding {
		return []finding.Finding{{
			Severity:             domain.SeverityLow,
			Category:             domain.CategoryCustomPlugin,
			Title:                "everything",
			EstimatedSavingsSecs: finding.Savings(1e9),
		}}
	}
	r, err := NewAnalyzer(DefaultConfig(), WithPass("huge", huge)).Analyze(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.2*r.TotalEstimatedDurationSecs, r.OptimizedDurationSecs, 1e-9)
}

func TestAnalyzeScenarios(t *testing.T) {
	chain := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("A", 100), timedJob("B", 50)}, edge{"A", "B"})
	r, err := NewAnalyzer(DefaultConfig()).Analyze(context.Background(), chain)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, r.CriticalPath)
	assert.Equal(t, 150.0, r.CriticalPathDurationSecs)
	assert.Equal(t, 1, r.MaxParallelism)

	pair := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("A", 80), timedJob("C", 80)})
	r, err = NewAnalyzer(DefaultConfig()).Analyze(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, r.CriticalPath)
	assert.Equal(t, 80.0, r.CriticalPathDurationSecs)
	assert.Equal(t, 2, r.MaxParallelism)
}

func TestAnalyzeEmptyPipeline(t *testing.T) {
	r, err := NewAnalyzer(DefaultConfig()).Analyze(context.Background(), dag.New("empty", "ci.yml", domain.ProviderBuildkite))
	require.NoError(t, err)
	assert.Equal(t, []string{}, r.CriticalPath)
	assert.Zero(t, r.CriticalPathDurationSecs)
	assert.Zero(t, r.OptimizedDurationSecs)
	assert.Empty(t, r.Findings)
}

func TestAnalyzeErrors(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	cyclic := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("a", 1), timedJob("b", 1)}, edge{"a", "b"}, edge{"b", "a"})
	_, err := a.Analyze(context.Background(), cyclic)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDAGCycle))

	_, err = a.Analyze(context.Background(), nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAnalysisFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, fixture(t))
	assert.ErrorIs(t, err, context.Canceled)

	bad := DefaultConfig()
	bad.LongJobShare = 2
	_, err = NewAnalyzer(bad).Analyze(context.Background(), fixture(t))
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestPassesOrder(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), WithPass("security", func(Input) []finding.Finding { return nil }))
	var names []string
	for _, p := range a.Passes() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"critical-path", "cache", "parallel", "waste", "runner-sizing", "security"}, names)
}
