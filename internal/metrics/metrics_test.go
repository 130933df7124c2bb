package metrics

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

func sampleReport() *report.AnalysisReport {
	findings := []finding.Finding{
		{Severity: domain.SeverityHigh, Category: domain.CategoryMissingCache, Title: "a"},
		{Severity: domain.SeverityHigh, Category: domain.CategoryMissingCache, Title: "b"},
		{Severity: domain.SeverityLow, Category: domain.CategorySecurity, Title: "c"},
	}
	return &report.AnalysisReport{
		PipelineName:             "CI",
		Provider:                 domain.ProviderGitHubActions,
		JobCount:                 4,
		CriticalPathDurationSecs: 300,
		OptimizedDurationSecs:    200,
		Findings:                 findings,
		Summary:                  report.Summarize(findings),
	}
}

func TestObserveReport(t *testing.T) {
	_, m := NewRegistry()

	m.ObserveReport(sampleReport(), 20*time.Millisecond)

	if got := testutil.ToFloat64(m.Analyses.WithLabelValues("github-actions", "ok")); got != 1 {
		t.Errorf("analyses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Findings.WithLabelValues("high", string(domain.CategoryMissingCache))); got != 2 {
		t.Errorf("high caching findings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CriticalPath.WithLabelValues("CI")); got != 300 {
		t.Errorf("critical path = %v, want 300", got)
	}
	if got := testutil.ToFloat64(m.OptimizedPath.WithLabelValues("CI")); got != 200 {
		t.Errorf("optimized = %v, want 200", got)
	}
	if got := testutil.CollectAndCount(m.AnalysisDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestObservePass(t *testing.T) {
	_, m := NewRegistry()

	m.ObservePass("caching", time.Millisecond, false)
	m.ObservePass("security", time.Millisecond, true)

	if got := testutil.ToFloat64(m.PassFailures.WithLabelValues("security")); got != 1 {
		t.Errorf("security failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.PassDuration); got != 2 {
		t.Errorf("pass duration series = %d, want 2", got)
	}
}

func TestObserveErrors(t *testing.T) {
	_, m := NewRegistry()

	m.ObserveFailure("gitlab-ci", errors.NewCycleError([]string{"a", "b"}))
	m.ObserveError(stderrors.New("plain"))
	m.ObserveWatchRun(nil)
	m.ObserveWatchRun(stderrors.New("boom"))

	if got := testutil.ToFloat64(m.Errors.WithLabelValues("DAG-001")); got != 1 {
		t.Errorf("DAG-001 errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Analyses.WithLabelValues("gitlab-ci", "error")); got != 1 {
		t.Errorf("failed analyses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WatchRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("failed watch runs = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObservePass("x", time.Second, true)
	m.ObserveReport(sampleReport(), time.Second)
	m.ObserveFailure("x", stderrors.New("x"))
	m.ObserveWatchRun(nil)
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.ObserveReport(sampleReport(), time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "pipescope_findings_total") {
		t.Error("metrics output does not contain pipescope_findings_total")
	}
}

func TestWriteTextfile(t *testing.T) {
	reg, m := NewRegistry()
	m.ObserveReport(sampleReport(), time.Millisecond)

	path := filepath.Join(t.TempDir(), "pipescope.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `pipescope_critical_path_seconds{pipeline="CI"} 300`) {
		t.Errorf("textfile missing critical path gauge:\n%s", data)
	}
}
