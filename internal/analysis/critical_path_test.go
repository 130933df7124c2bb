package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

func TestFindCriticalPath(t *testing.T) {
	tests := []struct {
		name     string
		jobs     []dag.JobNode
		edges    []edge
		wantPath []string
		wantSecs float64
	}{
		{
			name:     "empty",
			wantPath: nil,
			wantSecs: 0,
		},
		{
			name:     "two job chain",
			jobs:     []dag.JobNode{timedJob("A", 100), timedJob("B", 50)},
			edges:    []edge{{"A", "B"}},
			wantPath: []string{"A", "B"},
			wantSecs: 150,
		},
		{
			name:     "independent tie picks declared first",
			jobs:     []dag.JobNode{timedJob("A", 80), timedJob("C", 80)},
			wantPath: []string{"A"},
			wantSecs: 80,
		},
		{
			name:     "longest branch wins",
			jobs:     []dag.JobNode{timedJob("build", 60), timedJob("unit", 30), timedJob("e2e", 300), timedJob("deploy", 20)},
			edges:    []edge{{"build", "unit"}, {"build", "e2e"}, {"unit", "deploy"}, {"e2e", "deploy"}},
			wantPath: []string{"build", "e2e", "deploy"},
			wantSecs: 380,
		},
		{
			name:     "equal predecessors pick declared first",
			jobs:     []dag.JobNode{timedJob("x", 10), timedJob("y", 10), timedJob("z", 5)},
			edges:    []edge{{"y", "z"}, {"x", "z"}},
			wantPath: []string{"x", "z"},
			wantSecs: 15,
		},
		{
			name:     "missing durations count as zero",
			jobs:     []dag.JobNode{{ID: "a", Steps: []dag.StepInfo{{Run: "make"}}}, timedJob("b", 5)},
			edges:    []edge{{"a", "b"}},
			wantPath: []string{"a", "b"},
			wantSecs: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDag(t, domain.ProviderGitHubActions, tt.jobs, tt.edges...)

			cp, err := FindCriticalPath(d, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, cp.IDs)
			assert.Equal(t, tt.wantSecs, cp.DurationSecs)
		})
	}
}

func TestFindCriticalPathScenarioParallelism(t *testing.T) {
	chain := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("A", 100), timedJob("B", 50)}, edge{"A", "B"})
	assert.Equal(t, 1, chain.MaxParallelism())

	pair := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("A", 80), timedJob("C", 80)})
	assert.Equal(t, 2, pair.MaxParallelism())
}

func TestFindCriticalPathDefaultStepSecs(t *testing.T) {
	d := newDag(t, domain.ProviderGitLabCI, []dag.JobNode{
		{ID: "a", Steps: []dag.StepInfo{{Run: "make"}, {Run: "make test"}}},
		timedJob("b", 5),
	}, edge{"a", "b"})

	cp, err := FindCriticalPath(d, 30)
	require.NoError(t, err)
	assert.Equal(t, 65.0, cp.DurationSecs)
}

func TestFindCriticalPathCycle(t *testing.T) {
	d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("a", 1), timedJob("b", 1)}, edge{"a", "b"}, edge{"b", "a"})

	_, err := FindCriticalPath(d, 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDAGCycle))
}

func TestCriticalPathHelpers(t *testing.T) {
	cp := CriticalPath{Jobs: []dag.NodeIndex{0, 2, 3}}
	assert.True(t, cp.Contains(2))
	assert.False(t, cp.Contains(1))
	assert.True(t, cp.HasEdge(2, 3))
	assert.False(t, cp.HasEdge(0, 3))
}

func TestAnalyzeCriticalPath(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("dominant long job is high", func(t *testing.T) {
		d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("build", 100), timedJob("e2e", 900)}, edge{"build", "e2e"})
		cp, err := FindCriticalPath(d, 0)
		require.NoError(t, err)

		findings := AnalyzeCriticalPath(d, cp, cfg)
		require.Len(t, findings, 1)
		f := findings[0]
		assert.Equal(t, domain.SeverityHigh, f.Severity)
		assert.Equal(t, domain.CategoryCriticalPath, f.Category)
		assert.Equal(t, []string{"e2e"}, f.AffectedJobs)
		assert.Equal(t, 225.0, f.SavingsSecs())
		assert.Equal(t, 0.5, f.Confidence)
	})

	t.Run("long job with small share is medium", func(t *testing.T) {
		d := newDag(t, domain.ProviderGitHubActions,
			[]dag.JobNode{timedJob("a", 700), timedJob("b", 800)}, edge{"a", "b"})
		cp, err := FindCriticalPath(d, 0)
		require.NoError(t, err)

		findings := AnalyzeCriticalPath(d, cp, cfg)
		require.Len(t, findings, 2)
		assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
		assert.Equal(t, domain.SeverityHigh, findings[1].Severity)
	})

	t.Run("serial chain", func(t *testing.T) {
		d := newDag(t, domain.ProviderGitHubActions,
			[]dag.JobNode{timedJob("a", 10), timedJob("b", 10), timedJob("c", 10)}, edge{"a", "b"}, edge{"b", "c"})
		cp, err := FindCriticalPath(d, 0)
		require.NoError(t, err)

		findings := AnalyzeCriticalPath(d, cp, cfg)
		require.Len(t, findings, 1)
		assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
		assert.Nil(t, findings[0].EstimatedSavingsSecs)
		assert.Equal(t, []string{"a", "b", "c"}, findings[0].AffectedJobs)
	})

	t.Run("short parallel pipeline is clean", func(t *testing.T) {
		d := newDag(t, domain.ProviderGitHubActions,
			[]dag.JobNode{timedJob("a", 10), timedJob("b", 10), timedJob("c", 10)}, edge{"a", "c"})
		cp, err := FindCriticalPath(d, 0)
		require.NoError(t, err)
		assert.Empty(t, AnalyzeCriticalPath(d, cp, cfg))
	})
}
