package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
)

func TestDetectMissingCaches(t *testing.T) {
	tests := []struct {
		name     string
		provider domain.Provider
		job      dag.JobNode
		want     int
	}{
		{
			name:     "npm install without cache",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "test", Steps: []dag.StepInfo{{Uses: "actions/checkout@v4"}, step("npm ci", 90), step("npm test", 60)}},
			want:     1,
		},
		{
			name:     "actions/cache present",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "test", Steps: []dag.StepInfo{{Uses: "actions/cache@v4"}, step("npm ci", 90)}},
		},
		{
			name:     "setup-node with cache input",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "test", Steps: []dag.StepInfo{{Uses: "actions/setup-node@v4", With: map[string]string{"cache": "npm"}}, step("npm ci", 90)}},
		},
		{
			name:     "setup-go v5 caches by default",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "build", Steps: []dag.StepInfo{{Uses: "actions/setup-go@v5"}, step("go build ./...", 120)}},
		},
		{
			name:     "setup-go v3 does not cache",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "build", Steps: []dag.StepInfo{{Uses: "actions/setup-go@v3"}, step("go build ./...", 120)}},
			want:     1,
		},
		{
			name:     "setup-go with cache disabled",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "build", Steps: []dag.StepInfo{{Uses: "actions/setup-go@v5", With: map[string]string{"cache": "false"}}, step("go build ./...", 120)}},
			want:     1,
		},
		{
			name:     "gitlab cache declaration",
			provider: domain.ProviderGitLabCI,
			job:      dag.JobNode{ID: "test", Caches: []string{".npm/"}, Steps: []dag.StepInfo{step("npm ci", 90)}},
		},
		{
			name:     "circleci restore_cache",
			provider: domain.ProviderCircleCI,
			job:      dag.JobNode{ID: "test", Steps: []dag.StepInfo{{Uses: "restore_cache"}, step("bundle install", 90)}},
		},
		{
			name:     "no install command",
			provider: domain.ProviderGitHubActions,
			job:      dag.JobNode{ID: "lint", Steps: []dag.StepInfo{step("echo hello", 1), step("yarn build", 20)}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := newDag(t, tt.provider, []dag.JobNode{tt.job})
			findings := DetectMissingCaches(d, DefaultConfig())
			assert.Len(t, findings, tt.want)
		})
	}
}

func TestDetectMissingCachesFinding(t *testing.T) {
	d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{
		{ID: "test", Steps: []dag.StepInfo{step("npm ci", 90), step("npm test", 60), step("pip install -r requirements.txt", 20)}},
	})

	findings := DetectMissingCaches(d, DefaultConfig())
	require.Len(t, findings, 1)
	f := findings[0]

	assert.Equal(t, domain.SeverityMedium, f.Severity)
	assert.Equal(t, domain.CategoryMissingCache, f.Category)
	assert.Equal(t, `Job "test" installs npm/pip dependencies without a cache`, f.Title)
	assert.Equal(t, 55.0, f.SavingsSecs())
	assert.Equal(t, 0.7, f.Confidence)
	assert.True(t, f.AutoFixable)
	assert.Contains(t, f.FixCommand, "actions/cache@v4")
	assert.Contains(t, f.FixCommand, "~/.npm")
	assert.Contains(t, f.FixCommand, "~/.cache/pip")
	assert.Contains(t, f.FixCommand, "hashFiles('**/package-lock.json')")
	assert.Contains(t, f.Recommendation, "actions/setup-node")
}

func TestDetectMissingCachesSeverityAndTiming(t *testing.T) {
	short := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{{ID: "a", Steps: []dag.StepInfo{step("go mod download", 20)}}})
	findings := DetectMissingCaches(short, DefaultConfig())
	require.Len(t, findings, 1)
	assert.Equal(t, domain.SeverityLow, findings[0].Severity)
	assert.Equal(t, 10.0, findings[0].SavingsSecs())

	untimed := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{{ID: "a", Steps: []dag.StepInfo{{Run: "go mod download"}}}})
	findings = DetectMissingCaches(untimed, DefaultConfig())
	require.Len(t, findings, 1)
	assert.Nil(t, findings[0].EstimatedSavingsSecs, "no timing data means no savings estimate")
}

func TestCacheSnippetsPerProvider(t *testing.T) {
	job := dag.JobNode{ID: "deps", Steps: []dag.StepInfo{step("npm ci", 90)}}

	gitlab := DetectMissingCaches(newDag(t, domain.ProviderGitLabCI, []dag.JobNode{job}), DefaultConfig())
	require.Len(t, gitlab, 1)
	assert.False(t, gitlab[0].AutoFixable)
	assert.Contains(t, gitlab[0].FixCommand, "cache:")
	assert.Contains(t, gitlab[0].FixCommand, "- .npm/")

	circle := DetectMissingCaches(newDag(t, domain.ProviderCircleCI, []dag.JobNode{job}), DefaultConfig())
	require.Len(t, circle, 1)
	assert.Contains(t, circle[0].FixCommand, "restore_cache")
	assert.Contains(t, circle[0].FixCommand, `checksum "package-lock.json"`)

	bk := DetectMissingCaches(newDag(t, domain.ProviderBuildkite, []dag.JobNode{job}), DefaultConfig())
	require.Len(t, bk, 1)
	assert.Contains(t, bk[0].FixCommand, "cache#v1.3.0")
}

func TestActionMajor(t *testing.T) {
	assert.Equal(t, 4, actionMajor("actions/setup-go@v4"))
	assert.Equal(t, 5, actionMajor("actions/setup-go@v5.0.1"))
	assert.Equal(t, 0, actionMajor("actions/setup-go@main"))
	assert.Equal(t, 0, actionMajor("actions/setup-go"))
}
