package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
)

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, "go test ./...", normalizeCommand("  go   test ./...  \n"))
	assert.Equal(t, "make\nmake test", normalizeCommand("# build\nmake\n\n  make   test"))
	assert.Empty(t, normalizeCommand("# only a comment"))
}

func TestDuplicateAcrossJobs(t *testing.T) {
	jobs := func(n int) []dag.JobNode {
		var out []dag.JobNode
		for _, id := range []string{"linux", "mac", "windows"}[:n] {
			out = append(out, dag.JobNode{ID: id, Steps: []dag.StepInfo{step("npm ci", 60), step("go test ./...", 45)}})
		}
		return out
	}

	two := DetectWaste(newDag(t, domain.ProviderGitHubActions, jobs(2)), DefaultConfig())
	require.Len(t, two, 1, "install commands are not reported as duplicates")
	assert.Equal(t, `"go test ./..." runs in 2 jobs`, two[0].Title)
	assert.Equal(t, []string{"linux", "mac"}, two[0].AffectedJobs)
	assert.Equal(t, domain.SeverityLow, two[0].Severity)
	assert.Equal(t, 45.0, two[0].SavingsSecs())

	three := DetectWaste(newDag(t, domain.ProviderGitHubActions, jobs(3)), DefaultConfig())
	require.Len(t, three, 1)
	assert.Equal(t, domain.SeverityMedium, three[0].Severity)
	assert.Equal(t, 90.0, three[0].SavingsSecs())
}

func TestRepeatedWithinJob(t *testing.T) {
	d := newDag(t, domain.ProviderGitLabCI, []dag.JobNode{{
		ID: "build",
		Steps: []dag.StepInfo{
			step("make build", 100),
			step("echo done", 1),
			step("make  build", 80),
			step("echo done", 1),
		},
	}})

	findings := DetectWaste(d, DefaultConfig())
	require.Len(t, findings, 1)
	assert.Equal(t, `Job "build" runs "make  build" twice`, findings[0].Title)
	assert.Equal(t, 80.0, findings[0].SavingsSecs())
	assert.Equal(t, domain.SeverityLow, findings[0].Severity)
}

func TestDeadJobs(t *testing.T) {
	for _, cond := range []string{"false", "${{ false }}", "when: never", "  FALSE "} {
		t.Run(cond, func(t *testing.T) {
			j := timedJob("legacy", 120)
			j.Condition = cond
			findings := DetectWaste(newDag(t, domain.ProviderGitHubActions, []dag.JobNode{j}), DefaultConfig())
			require.Len(t, findings, 1)
			assert.Equal(t, `Job "legacy" can never run`, findings[0].Title)
			assert.Equal(t, 120.0, findings[0].SavingsSecs())
		})
	}

	j := timedJob("live", 120)
	j.Condition = "github.ref == 'refs/heads/main'"
	assert.Empty(t, DetectWaste(newDag(t, domain.ProviderGitHubActions, []dag.JobNode{j}), DefaultConfig()))
}

func TestRarelyUsefulJobs(t *testing.T) {
	e2e := timedJob("e2e", 900)

	d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{e2e, timedJob("unit", 900)})
	d.SetTriggers([]string{"push", "pull_request"})
	findings := DetectWaste(d, DefaultConfig())
	require.Len(t, findings, 1)
	assert.Equal(t, `Long job "e2e" runs on every push`, findings[0].Title)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
	assert.Equal(t, 900.0, findings[0].SavingsSecs())

	scheduled := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{e2e})
	scheduled.SetTriggers([]string{"schedule"})
	assert.Empty(t, DetectWaste(scheduled, DefaultConfig()))

	guarded := e2e
	guarded.Condition = "github.event_name == 'schedule'"
	g := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{guarded})
	g.SetTriggers([]string{"push"})
	assert.Empty(t, DetectWaste(g, DefaultConfig()))

	short := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{timedJob("docs", 60)})
	short.SetTriggers([]string{"push"})
	assert.Empty(t, DetectWaste(short, DefaultConfig()))
}

func TestInefficientSteps(t *testing.T) {
	tests := []struct {
		name    string
		step    dag.StepInfo
		title   string
		fix     string
		fixable bool
	}{
		{name: "npm install", step: step("npm install", 100), title: "uses npm install instead of npm ci", fix: "npm ci", fixable: true},
		{name: "wipe", step: step("rm -rf node_modules && npm ci", 100), title: "wipes and reinstalls dependencies"},
		{name: "docker", step: step("docker build --no-cache -t app .", 100), title: "builds images with --no-cache"},
		{name: "go clean", step: step("go clean -modcache", 100), title: "clears the Go module cache"},
		{name: "yarn", step: step("yarn install", 100), title: "runs yarn install without a frozen lockfile", fix: "yarn install --frozen-lockfile", fixable: true},
		{
			name:    "checkout",
			step:    dag.StepInfo{Uses: "actions/checkout@v4", With: map[string]string{"fetch-depth": "0"}, EstimatedDurationSecs: dag.Float(100)},
			title:   "checks out the full git history",
			fix:     "fetch-depth: 1",
			fixable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{{ID: "ci", Steps: []dag.StepInfo{tt.step}}})
			findings := DetectWaste(d, DefaultConfig())
			require.Len(t, findings, 1)
			f := findings[0]
			assert.Equal(t, `Job "ci" `+tt.title, f.Title)
			assert.Equal(t, tt.fix, f.FixCommand)
			assert.Equal(t, tt.fixable, f.AutoFixable)
			assert.Equal(t, 30.0, f.SavingsSecs())
			assert.Equal(t, domain.SeverityLow, f.Severity)
		})
	}

	clean := []dag.StepInfo{step("npm ci", 10), step("yarn install --frozen-lockfile", 10), step("docker build -t app .", 10)}
	d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{{ID: "ci", Steps: clean}})
	assert.Empty(t, DetectWaste(d, DefaultConfig()))
}

func TestDetectWasteFindingsAreValid(t *testing.T) {
	d := newDag(t, domain.ProviderGitHubActions, []dag.JobNode{
		{ID: "a", Steps: []dag.StepInfo{{Run: "npm install"}, {Run: "make test"}}},
		{ID: "b", Condition: "false", Steps: []dag.StepInfo{{Run: "make test"}}},
	})
	findings := DetectWaste(d, DefaultConfig())
	require.NotEmpty(t, findings)
	for _, f := range findings {
		assert.NoError(t, f.Validate())
		assert.Nil(t, f.EstimatedSavingsSecs, "untimed steps carry no estimate: %s", f.Title)
	}
}
