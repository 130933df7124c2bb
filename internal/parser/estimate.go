package parser

import (
	"regexp"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
)

// Heuristic step durations in seconds. They only rank jobs against each
// other; they are not predictions.
const (
	EstimateCheckout    = 5
	EstimateSetup       = 15
	EstimateInstall     = 90
	EstimateBuild       = 120
	EstimateTest        = 180
	EstimateLint        = 45
	EstimateDockerBuild = 240
	EstimateOtherRun    = 20
	EstimateOtherUses   = 10
)

type estimateRule struct {
	kind string
	re   *regexp.Regexp
	secs float64
}

// Checked in order; the first match wins
var estimateRules = []estimateRule{
	{"docker-build", regexp.MustCompile(`(?i)(docker (buildx )?build|docker/build-push-action|kaniko|buildah bud|docker-compose build|docker-buildkit)`), EstimateDockerBuild},
	{"test", regexp.MustCompile(`(?i)\b(go test|pytest|jest|vitest|mocha|npm (run )?test|yarn test|pnpm test|cargo test|mvn (verify|test)|gradlew? (test|check)|rspec|phpunit|dotnet test|tox|cypress|playwright)\b`), EstimateTest},
	{"build", regexp.MustCompile(`(?i)\b(go build|cargo build|make\b|cmake|bazel build|mvn (package|install)|gradlew? (build|assemble)|dotnet build|npm run build|yarn build|pnpm build|tsc\b|webpack|vite build|next build|xcodebuild)`), EstimateBuild},
	{"install", regexp.MustCompile(`(?i)(npm (ci|install|i)\b|yarn( install)?\s*$|yarn install|pnpm (install|i)\b|pip3? install|poetry install|pipenv install|bundle install|go mod download|composer install|cargo fetch|apt-get install|brew install|node/install-packages)`), EstimateInstall},
	{"lint", regexp.MustCompile(`(?i)\b(lint|eslint|golangci-lint|flake8|ruff|pylint|rubocop|prettier|gofmt|go vet|shellcheck|hadolint|stylelint|clippy)\b`), EstimateLint},
}

var (
	checkoutStep = regexp.MustCompile(`(?i)(^actions/checkout@|^checkout$|^\s*git (clone|fetch|checkout)\b)`)
	setupStep    = regexp.MustCompile(`(?i)(/setup-|^setup_remote_docker$|/install@|^[a-z0-9-]+/(install|setup)\b)`)
)

// EstimateStep returns the heuristic duration for a step
func EstimateStep(s dag.StepInfo) float64 {
	uses := strings.TrimSpace(s.Uses)
	run := strings.TrimSpace(s.Run)

	if checkoutStep.MatchString(uses) || (run != "" && checkoutStep.MatchString(run) && !strings.Contains(run, "\n")) {
		return EstimateCheckout
	}
	for _, rule := range estimateRules {
		if (run != "" && rule.re.MatchString(run)) || (uses != "" && rule.re.MatchString(uses)) {
			return rule.secs
		}
	}
	if uses != "" && setupStep.MatchString(uses) {
		return EstimateSetup
	}
	if run != "" {
		return EstimateOtherRun
	}
	return EstimateOtherUses
}

// EstimateSteps fills in durations for steps that have none
func EstimateSteps(steps []dag.StepInfo) {
	for i := range steps {
		if steps[i].EstimatedDurationSecs == nil {
			steps[i].EstimatedDurationSecs = dag.Float(EstimateStep(steps[i]))
		}
	}
}
