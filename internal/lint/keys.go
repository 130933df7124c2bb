package lint

import "github.com/felixgeelhaar/pipescope/internal/domain"

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// topLevelKeys lists the keys each provider accepts at the document root.
// GitLab is absent: any top-level key may be a job.
var topLevelKeys = map[domain.Provider]map[string]bool{
	domain.ProviderGitHubActions: set("name", "run-name", "on", "permissions", "env", "defaults", "concurrency", "jobs"),
	domain.ProviderCircleCI:      set("version", "setup", "orbs", "parameters", "executors", "commands", "jobs", "workflows"),
	domain.ProviderBuildkite:     set("steps", "env", "agents", "notify", "priority", "secrets", "image"),
}

// gitlabGlobalKeys are the GitLab keywords valid at the root besides jobs
var gitlabGlobalKeys = set("default", "include", "stages", "variables", "workflow", "image", "services",
	"cache", "before_script", "after_script", "spec")

// jobKeys lists the keys each provider accepts inside a job
var jobKeys = map[domain.Provider]map[string]bool{
	domain.ProviderGitHubActions: set("name", "needs", "permissions", "runs-on", "environment", "concurrency",
		"outputs", "env", "defaults", "if", "steps", "timeout-minutes", "strategy", "continue-on-error",
		"container", "services", "uses", "with", "secrets"),
	domain.ProviderGitLabCI: set("script", "before_script", "after_script", "stage", "image", "services", "tags",
		"needs", "dependencies", "rules", "when", "only", "except", "artifacts", "cache", "variables", "extends",
		"environment", "allow_failure", "timeout", "retry", "parallel", "trigger", "coverage", "interruptible",
		"resource_group", "release", "inherit", "id_tokens", "secrets", "pages", "hooks", "run",
		"manual_confirmation", "identity", "start_in", "dast_configuration"),
	domain.ProviderCircleCI: set("docker", "machine", "macos", "executor", "resource_class", "steps",
		"environment", "working_directory", "parallelism", "shell", "parameters", "circleci_ip_ranges", "type",
		"retention"),
	domain.ProviderBuildkite: set("label", "name", "key", "id", "identifier", "command", "commands", "plugins",
		"agents", "artifact_paths", "depends_on", "if", "env", "timeout_in_minutes", "retry", "soft_fail",
		"parallelism", "concurrency", "concurrency_group", "concurrency_method", "skip", "allow_dependency_failure",
		"branches", "cancel_on_build_failing", "priority", "matrix", "notify", "trigger", "build", "async", "wait",
		"waiter", "block", "input", "group", "steps", "fields", "prompt", "continue_on_failure", "blocked_state",
		"signature", "image"),
}

// githubStepKeys lists the keys accepted inside a GitHub Actions step
var githubStepKeys = set("id", "if", "name", "uses", "run", "shell", "with", "env", "continue-on-error",
	"timeout-minutes", "working-directory")

// deprecatedMajors maps an action to the lowest major that is still supported
var deprecatedMajors = map[string]int{
	"actions/checkout":          3,
	"actions/setup-node":        3,
	"actions/setup-python":      4,
	"actions/setup-go":          4,
	"actions/setup-java":        3,
	"actions/cache":             3,
	"actions/upload-artifact":   4,
	"actions/download-artifact": 4,
	"actions/github-script":     6,
	"docker/build-push-action":  4,
	"docker/login-action":       2,
}

// branchRefs are refs that move under the pipeline
var branchRefs = set("main", "master", "develop", "dev", "trunk", "latest", "head", "volatile", "edge", "nightly")
