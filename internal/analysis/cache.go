package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

type ecosystem struct {
	name     string
	install  *regexp.Regexp
	paths    []string // home-relative cache paths
	local    []string // project-relative paths for providers that only cache inside the checkout
	lockFile string
	setup    string // setup action that can cache on its own
}

var ecosystems = []ecosystem{
	{
		name:     "npm",
		install:  regexp.MustCompile(`\bnpm (ci|install|i)\b`),
		paths:    []string{"~/.npm"},
		local:    []string{".npm/"},
		lockFile: "package-lock.json",
		setup:    "actions/setup-node (cache: npm)",
	},
	{
		name:     "yarn",
		install:  regexp.MustCompile(`\byarn( install)?\s*(--[a-z-]+\s*)*($|\n|&&|;)`),
		paths:    []string{"~/.cache/yarn"},
		local:    []string{".yarn-cache/"},
		lockFile: "yarn.lock",
		setup:    "actions/setup-node (cache: yarn)",
	},
	{
		name:     "pnpm",
		install:  regexp.MustCompile(`\bpnpm (install|i)\b`),
		paths:    []string{"~/.local/share/pnpm/store"},
		local:    []string{".pnpm-store/"},
		lockFile: "pnpm-lock.yaml",
		setup:    "actions/setup-node (cache: pnpm)",
	},
	{
		name:     "pip",
		install:  regexp.MustCompile(`\bpip3? install\b`),
		paths:    []string{"~/.cache/pip"},
		local:    []string{".pip-cache/"},
		lockFile: "requirements*.txt",
		setup:    "actions/setup-python (cache: pip)",
	},
	{
		name:     "poetry",
		install:  regexp.MustCompile(`\bpoetry install\b`),
		paths:    []string{"~/.cache/pypoetry"},
		local:    []string{".venv/"},
		lockFile: "poetry.lock",
		setup:    "actions/setup-python (cache: poetry)",
	},
	{
		name:     "pipenv",
		install:  regexp.MustCompile(`\bpipenv (install|sync)\b`),
		paths:    []string{"~/.cache/pipenv"},
		local:    []string{".venv/"},
		lockFile: "Pipfile.lock",
		setup:    "actions/setup-python (cache: pipenv)",
	},
	{
		name:     "go",
		install:  regexp.MustCompile(`\bgo (build|test|vet|install|mod download)\b`),
		paths:    []string{"~/go/pkg/mod", "~/.cache/go-build"},
		local:    []string{".go/pkg/mod/", ".go-build/"},
		lockFile: "go.sum",
		setup:    "actions/setup-go@v5 (caches by default)",
	},
	{
		name:     "maven",
		install:  regexp.MustCompile(`(\bmvn\b|\./mvnw\b)`),
		paths:    []string{"~/.m2/repository"},
		local:    []string{".m2/repository/"},
		lockFile: "pom.xml",
		setup:    "actions/setup-java (cache: maven)",
	},
	{
		name:     "gradle",
		install:  regexp.MustCompile(`(\bgradle\b|\./gradlew\b)`),
		paths:    []string{"~/.gradle/caches", "~/.gradle/wrapper"},
		local:    []string{".gradle/"},
		lockFile: "**/*.gradle*",
		setup:    "gradle/actions/setup-gradle",
	},
	{
		name:     "cargo",
		install:  regexp.MustCompile(`\bcargo (build|test|check|clippy|fetch)\b`),
		paths:    []string{"~/.cargo/registry", "~/.cargo/git", "target"},
		local:    []string{".cargo/", "target/"},
		lockFile: "Cargo.lock",
		setup:    "Swatinem/rust-cache",
	},
	{
		name:     "bundler",
		install:  regexp.MustCompile(`\bbundle install\b`),
		paths:    []string{"vendor/bundle"},
		local:    []string{"vendor/bundle/"},
		lockFile: "Gemfile.lock",
		setup:    "ruby/setup-ruby (bundler-cache: true)",
	},
	{
		name:     "composer",
		install:  regexp.MustCompile(`\bcomposer install\b`),
		paths:    []string{"~/.composer/cache"},
		local:    []string{".composer-cache/"},
		lockFile: "composer.lock",
	},
	{
		name:     "nuget",
		install:  regexp.MustCompile(`\bdotnet (restore|build|test)\b`),
		paths:    []string{"~/.nuget/packages"},
		local:    []string{".nuget/packages/"},
		lockFile: "**/packages.lock.json",
		setup:    "actions/setup-dotnet (cache: true)",
	},
}

// cachingUses names actions, orbs and plugins that cache on their own
var cachingUses = []string{
	"cache",                    // actions/cache, restore_cache, rust-cache, cache#v1 plugin
	"install-packages",         // node/python orbs
	"setup-gradle",             // gradle/actions
	"gradle-build-action",      // legacy gradle action
	"docker-layer-caching",     // CircleCI remote docker option
	"buildkite-plugins/docker", // plugin with shared volumes
}

func hasCacheMechanism(job dag.JobNode) bool {
	if len(job.Caches) > 0 {
		return true
	}
	for _, s := range job.Steps {
		uses := strings.ToLower(s.Uses)
		if uses == "" {
			continue
		}
		for _, marker := range cachingUses {
			if strings.Contains(uses, marker) {
				return true
			}
		}
		if v := s.With["cache"]; v != "" && v != "false" {
			return true
		}
		if s.With["bundler-cache"] == "true" {
			return true
		}
		if strings.HasPrefix(uses, "actions/setup-go@") && s.With["cache"] != "false" && actionMajor(uses) >= 4 {
			return true
		}
	}
	return false
}

// actionMajor returns the major version of owner/repo@vN refs, or 0
func actionMajor(uses string) int {
	_, ref, ok := strings.Cut(uses, "@")
	if !ok {
		return 0
	}
	ref = strings.TrimPrefix(ref, "v")
	major, _, _ := strings.Cut(ref, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// DetectMissingCaches flags jobs that install or build dependencies without any cache
func DetectMissingCaches(d *dag.PipelineDag, cfg Config) []finding.Finding {
	var findings []finding.Finding

	for _, job := range d.Jobs() {
		if len(job.Steps) == 0 || hasCacheMechanism(job) {
			continue
		}

		var matched []ecosystem
		var matchedSecs float64
		timed := false
		for _, step := range job.Steps {
			if step.Run == "" {
				continue
			}
			hit := false
			for _, eco := range ecosystems {
				if eco.install.MatchString(step.Run) {
					hit = true
					if !containsEcosystem(matched, eco.name) {
						matched = append(matched, eco)
					}
				}
			}
			if hit {
				matchedSecs += step.DurationSecs(cfg.DefaultStepSecs)
				timed = timed || cfg.timed(step)
			}
		}
		if len(matched) == 0 {
			continue
		}

		severity := domain.SeverityLow
		if matchedSecs >= cfg.CacheMediumSecs {
			severity = domain.SeverityMedium
		}

		var savings *float64
		if timed {
			savings = finding.Savings(matchedSecs * 0.5)
		}

		names := ecosystemNames(matched)
		findings = append(findings, finding.Finding{
			Severity: severity,
			Category: domain.CategoryMissingCache,
			Title:    fmt.Sprintf("Job %q installs %s dependencies without a cache", job.ID, strings.Join(names, "/")),
			Description: fmt.Sprintf("Job %q downloads or builds %s dependencies on every run and has no cache step or cache declaration.",
				job.ID, strings.Join(names, ", ")),
			AffectedJobs:         []string{job.ID},
			Recommendation:       cacheRecommendation(d.Provider(), matched),
			FixCommand:           cacheSnippet(d.Provider(), matched),
			EstimatedSavingsSecs: savings,
			Confidence:           0.7,
			AutoFixable:          d.Provider() == domain.ProviderGitHubActions,
		})
	}

	return findings
}

func containsEcosystem(list []ecosystem, name string) bool {
	for _, e := range list {
		if e.name == name {
			return true
		}
	}
	return false
}

func ecosystemNames(list []ecosystem) []string {
	names := make([]string, len(list))
	for i, e := range list {
		names[i] = e.name
	}
	return names
}

func cacheRecommendation(provider domain.Provider, matched []ecosystem) string {
	var paths []string
	for _, e := range matched {
		if provider == domain.ProviderGitLabCI || provider == domain.ProviderBuildkite {
			paths = append(paths, e.local...)
		} else {
			paths = append(paths, e.paths...)
		}
	}
	rec := fmt.Sprintf("Cache %s keyed on %s.", strings.Join(paths, ", "), matched[0].lockFile)
	if provider == domain.ProviderGitHubActions && matched[0].setup != "" {
		rec += fmt.Sprintf(" Alternatively use %s.", matched[0].setup)
	}
	return rec
}

func cacheSnippet(provider domain.Provider, matched []ecosystem) string {
	var b strings.Builder
	first := matched[0]
	key := strings.Join(ecosystemNames(matched), "-")

	switch provider {
	case domain.ProviderGitHubActions:
		b.WriteString("- uses: actions/cache@v4\n  with:\n    path: |\n")
		for _, e := range matched {
			for _, p := range e.paths {
				fmt.Fprintf(&b, "      %s\n", p)
			}
		}
		fmt.Fprintf(&b, "    key: ${{ runner.os }}-%s-${{ hashFiles('**/%s') }}\n", key, strings.TrimPrefix(first.lockFile, "**/"))
		fmt.Fprintf(&b, "    restore-keys: ${{ runner.os }}-%s-", key)

	case domain.ProviderGitLabCI:
		fmt.Fprintf(&b, "cache:\n  key:\n    files:\n      - %s\n  paths:\n", first.lockFile)
		for _, e := range matched {
			for _, p := range e.local {
				fmt.Fprintf(&b, "    - %s\n", p)
			}
		}
		return strings.TrimRight(b.String(), "\n")

	case domain.ProviderCircleCI:
		cacheKey := fmt.Sprintf("v1-%s-{{ checksum \"%s\" }}", key, first.lockFile)
		fmt.Fprintf(&b, "- restore_cache:\n    keys:\n      - %s\n", cacheKey)
		fmt.Fprintf(&b, "# install step\n- save_cache:\n    key: %s\n    paths:\n", cacheKey)
		for _, e := range matched {
			for _, p := range e.paths {
				fmt.Fprintf(&b, "      - %s\n", p)
			}
		}
		return strings.TrimRight(b.String(), "\n")

	case domain.ProviderBuildkite:
		b.WriteString("plugins:\n")
		for _, e := range matched {
			for _, p := range e.local {
				fmt.Fprintf(&b, "  - cache#v1.3.0:\n      path: %s\n      manifest: %s\n      restore: file\n      save: file\n", p, e.lockFile)
			}
		}
		return strings.TrimRight(b.String(), "\n")
	}

	return b.String()
}
