package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

var (
	buildOrTest    = regexp.MustCompile(`(?i)\b(build|test|tests|compile|lint|vet|check|tsc|webpack|pytest|jest|vitest|rspec|phpunit|make|bazel|cargo|mvn|gradlew?)\b`)
	installCommand = regexp.MustCompile(`(?i)\b(install|ci|mod download|restore|fetch|setup)\b`)
	trivialCommand = regexp.MustCompile(`^(echo|cd|ls|pwd|export|set|env|cat|true|printenv)\b`)
	rarelyUseful   = regexp.MustCompile(`(?i)(bench|benchmark|e2e|end-to-end|nightly|docs|documentation|release)`)
	yarnInstall    = regexp.MustCompile(`\byarn install\b`)
)

type inefficiency struct {
	match          func(dag.StepInfo) bool
	title          string
	recommendation string
	fix            string
}

var inefficiencies = []inefficiency{
	{
		match:          runMatches(`\bnpm (install|i)\s*($|\n|&&|;)`),
		title:          "uses npm install instead of npm ci",
		recommendation: "npm ci installs the exact lockfile tree and skips dependency resolution.",
		fix:            "npm ci",
	},
	{
		match:          runMatches(`rm -rf\s+(\./)?(node_modules|vendor|\.venv|venv|target|\.gradle)\b`),
		title:          "wipes and reinstalls dependencies",
		recommendation: "Let the package manager update the existing tree incrementally and restore it from a cache.",
	},
	{
		match:          runMatches(`docker (buildx )?build[^\n]*--no-cache`),
		title:          "builds images with --no-cache",
		recommendation: "Drop --no-cache and reuse layers with --cache-from or a registry cache.",
	},
	{
		match: func(s dag.StepInfo) bool {
			return strings.HasPrefix(strings.ToLower(s.Uses), "actions/checkout") && s.With["fetch-depth"] == "0"
		},
		title:          "checks out the full git history",
		recommendation: "Use a shallow clone unless the job needs tags or history.",
		fix:            "fetch-depth: 1",
	},
	{
		match:          runMatches(`\bgo clean\b[^\n]*-modcache`),
		title:          "clears the Go module cache",
		recommendation: "Remove go clean -modcache; every later go command downloads all modules again.",
	},
	{
		match: func(s dag.StepInfo) bool {
			return yarnInstall.MatchString(s.Run) &&
				!strings.Contains(s.Run, "--frozen-lockfile") && !strings.Contains(s.Run, "--immutable")
		},
		title:          "runs yarn install without a frozen lockfile",
		recommendation: "Pin the lockfile so CI never re-resolves dependencies.",
		fix:            "yarn install --frozen-lockfile",
	},
}

func runMatches(pattern string) func(dag.StepInfo) bool {
	re := regexp.MustCompile(pattern)
	return func(s dag.StepInfo) bool {
		return s.Run != "" && re.MatchString(s.Run)
	}
}

// normalizeCommand collapses whitespace and drops blank and comment lines
func normalizeCommand(run string) string {
	var lines []string
	for _, line := range strings.Split(run, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// DetectWaste flags duplicated, dead and inefficient work
func DetectWaste(d *dag.PipelineDag, cfg Config) []finding.Finding {
	var findings []finding.Finding
	findings = append(findings, duplicateAcrossJobs(d, cfg)...)
	findings = append(findings, repeatedWithinJob(d, cfg)...)
	findings = append(findings, deadJobs(d, cfg)...)
	findings = append(findings, rarelyUsefulJobs(d, cfg)...)
	findings = append(findings, inefficientSteps(d, cfg)...)
	return findings
}

type occurrence struct {
	job  string
	step dag.StepInfo
}

func duplicateAcrossJobs(d *dag.PipelineDag, cfg Config) []finding.Finding {
	var order []string
	seen := make(map[string][]occurrence)

	for _, job := range d.Jobs() {
		inJob := make(map[string]bool)
		for _, step := range job.Steps {
			cmd := normalizeCommand(step.Run)
			if cmd == "" || inJob[cmd] || !buildOrTest.MatchString(cmd) || installCommand.MatchString(cmd) {
				continue
			}
			inJob[cmd] = true
			if _, ok := seen[cmd]; !ok {
				order = append(order, cmd)
			}
			seen[cmd] = append(seen[cmd], occurrence{job: job.ID, step: step})
		}
	}

	var findings []finding.Finding
	for _, cmd := range order {
		occ := seen[cmd]
		if len(occ) < 2 {
			continue
		}

		jobs := make([]string, len(occ))
		var savings float64
		timed := false
		for i, o := range occ {
			jobs[i] = o.job
			if i > 0 {
				savings += o.step.DurationSecs(cfg.DefaultStepSecs)
				timed = timed || cfg.timed(o.step)
			}
		}

		severity := domain.SeverityLow
		if savings >= cfg.DuplicateMediumSecs {
			severity = domain.SeverityMedium
		}
		var est *float64
		if timed {
			est = finding.Savings(savings)
		}

		label := occ[0].step.Label()
		findings = append(findings, finding.Finding{
			Severity:             severity,
			Category:             domain.CategoryWaste,
			Title:                fmt.Sprintf("%q runs in %d jobs", label, len(occ)),
			Description:          fmt.Sprintf("The command %q is repeated in jobs %s.", label, strings.Join(jobs, ", ")),
			AffectedJobs:         jobs,
			Recommendation:       fmt.Sprintf("Run it once in %q and share the result through artifacts or outputs.", jobs[0]),
			EstimatedSavingsSecs: est,
			Confidence:           0.55,
		})
	}
	return findings
}

func repeatedWithinJob(d *dag.PipelineDag, cfg Config) []finding.Finding {
	var findings []finding.Finding
	for _, job := range d.Jobs() {
		seen := make(map[string]bool)
		for _, step := range job.Steps {
			cmd := normalizeCommand(step.Run)
			if cmd == "" || trivialCommand.MatchString(cmd) {
				continue
			}
			if !seen[cmd] {
				seen[cmd] = true
				continue
			}

			var est *float64
			if cfg.timed(step) {
				est = finding.Savings(step.DurationSecs(cfg.DefaultStepSecs))
			}
			findings = append(findings, finding.Finding{
				Severity:             domain.SeverityLow,
				Category:             domain.CategoryWaste,
				Title:                fmt.Sprintf("Job %q runs %q twice", job.ID, step.Label()),
				Description:          fmt.Sprintf("Job %q repeats the command %q in a later step.", job.ID, step.Label()),
				AffectedJobs:         []string{job.ID},
				Recommendation:       "Remove the repeated step.",
				EstimatedSavingsSecs: est,
				Confidence:           0.7,
			})
		}
	}
	return findings
}

func isDead(condition string) bool {
	c := strings.ToLower(strings.Join(strings.Fields(condition), " "))
	switch c {
	case "false", "${{ false }}", "${{false}}", "never", "when: never":
		return true
	}
	return false
}

func deadJobs(d *dag.PipelineDag, cfg Config) []finding.Finding {
	var findings []finding.Finding
	for _, job := range d.Jobs() {
		if !isDead(job.Condition) {
			continue
		}
		var est *float64
		if cfg.jobTimed(job) {
			est = finding.Savings(cfg.jobSecs(job))
		}
		findings = append(findings, finding.Finding{
			Severity:             domain.SeverityLow,
			Category:             domain.CategoryWaste,
			Title:                fmt.Sprintf("Job %q can never run", job.ID),
			Description:          fmt.Sprintf("Job %q is disabled by its condition %q but is still parsed, scheduled and maintained.", job.ID, job.Condition),
			AffectedJobs:         []string{job.ID},
			Recommendation:       "Delete the job or move it to a manually triggered workflow.",
			EstimatedSavingsSecs: est,
			Confidence:           0.9,
		})
	}
	return findings
}

func rarelyUsefulJobs(d *dag.PipelineDag, cfg Config) []finding.Finding {
	if !d.HasTrigger("push") && !d.HasTrigger("pull_request") {
		return nil
	}

	var findings []finding.Finding
	for _, job := range d.Jobs() {
		if strings.TrimSpace(job.Condition) != "" {
			continue
		}
		if !rarelyUseful.MatchString(job.ID) && !rarelyUseful.MatchString(job.Name) {
			continue
		}
		secs := cfg.jobSecs(job)
		if secs < cfg.LongJobSecs {
			continue
		}
		findings = append(findings, finding.Finding{
			Severity:             domain.SeverityMedium,
			Category:             domain.CategoryWaste,
			Title:                fmt.Sprintf("Long job %q runs on every push", job.ID),
			Description:          fmt.Sprintf("Job %q takes about %s and runs unconditionally on push and pull request events.", job.ID, formatSecs(secs)),
			AffectedJobs:         []string{job.ID},
			Recommendation:       "Run it on a schedule, on the default branch only, or behind a path filter.",
			EstimatedSavingsSecs: finding.Savings(secs),
			Confidence:           0.5,
		})
	}
	return findings
}

func inefficientSteps(d *dag.PipelineDag, cfg Config) []finding.Finding {
	var findings []finding.Finding
	for _, job := range d.Jobs() {
		for _, step := range job.Steps {
			for _, ineff := range inefficiencies {
				if !ineff.match(step) {
					continue
				}
				var est *float64
				if cfg.timed(step) {
					est = finding.Savings(step.DurationSecs(cfg.DefaultStepSecs) * 0.3)
				}
				findings = append(findings, finding.Finding{
					Severity:             domain.SeverityLow,
					Category:             domain.CategoryWaste,
					Title:                fmt.Sprintf("Job %q %s", job.ID, ineff.title),
					Description:          fmt.Sprintf("Step %q in job %q %s.", step.Label(), job.ID, ineff.title),
					AffectedJobs:         []string{job.ID},
					Recommendation:       ineff.recommendation,
					FixCommand:           ineff.fix,
					EstimatedSavingsSecs: est,
					Confidence:           0.6,
					AutoFixable:          ineff.fix != "",
				})
			}
		}
	}
	return findings
}
