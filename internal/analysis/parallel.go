package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

var gatePattern = regexp.MustCompile(`(?i)(deploy|release|publish|promote|rollout|ship)`)

// artifact fetches: GitHub, CircleCI workspaces, Buildkite agent and plugin
var artifactFetch = regexp.MustCompile(`(?i)(download-artifact|attach_workspace|buildkite-agent artifact download|artifacts#|gh run download)`)

// FindParallelOpportunities flags direct dependencies that carry no data and
// only serialize the pipeline. Edges touching a critical-path job are left
// alone.
func FindParallelOpportunities(d *dag.PipelineDag, cp CriticalPath, cfg Config) []finding.Finding {
	var findings []finding.Finding

	for _, e := range d.Edges() {
		up, _ := d.Lookup(e.From)
		down, _ := d.Lookup(e.To)
		upJob, downJob := d.Job(up), d.Job(down)

		if cp.Contains(up) || cp.Contains(down) || isGate(downJob) || hasDataDependency(d.Provider(), upJob, downJob) {
			continue
		}
		if reachableWithout(d, up, down) {
			// another chain still orders the two jobs
			continue
		}

		shorter := min(cfg.jobSecs(upJob), cfg.jobSecs(downJob))
		ratio := 0.0
		if cp.DurationSecs > 0 {
			ratio = shorter / cp.DurationSecs
		}
		severity := domain.SeverityLow
		switch {
		case ratio >= 0.25:
			severity = domain.SeverityHigh
		case ratio >= 0.10:
			severity = domain.SeverityMedium
		}

		var savings *float64
		if shorter > 0 {
			savings = finding.Savings(shorter)
		}

		remaining := remainingDeps(d, down, up)
		findings = append(findings, finding.Finding{
			Severity: severity,
			Category: domain.CategoryParallelization,
			Title:    fmt.Sprintf("Job %q waits for %q without using its output", downJob.ID, upJob.ID),
			Description: fmt.Sprintf("%q depends on %q but downloads no artifact, output or workspace from it. The two jobs can run at the same time.",
				downJob.ID, upJob.ID),
			AffectedJobs:         []string{upJob.ID, downJob.ID},
			Recommendation:       fmt.Sprintf("Remove %q from the dependencies of %q.", upJob.ID, downJob.ID),
			FixCommand:           fmt.Sprintf("%s: [%s]", dependencyKey(d.Provider()), strings.Join(remaining, ", ")),
			EstimatedSavingsSecs: savings,
			Confidence:           0.6,
		})
	}

	return findings
}

func isGate(job dag.JobNode) bool {
	return gatePattern.MatchString(job.ID) || gatePattern.MatchString(job.Name) || gatePattern.MatchString(job.Stage)
}

func hasDataDependency(provider domain.Provider, up, down dag.JobNode) bool {
	if provider == domain.ProviderGitLabCI && len(up.Artifacts) > 0 {
		// GitLab hands artifacts of earlier jobs to later ones implicitly
		return true
	}

	outputsRef := "needs." + up.ID + ".outputs"
	if strings.Contains(down.Condition, outputsRef) {
		return true
	}

	for _, s := range down.Steps {
		if artifactFetch.MatchString(s.Uses) || artifactFetch.MatchString(s.Run) {
			return true
		}
		texts := []string{s.Run}
		for _, v := range s.With {
			texts = append(texts, v)
		}
		for _, text := range texts {
			if strings.Contains(text, outputsRef) {
				return true
			}
			for _, a := range up.Artifacts {
				if p := artifactPath(a); p != "" && strings.Contains(text, p) {
					return true
				}
			}
		}
	}
	return false
}

// artifactPath trims decoration from a declared path; very short paths are ignored
func artifactPath(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "./")
	p = strings.TrimSuffix(strings.TrimSuffix(p, "/**"), "/")
	if len(p) < 3 || strings.ContainsAny(p, "*?") {
		return ""
	}
	return p
}

// reachableWithout reports whether to is reachable from from without the direct edge
func reachableWithout(d *dag.PipelineDag, from, to dag.NodeIndex) bool {
	for _, next := range d.Dependents(from) {
		if next != to && d.Reachable(next, to) {
			return true
		}
	}
	return false
}

func remainingDeps(d *dag.PipelineDag, job, drop dag.NodeIndex) []string {
	var ids []string
	for _, p := range d.Dependencies(job) {
		if p != drop {
			ids = append(ids, d.Job(p).ID)
		}
	}
	return ids
}

func dependencyKey(provider domain.Provider) string {
	switch provider {
	case domain.ProviderCircleCI:
		return "requires"
	case domain.ProviderBuildkite:
		return "depends_on"
	default:
		return "needs"
	}
}
