package analysis

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/sizing"
)

// AnalyzeRunnerSizing turns sizer recommendations into findings
func AnalyzeRunnerSizing(d *dag.PipelineDag, sizer *sizing.Sizer, cfg Config) []finding.Finding {
	var findings []finding.Finding

	for _, job := range d.Jobs() {
		secs := cfg.jobSecs(job)
		rec, ok := sizer.Recommend(d.Provider(), job, secs)
		if !ok {
			continue
		}

		rationale := "no resource-heavy commands detected"
		if len(rec.Profile.Rationale) > 0 {
			rationale = strings.Join(rec.Profile.Rationale, "; ")
		}
		fix := sizing.SuggestLabel(d.Provider(), job.RunsOn, rec.Recommended)

		switch rec.Direction() {
		case sizing.Upsize:
			findings = append(findings, finding.Finding{
				Severity: domain.SeverityMedium,
				Category: domain.CategoryRunnerSizing,
				Title:    fmt.Sprintf("Job %q is under-provisioned (%s runner, %s recommended)", job.ID, rec.Current, rec.Recommended),
				Description: fmt.Sprintf("Job %q on %q shows cpu %.0f, memory %.0f, io %.0f pressure: %s.",
					job.ID, job.RunsOn, rec.Profile.CPU, rec.Profile.Memory, rec.Profile.IO, rationale),
				AffectedJobs:         []string{job.ID},
				Recommendation:       fmt.Sprintf("Move the job to a %s runner to relieve the bottleneck.", rec.Recommended),
				FixCommand:           fix,
				EstimatedSavingsSecs: finding.Savings(max(secs*0.18, 30)),
				Confidence:           finding.Confidence(rec.Confidence),
			})
		case sizing.Downsize:
			findings = append(findings, finding.Finding{
				Severity: domain.SeverityLow,
				Category: domain.CategoryRunnerSizing,
				Title:    fmt.Sprintf("Job %q is over-provisioned (%s runner, %s is enough)", job.ID, rec.Current, rec.Recommended),
				Description: fmt.Sprintf("Job %q on %q shows cpu %.0f, memory %.0f, io %.0f pressure: %s.",
					job.ID, job.RunsOn, rec.Profile.CPU, rec.Profile.Memory, rec.Profile.IO, rationale),
				AffectedJobs:         []string{job.ID},
				Recommendation:       fmt.Sprintf("A %s runner costs less per minute with little effect on duration.", rec.Recommended),
				FixCommand:           fix,
				EstimatedSavingsSecs: finding.Savings(max(secs*0.03, 10)),
				Confidence:           min(finding.Confidence(rec.Confidence), 0.4),
			})
		}
	}

	return findings
}
