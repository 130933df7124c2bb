package analysis

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

// CriticalPath is the longest-duration dependency chain of a pipeline
type CriticalPath struct {
	Jobs         []dag.NodeIndex
	IDs          []string
	DurationSecs float64
}

// Contains reports whether idx is on the path
func (cp CriticalPath) Contains(idx dag.NodeIndex) bool {
	for _, j := range cp.Jobs {
		if j == idx {
			return true
		}
	}
	return false
}

// HasEdge reports whether from is immediately followed by to on the path
func (cp CriticalPath) HasEdge(from, to dag.NodeIndex) bool {
	for i := 1; i < len(cp.Jobs); i++ {
		if cp.Jobs[i-1] == from && cp.Jobs[i] == to {
			return true
		}
	}
	return false
}

// FindCriticalPath computes the weighted longest path through d. Among equal
// predecessor finish times the one declared first wins, and among equal
// path ends the job declared first wins.
func FindCriticalPath(d *dag.PipelineDag, defaultStepSecs float64) (CriticalPath, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return CriticalPath{}, err
	}
	n := d.JobCount()
	if n == 0 {
		return CriticalPath{}, nil
	}

	finish := make([]float64, n)
	prev := make([]dag.NodeIndex, n)
	for _, idx := range order {
		best, bestPred := 0.0, dag.NodeIndex(-1)
		for _, p := range d.Dependencies(idx) {
			if bestPred < 0 || finish[p] > best {
				best, bestPred = finish[p], p
			}
		}
		finish[idx] = best + d.Job(idx).DurationSecs(defaultStepSecs)
		prev[idx] = bestPred
	}

	end := dag.NodeIndex(0)
	for i := 1; i < n; i++ {
		if finish[i] > finish[end] {
			end = dag.NodeIndex(i)
		}
	}

	var path []dag.NodeIndex
	for cur := end; cur >= 0; cur = prev[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return CriticalPath{Jobs: path, IDs: d.IDs(path), DurationSecs: finish[end]}, nil
}

// AnalyzeCriticalPath flags long jobs on the path and fully serial pipelines
func AnalyzeCriticalPath(d *dag.PipelineDag, cp CriticalPath, cfg Config) []finding.Finding {
	var findings []finding.Finding

	for _, idx := range cp.Jobs {
		job := d.Job(idx)
		secs := cfg.jobSecs(job)
		if secs < cfg.LongJobSecs || cp.DurationSecs <= 0 {
			continue
		}

		share := secs / cp.DurationSecs
		severity := domain.SeverityMedium
		if share >= cfg.LongJobShare {
			severity = domain.SeverityHigh
		}

		findings = append(findings, finding.Finding{
			Severity: severity,
			Category: domain.CategoryCriticalPath,
			Title:    fmt.Sprintf("Job %q dominates the critical path", job.ID),
			Description: fmt.Sprintf("Job %q takes about %s, %.0f%% of the %s critical path. Every run of the pipeline waits for it.",
				job.ID, formatSecs(secs), share*100, formatSecs(cp.DurationSecs)),
			AffectedJobs:         []string{job.ID},
			Recommendation:       "Split the job into parallel jobs (shard tests with a matrix, separate build targets) or cache its inputs.",
			EstimatedSavingsSecs: finding.Savings(secs * cfg.SplitSavingsRatio),
			Confidence:           0.5,
		})
	}

	if len(cp.Jobs) >= cfg.MinSerialChain && d.MaxParallelism() == 1 {
		findings = append(findings, finding.Finding{
			Severity: domain.SeverityMedium,
			Category: domain.CategoryCriticalPath,
			Title:    fmt.Sprintf("Pipeline runs %d jobs strictly one after another", len(cp.Jobs)),
			Description: fmt.Sprintf("No two jobs can run at the same time; the chain %s has no parallel alternative.",
				strings.Join(cp.IDs, " -> ")),
			AffectedJobs:   append([]string(nil), cp.IDs...),
			Recommendation: "Review each dependency and let independent jobs (lint, unit tests, docs) start from the root.",
			Confidence:     0.6,
		})
	}

	return findings
}
