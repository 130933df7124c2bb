package ux

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/cost"
	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/history"
	"github.com/felixgeelhaar/pipescope/internal/lint"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

// ReportView renders an analysis report
type ReportView struct {
	Report *report.AnalysisReport
}

func (v ReportView) Data() any { return v.Report }

func (v ReportView) Render(s Styles) string {
	r := v.Report
	var b strings.Builder

	b.WriteString(s.Title.Render("Pipeline: "+r.PipelineName) + s.Muted.Render(" ("+r.Provider.DisplayName()+")") + "\n")
	field(&b, s, "Source", r.SourceFile)
	field(&b, s, "Report", r.ID)
	field(&b, s, "Jobs", fmt.Sprintf("%d jobs, %d steps, max parallelism %d", r.JobCount, r.StepCount, r.MaxParallelism))
	if len(r.CriticalPath) > 0 {
		field(&b, s, "Critical path", fmt.Sprintf("%s (%s)", strings.Join(r.CriticalPath, " → "), Duration(r.CriticalPathDurationSecs)))
	}
	field(&b, s, "Duration", fmt.Sprintf("%s, optimized %s", Duration(r.TotalEstimatedDurationSecs), Duration(r.OptimizedDurationSecs)))
	b.WriteString("\n")

	b.WriteString(FindingsView{Findings: r.Findings}.Render(s))

	if r.Cost != nil {
		b.WriteString("\n" + CostView{Result: *r.Cost}.Render(s))
	}
	if len(r.Diagnostics) > 0 {
		b.WriteString("\n" + s.Heading.Render("Diagnostics") + "\n")
		for _, d := range r.Diagnostics {
			b.WriteString("  " + s.Muted.Render(d) + "\n")
		}
	}

	sum := r.Summary
	b.WriteString(fmt.Sprintf("\n%d findings: %d critical, %d high, %d medium, %d low; %s potential savings\n",
		sum.TotalFindings, sum.Critical, sum.High, sum.Medium, sum.Low, Duration(sum.TotalSavingsSecs)))
	return b.String()
}

// FindingsView renders a ranked finding list
type FindingsView struct {
	Findings []finding.Finding
}

func (v FindingsView) Data() any {
	if v.Findings == nil {
		return []finding.Finding{}
	}
	return v.Findings
}

func (v FindingsView) Render(s Styles) string {
	if len(v.Findings) == 0 {
		return s.OK.Render("No findings") + "\n"
	}
	var b strings.Builder
	for i, f := range v.Findings {
		tag := s.Severity(f.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(f.Severity.String())))
		fmt.Fprintf(&b, "%d. %s %s %s\n", i+1, tag, f.Title, s.Muted.Render("("+string(f.Category)+")"))
		if len(f.AffectedJobs) > 0 {
			b.WriteString("   " + s.Label.Render("Jobs: ") + strings.Join(f.AffectedJobs, ", ") + "\n")
		}
		if f.Description != "" {
			b.WriteString(indent(f.Description, "   ") + "\n")
		}
		if f.Recommendation != "" {
			b.WriteString("   " + s.Label.Render("Fix: ") + f.Recommendation + "\n")
		}
		if f.FixCommand != "" {
			for _, line := range strings.Split(indent(f.FixCommand, "     "), "\n") {
				b.WriteString(s.Code.Render(line) + "\n")
			}
		}
		if f.EstimatedSavingsSecs != nil {
			b.WriteString("   " + s.Label.Render("Saves: ") + fmt.Sprintf("~%s (confidence %.0f%%)", Duration(*f.EstimatedSavingsSecs), f.Confidence*100) + "\n")
		}
	}
	return b.String()
}

// LintView renders a lint report
type LintView struct {
	Report *lint.LintReport
}

func (v LintView) Data() any { return v.Report }

func (v LintView) Render(s Styles) string {
	r := v.Report
	var b strings.Builder
	if r.SourceFile != "" {
		b.WriteString(s.Title.Render(r.SourceFile) + "\n")
	}
	if r.IsClean() {
		b.WriteString(s.OK.Render("No problems found") + "\n")
		return b.String()
	}
	for _, d := range r.Diagnostics {
		style := s.Low
		switch d.Level {
		case lint.LevelError:
			style = s.Critical
		case lint.LevelWarning:
			style = s.Medium
		}
		b.WriteString(style.Render(d.String()) + "\n")
	}
	fmt.Fprintf(&b, "\n%d problems (%d errors, %d warnings, %d info)\n", r.Summary.Total, r.Summary.Errors, r.Summary.Warnings, r.Summary.Info)
	return b.String()
}

// DagView renders a parsed pipeline graph layer by layer
type DagView struct {
	Dag *dag.PipelineDag
	// DefaultStepSecs fills steps without an estimate
	DefaultStepSecs float64
}

func (v DagView) Data() any { return v.Dag }

func (v DagView) Render(s Styles) string {
	d := v.Dag
	var b strings.Builder
	b.WriteString(s.Title.Render("Pipeline: "+d.Name()) + s.Muted.Render(" ("+d.Provider().DisplayName()+")") + "\n")
	if t := d.Triggers(); len(t) > 0 {
		field(&b, s, "Triggers", strings.Join(t, ", "))
	}
	field(&b, s, "Jobs", fmt.Sprintf("%d jobs, %d steps, max parallelism %d", d.JobCount(), d.StepCount(), d.MaxParallelism()))

	layers, err := d.Layers()
	if err != nil {
		b.WriteString(s.Critical.Render(err.Error()) + "\n")
		return b.String()
	}
	for i, layer := range layers {
		b.WriteString("\n" + s.Heading.Render(fmt.Sprintf("Layer %d", i+1)) + "\n")
		for _, idx := range layer {
			job := d.Job(idx)
			line := fmt.Sprintf("  %s %s", job.ID, s.Muted.Render(fmt.Sprintf("%d steps, %s", len(job.Steps), Duration(job.DurationSecs(v.DefaultStepSecs)))))
			if deps := d.IDs(d.Dependencies(idx)); len(deps) > 0 {
				line += s.Label.Render(" needs " + strings.Join(deps, ", "))
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// CostView renders a cost estimate
type CostView struct {
	Result cost.Result
}

func (v CostView) Data() any { return v.Result }

func (v CostView) Render(s Styles) string {
	c := v.Result
	var b strings.Builder
	b.WriteString(s.Heading.Render("Cost") + "\n")
	field(&b, s, "Runner", fmt.Sprintf("%s ($%.3f/min)", c.RunnerClass, c.RatePerMinute))
	field(&b, s, "Per run", fmt.Sprintf("$%.2f (optimized $%.2f)", c.CostPerRun, c.OptimizedCostPerRun))
	field(&b, s, "Monthly", fmt.Sprintf("$%.2f compute over %.0f runs, $%.2f saveable", c.MonthlyComputeCost, c.RunsPerMonth, c.MonthlyComputeSavings))
	field(&b, s, "Waiting", fmt.Sprintf("%.1f developer hours/month ($%.2f)", c.MonthlyDeveloperHoursLost, c.MonthlyOpportunityCost))
	field(&b, s, "Waste", fmt.Sprintf("%.0f%%", c.WasteRatio*100))
	return b.String()
}

// HistoryView renders recorded analyses
type HistoryView struct {
	Entries []history.Entry
}

func (v HistoryView) Data() any { return v.Entries }

func (v HistoryView) Render(s Styles) string {
	if len(v.Entries) == 0 {
		return s.Muted.Render("No recorded analyses") + "\n"
	}
	var b strings.Builder
	for _, e := range v.Entries {
		fmt.Fprintf(&b, "%s  %-20s %s  %s → %s  %d findings (%d critical, %d high)\n",
			s.Muted.Render(e.RecordedAt.Local().Format("2006-01-02 15:04")),
			e.Pipeline,
			s.Muted.Render(shortID(e.ReportID)),
			Duration(e.DurationSecs), Duration(e.OptimizedSecs),
			e.FindingCount, e.Critical, e.High)
	}
	return b.String()
}

// TrendView compares the two most recent analyses of a pipeline
type TrendView struct {
	Trend history.Trend
}

func (v TrendView) Data() any { return v.Trend }

func (v TrendView) Render(s Styles) string {
	t := v.Trend
	var b strings.Builder
	b.WriteString(s.Title.Render("Trend: "+t.Latest.Pipeline) + "\n")
	field(&b, s, "Previous", fmt.Sprintf("%s %s", t.Previous.RecordedAt.Local().Format("2006-01-02 15:04"), shortID(t.Previous.ReportID)))
	field(&b, s, "Latest", fmt.Sprintf("%s %s", t.Latest.RecordedAt.Local().Format("2006-01-02 15:04"), shortID(t.Latest.ReportID)))
	field(&b, s, "Duration", fmt.Sprintf("%s → %s (%s)", Duration(t.Previous.DurationSecs), Duration(t.Latest.DurationSecs), delta(s, t.DurationDeltaSecs)))
	field(&b, s, "Optimized", fmt.Sprintf("%s → %s (%s)", Duration(t.Previous.OptimizedSecs), Duration(t.Latest.OptimizedSecs), delta(s, t.OptimizedDeltaSecs)))
	field(&b, s, "Findings", fmt.Sprintf("%d → %d (%+d)", t.Previous.FindingCount, t.Latest.FindingCount, t.FindingDelta))
	return b.String()
}

// delta renders a duration change; slower is bad
func delta(s Styles, secs float64) string {
	switch {
	case secs > 0:
		return s.High.Render("+" + Duration(secs))
	case secs < 0:
		return s.OK.Render("-" + Duration(-secs))
	default:
		return s.Muted.Render("unchanged")
	}
}

// VerificationView renders the outcome of a signature check
type VerificationView struct {
	Valid    bool   `json:"valid"`
	KeyID    string `json:"key_id"`
	Digest   string `json:"digest"`
	ReportID string `json:"report_id,omitempty"`
	Pipeline string `json:"pipeline,omitempty"`
}

func (v VerificationView) Data() any { return v }

func (v VerificationView) Render(s Styles) string {
	var b strings.Builder
	if v.Valid {
		b.WriteString(s.OK.Render("✓ Signature valid") + "\n")
	} else {
		b.WriteString(s.Critical.Render("✗ Signature invalid") + "\n")
	}
	field(&b, s, "Key", v.KeyID)
	field(&b, s, "Digest", v.Digest)
	field(&b, s, "Report", v.ReportID)
	field(&b, s, "Pipeline", v.Pipeline)
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func field(b *strings.Builder, s Styles, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(s.Label.Render(fmt.Sprintf("%-16s", label+":")) + value + "\n")
}
