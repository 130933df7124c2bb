// Package report holds the analysis output record and its serialized forms.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pipescope/internal/cost"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

// OptimizedFloor is the share of total duration assumed irreducible
const OptimizedFloor = 0.2

// idNamespace scopes deterministic report ids
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/felixgeelhaar/pipescope/report"))

// Summary provides aggregate statistics for a report
type Summary struct {
	TotalFindings    int     `json:"total_findings"`
	Critical         int     `json:"critical"`
	High             int     `json:"high"`
	Medium           int     `json:"medium"`
	Low              int     `json:"low"`
	AutoFixable      int     `json:"auto_fixable"`
	TotalSavingsSecs float64 `json:"total_savings_secs"`
}

// AnalysisReport is the ranked output of one analysis run
type AnalysisReport struct {
	ID                         string            `json:"id"`
	PipelineName               string            `json:"pipeline_name"`
	SourceFile                 string            `json:"source_file"`
	Provider                   domain.Provider   `json:"provider"`
	JobCount                   int               `json:"job_count"`
	StepCount                  int               `json:"step_count"`
	MaxParallelism             int               `json:"max_parallelism"`
	CriticalPath               []string          `json:"critical_path"`
	CriticalPathDurationSecs   float64           `json:"critical_path_duration_secs"`
	TotalEstimatedDurationSecs float64           `json:"total_estimated_duration_secs"`
	OptimizedDurationSecs      float64           `json:"optimized_duration_secs"`
	Findings                   []finding.Finding `json:"findings"`
	Summary                    Summary           `json:"summary"`
	Diagnostics                []string          `json:"diagnostics,omitempty"`
	Cost                       *cost.Result      `json:"cost,omitempty"`
}

// Summarize tallies findings
func Summarize(findings []finding.Finding) Summary {
	counts := finding.CountBySeverity(findings)
	s := Summary{
		TotalFindings:    len(findings),
		Critical:         counts[domain.SeverityCritical],
		High:             counts[domain.SeverityHigh],
		Medium:           counts[domain.SeverityMedium],
		Low:              counts[domain.SeverityLow],
		TotalSavingsSecs: finding.TotalSavings(findings),
	}
	for _, f := range findings {
		if f.AutoFixable {
			s.AutoFixable++
		}
	}
	return s
}

// OptimizedDuration applies the savings of findings to total, never going below
// OptimizedFloor of total.
func OptimizedDuration(total float64, findings []finding.Finding) float64 {
	if total <= 0 {
		return 0
	}
	return math.Max(total-finding.TotalSavings(findings), total*OptimizedFloor)
}

// Validate checks ordering and duration invariants
func (r *AnalysisReport) Validate() error {
	if !finding.IsSorted(r.Findings) {
		return fmt.Errorf("findings are not sorted by severity")
	}
	total := r.TotalEstimatedDurationSecs
	if r.OptimizedDurationSecs < 0 || r.OptimizedDurationSecs > total+1e-9 || r.OptimizedDurationSecs < total*OptimizedFloor-1e-9 {
		return fmt.Errorf("optimized duration %.1f outside [%.1f, %.1f]", r.OptimizedDurationSecs, total*OptimizedFloor, total)
	}
	return nil
}

// Clone returns a deep copy
func (r *AnalysisReport) Clone() *AnalysisReport {
	out := *r
	out.CriticalPath = append([]string(nil), r.CriticalPath...)
	out.Diagnostics = append([]string(nil), r.Diagnostics...)
	if r.Findings != nil {
		out.Findings = make([]finding.Finding, len(r.Findings))
		for i, f := range r.Findings {
			f.AffectedJobs = append([]string(nil), f.AffectedJobs...)
			if f.EstimatedSavingsSecs != nil {
				f.EstimatedSavingsSecs = finding.Savings(*f.EstimatedSavingsSecs)
			}
			out.Findings[i] = f
		}
	}
	if r.Cost != nil {
		c := *r.Cost
		out.Cost = &c
	}
	return &out
}

// Seal recomputes the deterministic id from the report content
func (r *AnalysisReport) Seal() error {
	id, err := DeriveID(r)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// DeriveID returns a UUIDv5 over the canonical form of r, ignoring r.ID
func DeriveID(r *AnalysisReport) (string, error) {
	body, err := Canonical(r)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(idNamespace, body).String(), nil
}

// Canonical returns the report as JSON with sorted keys and an empty id
func Canonical(r *AnalysisReport) ([]byte, error) {
	shallow := *r
	shallow.ID = ""
	return CanonicalJSON(&shallow)
}

// CanonicalJSON marshals v with object keys in sorted order at every level
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	// encoding/json writes map keys in sorted order
	return json.Marshal(generic)
}

// Save writes the report as indented JSON
func Save(r *AnalysisReport, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write report %s", path), err)
	}
	return nil
}

// Load reads a report written by Save
func Load(path string) (*AnalysisReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read report %s", path), err)
	}
	return Decode(data, path)
}

// Decode parses report JSON; source names the origin in errors
func Decode(data []byte, source string) (*AnalysisReport, error) {
	var r AnalysisReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.NewFileUnmarshalError(source, "JSON", err)
	}
	return &r, nil
}
