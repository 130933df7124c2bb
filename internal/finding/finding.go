// Package finding defines the analyzer output value object.
package finding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/domain"
)

// Finding is one actionable observation produced by an analyzer
type Finding struct {
	Severity             domain.Severity `json:"severity"`
	Category             domain.Category `json:"category"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	AffectedJobs         []string        `json:"affected_jobs"`
	Recommendation       string          `json:"recommendation"`
	FixCommand           string          `json:"fix_command,omitempty"`
	EstimatedSavingsSecs *float64        `json:"estimated_savings_secs,omitempty"`
	Confidence           float64         `json:"confidence"`
	AutoFixable          bool            `json:"auto_fixable"`
}

// Savings returns a savings estimate, clamped at zero
func Savings(secs float64) *float64 {
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// Confidence clamps c to [0, 1]
func Confidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// SavingsSecs returns the savings estimate or 0 when there is none
func (f Finding) SavingsSecs() float64 {
	if f.EstimatedSavingsSecs == nil {
		return 0
	}
	return *f.EstimatedSavingsSecs
}

// Affects reports whether the finding names job id
func (f Finding) Affects(id string) bool {
	for _, j := range f.AffectedJobs {
		if j == id {
			return true
		}
	}
	return false
}

// Validate checks the value object invariants
func (f Finding) Validate() error {
	if err := f.Severity.Validate(); err != nil {
		return err
	}
	if err := f.Category.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("finding title cannot be empty")
	}
	if f.EstimatedSavingsSecs != nil && *f.EstimatedSavingsSecs < 0 {
		return fmt.Errorf("finding %q has negative savings %.1f", f.Title, *f.EstimatedSavingsSecs)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("finding %q confidence %.2f outside [0, 1]", f.Title, f.Confidence)
	}
	return nil
}

// Sort orders findings by descending severity priority. Equal severities keep their order.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Priority() > findings[j].Severity.Priority()
	})
}

// IsSorted reports whether findings are in non-increasing priority order
func IsSorted(findings []Finding) bool {
	for i := 1; i < len(findings); i++ {
		if findings[i].Severity.Priority() > findings[i-1].Severity.Priority() {
			return false
		}
	}
	return true
}

// TotalSavings sums the savings of every finding that carries one
func TotalSavings(findings []Finding) float64 {
	total := 0.0
	for _, f := range findings {
		total += f.SavingsSecs()
	}
	return total
}

// CountBySeverity tallies findings per severity
func CountBySeverity(findings []Finding) map[domain.Severity]int {
	counts := make(map[domain.Severity]int, len(domain.Severities))
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// AnyAtOrAbove reports whether some finding is at least as severe as threshold
func AnyAtOrAbove(findings []Finding, threshold domain.Severity) bool {
	for _, f := range findings {
		if f.Severity.AtLeast(threshold) {
			return true
		}
	}
	return false
}

// Filter returns the findings for which keep is true
func Filter(findings []Finding, keep func(Finding) bool) []Finding {
	var out []Finding
	for _, f := range findings {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
