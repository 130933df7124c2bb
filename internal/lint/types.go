// Package lint checks CI configuration files for mistakes that parse but
// misbehave: stray keys, unpinned actions, deprecated commands.
package lint

import (
	"fmt"
	"sort"
)

// Level is the weight of a diagnostic
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Diagnostic codes
const (
	CodeYAMLSyntax        = "LINT000"
	CodeTabIndent         = "LINT001"
	CodeUnknownKey        = "LINT002"
	CodeNoSteps           = "LINT003"
	CodeUnpinned          = "LINT004"
	CodeBranchPinned      = "LINT005"
	CodeDeprecatedAction  = "LINT006"
	CodeDeprecatedCommand = "LINT007"
	CodeNoTimeout         = "LINT008"
)

// Diagnostic is one lint result
type Diagnostic struct {
	Code       string `json:"code"`
	Level      Level  `json:"level"`
	Message    string `json:"message"`
	Job        string `json:"job,omitempty"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// String renders the diagnostic in file:line form
func (d Diagnostic) String() string {
	loc := ""
	if d.Line > 0 {
		loc = fmt.Sprintf("line %d: ", d.Line)
	}
	s := fmt.Sprintf("%s%s [%s] %s", loc, d.Level, d.Code, d.Message)
	if d.Suggestion != "" {
		s += " (" + d.Suggestion + ")"
	}
	return s
}

// Summary counts diagnostics per level
type Summary struct {
	Total    int `json:"total"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// LintReport is the outcome of linting one file
type LintReport struct {
	SourceFile  string       `json:"source_file"`
	Provider    string       `json:"provider"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Summary     Summary      `json:"summary"`
}

func newReport(source, provider string, diags []Diagnostic) *LintReport {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Code < diags[j].Code
	})
	if diags == nil {
		diags = []Diagnostic{}
	}

	r := &LintReport{SourceFile: source, Provider: provider, Diagnostics: diags}
	r.Summary.Total = len(diags)
	for _, d := range diags {
		switch d.Level {
		case LevelError:
			r.Summary.Errors++
		case LevelWarning:
			r.Summary.Warnings++
		case LevelInfo:
			r.Summary.Info++
		}
	}
	return r
}

// HasErrors returns true if the report contains any error-level diagnostics
func (r *LintReport) HasErrors() bool {
	return r.Summary.Errors > 0
}

// HasWarnings returns true if the report contains any warning-level diagnostics
func (r *LintReport) HasWarnings() bool {
	return r.Summary.Warnings > 0
}

// IsClean returns true if the report has no diagnostics
func (r *LintReport) IsClean() bool {
	return r.Summary.Total == 0
}

// ExitCode maps the verdict to a process exit code: 0 clean, 1 warnings or
// info only, 2 errors.
func (r *LintReport) ExitCode() int {
	switch {
	case r.HasErrors():
		return 2
	case r.Summary.Total > 0:
		return 1
	default:
		return 0
	}
}
