package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/version"
)

// SARIF represents a SARIF 2.1.0 report structure
type SARIF struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []SARIFRun `json:"runs"`
}

// SARIFRun represents a single run in a SARIF report
type SARIFRun struct {
	Tool    SARIFTool     `json:"tool"`
	Results []SARIFResult `json:"results"`
}

// SARIFTool describes the tool that generated the report
type SARIFTool struct {
	Driver SARIFDriver `json:"driver"`
}

// SARIFDriver contains tool metadata
type SARIFDriver struct {
	Name            string      `json:"name"`
	InformationURI  string      `json:"informationUri,omitempty"`
	SemanticVersion string      `json:"semanticVersion,omitempty"`
	Rules           []SARIFRule `json:"rules,omitempty"`
}

// SARIFRule describes one finding category
type SARIFRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription SARIFMessage `json:"shortDescription"`
}

// SARIFResult represents a single finding
type SARIFResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level"` // "error", "warning", "note"
	Message    SARIFMessage    `json:"message"`
	Locations  []SARIFLocation `json:"locations,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

// SARIFMessage contains the finding message
type SARIFMessage struct {
	Text string `json:"text"`
}

// SARIFLocation describes where the finding occurred
type SARIFLocation struct {
	PhysicalLocation SARIFPhysicalLocation  `json:"physicalLocation"`
	LogicalLocations []SARIFLogicalLocation `json:"logicalLocations,omitempty"`
}

// SARIFPhysicalLocation provides file-level location
type SARIFPhysicalLocation struct {
	ArtifactLocation SARIFArtifactLocation `json:"artifactLocation"`
}

// SARIFArtifactLocation identifies the artifact
type SARIFArtifactLocation struct {
	URI string `json:"uri"`
}

// SARIFLogicalLocation names a job inside the pipeline file
type SARIFLogicalLocation struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

var ruleDescriptions = map[domain.Category]string{
	domain.CategoryCriticalPath:    "Critical path dominated by long or serial jobs",
	domain.CategoryMissingCache:    "Dependency install or build without a cache",
	domain.CategoryParallelization: "Jobs serialized without a data dependency",
	domain.CategoryWaste:           "Duplicated, dead or inefficient work",
	domain.CategoryRunnerSizing:    "Runner size does not match job pressure",
	domain.CategorySecurity:        "Injection or credential exposure risk",
	domain.CategoryCustomPlugin:    "Custom analyzer finding",
}

// ToSARIF converts a report to SARIF format
func (r *AnalysisReport) ToSARIF() *SARIF {
	var rules []SARIFRule
	for _, c := range domain.Categories {
		rules = append(rules, SARIFRule{
			ID:               c.RuleID(),
			Name:             string(c),
			ShortDescription: SARIFMessage{Text: ruleDescriptions[c]},
		})
	}

	return &SARIF{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Runs: []SARIFRun{
			{
				Tool: SARIFTool{
					Driver: SARIFDriver{
						Name:            version.Name,
						InformationURI:  "https://github.com/felixgeelhaar/pipescope",
						SemanticVersion: strings.TrimPrefix(version.Version, "v"),
						Rules:           rules,
					},
				},
				Results: convertFindingsToSARIF(r),
			},
		},
	}
}

// convertFindingsToSARIF converts findings to SARIF results
func convertFindingsToSARIF(r *AnalysisReport) []SARIFResult {
	results := []SARIFResult{}

	for _, f := range r.Findings {
		level := "note"
		switch f.Severity {
		case domain.SeverityCritical, domain.SeverityHigh:
			level = "error"
		case domain.SeverityMedium:
			level = "warning"
		}

		text := f.Title
		if f.Recommendation != "" {
			text += ". " + f.Recommendation
		}

		result := SARIFResult{
			RuleID:  f.Category.RuleID(),
			Level:   level,
			Message: SARIFMessage{Text: text},
			Properties: map[string]any{
				"severity":   f.Severity.String(),
				"confidence": f.Confidence,
			},
		}
		if f.EstimatedSavingsSecs != nil {
			result.Properties["estimatedSavingsSecs"] = *f.EstimatedSavingsSecs
		}

		if r.SourceFile != "" {
			loc := SARIFLocation{
				PhysicalLocation: SARIFPhysicalLocation{
					ArtifactLocation: SARIFArtifactLocation{URI: r.SourceFile},
				},
			}
			for _, job := range f.AffectedJobs {
				loc.LogicalLocations = append(loc.LogicalLocations, SARIFLogicalLocation{Name: job, Kind: "job"})
			}
			result.Locations = []SARIFLocation{loc}
		}

		results = append(results, result)
	}

	return results
}

// SaveSARIF writes a SARIF report to disk
func SaveSARIF(sarif *SARIF, path string) error {
	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal SARIF: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write SARIF file: %w", err)
	}

	return nil
}
