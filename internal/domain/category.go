package domain

import "fmt"

// Category identifies the analyzer that produced a finding
type Category string

// Finding categories
const (
	CategoryCriticalPath    Category = "critical_path"
	CategoryMissingCache    Category = "missing_cache"
	CategoryParallelization Category = "parallelization"
	CategoryWaste           Category = "waste"
	CategoryRunnerSizing    Category = "runner_sizing"
	CategorySecurity        Category = "security"
	CategoryCustomPlugin    Category = "custom_plugin"
)

// Categories lists every category in analyzer run order
var Categories = []Category{
	CategoryCriticalPath,
	CategoryMissingCache,
	CategoryParallelization,
	CategoryWaste,
	CategoryRunnerSizing,
	CategorySecurity,
	CategoryCustomPlugin,
}

// Validate checks if the category is known
func (c Category) Validate() error {
	for _, known := range Categories {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("invalid category %q", string(c))
}

// RuleID is the stable identifier used for SARIF rules
func (c Category) RuleID() string {
	switch c {
	case CategoryCriticalPath:
		return "PS100"
	case CategoryMissingCache:
		return "PS200"
	case CategoryParallelization:
		return "PS300"
	case CategoryWaste:
		return "PS400"
	case CategoryRunnerSizing:
		return "PS500"
	case CategorySecurity:
		return "PS600"
	default:
		return "PS900"
	}
}

// String returns the string representation
func (c Category) String() string {
	return string(c)
}
