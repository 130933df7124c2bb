package domain

import (
	"fmt"
	"strings"
)

// Severity ranks how urgently a finding should be addressed.
// The zero value is not a valid severity.
type Severity int

// Severity levels, ordinal equals sort priority
const (
	SeverityLow      Severity = 1
	SeverityMedium   Severity = 2
	SeverityHigh     Severity = 3
	SeverityCritical Severity = 4
)

// Severities lists every severity from most to least urgent
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity parses a severity name (case-insensitive)
func ParseSeverity(value string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	default:
		return 0, fmt.Errorf("invalid severity %q: must be critical, high, medium, or low", value)
	}
}

// Validate checks if the severity is one of the defined levels
func (s Severity) Validate() error {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Errorf("invalid severity %d", int(s))
	}
	return nil
}

// Priority returns the numeric rank used for descending sorts (higher = more urgent)
func (s Severity) Priority() int {
	if s.Validate() != nil {
		return 0
	}
	return int(s)
}

// AtLeast reports whether s is as urgent as other or more
func (s Severity) AtLeast(other Severity) bool {
	return s.Priority() >= other.Priority()
}

// String returns the lowercase name
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name in JSON and YAML
func (s Severity) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
