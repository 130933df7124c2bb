package ux

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/pipescope/internal/domain"
)

// Styles holds the lipgloss styles used by text views
type Styles struct {
	Title    lipgloss.Style
	Heading  lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Code     lipgloss.Style
	OK       lipgloss.Style
	Critical lipgloss.Style
	High     lipgloss.Style
	Medium   lipgloss.Style
	Low      lipgloss.Style
}

// NewStyles returns the default palette, or unstyled text when noColor is set
func NewStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Title: plain, Heading: plain, Label: plain, Muted: plain, Code: plain,
			OK: plain, Critical: plain, High: plain, Medium: plain, Low: plain,
		}
	}
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Heading:  lipgloss.NewStyle().Bold(true).Underline(true),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Code:     lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		OK:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Critical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		High:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		Medium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		Low:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
}

// Severity returns the style for sev
func (s Styles) Severity(sev domain.Severity) lipgloss.Style {
	switch sev {
	case domain.SeverityCritical:
		return s.Critical
	case domain.SeverityHigh:
		return s.High
	case domain.SeverityMedium:
		return s.Medium
	default:
		return s.Low
	}
}

// Duration formats seconds as a rounded Go duration ("17m15s")
func Duration(secs float64) string {
	return time.Duration(secs * float64(time.Second)).Round(time.Second).String()
}

// indent prefixes every line of text
func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
