package finding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/pipescope/internal/domain"
)

func f(sev domain.Severity, title string) Finding {
	return Finding{Severity: sev, Category: domain.CategoryWaste, Title: title}
}

func TestSortIsStableDescending(t *testing.T) {
	findings := []Finding{
		f(domain.SeverityLow, "low-1"),
		f(domain.SeverityHigh, "high-1"),
		f(domain.SeverityMedium, "medium-1"),
		f(domain.SeverityHigh, "high-2"),
		f(domain.SeverityCritical, "critical"),
		f(domain.SeverityLow, "low-2"),
	}

	Sort(findings)

	var titles []string
	for _, x := range findings {
		titles = append(titles, x.Title)
	}
	assert.Equal(t, []string{"critical", "high-1", "high-2", "medium-1", "low-1", "low-2"}, titles)
	assert.True(t, IsSorted(findings))
}

func TestSavingsHelpers(t *testing.T) {
	assert.Equal(t, 0.0, *Savings(-5))
	assert.Equal(t, 12.5, *Savings(12.5))

	findings := []Finding{
		{Severity: domain.SeverityLow, EstimatedSavingsSecs: Savings(10)},
		{Severity: domain.SeverityLow},
		{Severity: domain.SeverityHigh, EstimatedSavingsSecs: Savings(30)},
	}
	assert.Equal(t, 40.0, TotalSavings(findings))
	assert.Equal(t, 0.0, findings[1].SavingsSecs())

	counts := CountBySeverity(findings)
	assert.Equal(t, 2, counts[domain.SeverityLow])
	assert.Equal(t, 1, counts[domain.SeverityHigh])
	assert.Zero(t, counts[domain.SeverityCritical])

	assert.True(t, AnyAtOrAbove(findings, domain.SeverityHigh))
	assert.False(t, AnyAtOrAbove(findings, domain.SeverityCritical))
}

func TestConfidenceClamp(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(-1))
	assert.Equal(t, 1.0, Confidence(2))
	assert.Equal(t, 0.4, Confidence(0.4))
}

func TestValidate(t *testing.T) {
	good := Finding{Severity: domain.SeverityMedium, Category: domain.CategoryMissingCache, Title: "t", Confidence: 0.7}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Title = ""
	assert.Error(t, bad.Validate())

	bad = good
	neg := -1.0
	bad.EstimatedSavingsSecs = &neg
	assert.Error(t, bad.Validate())

	bad = good
	bad.Severity = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.Confidence = 1.5
	assert.Error(t, bad.Validate())
}

func TestAffectsAndFilter(t *testing.T) {
	x := Finding{AffectedJobs: []string{"build", "test"}}
	assert.True(t, x.Affects("test"))
	assert.False(t, x.Affects("deploy"))

	kept := Filter([]Finding{f(domain.SeverityLow, "a"), f(domain.SeverityHigh, "b")}, func(f Finding) bool {
		return f.Severity == domain.SeverityHigh
	})
	assert.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].Title)
}
