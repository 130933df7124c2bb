// Package security finds pipeline risks that static analysis can prove:
// shell injection through untrusted event data and literal credentials.
package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

var (
	expression = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)

	// untrustedContext matches event fields an outside contributor controls
	untrustedContext = regexp.MustCompile(`(?i)\bgithub\.(head_ref|event\.(` +
		`issue\.(title|body)` +
		`|pull_request\.(title|body|head\.(ref|label|repo\.default_branch))` +
		`|comment\.body|review\.body|review_comment\.body` +
		`|discussion\.(title|body)` +
		`|pages\.[^.\s]+\.page_name` +
		`|commits(\[[^\]]*\]|\.[^.\s]+)\.(message|author\.(email|name))` +
		`|head_commit\.(message|author\.(email|name))` +
		`|workflow_run\.(head_branch|head_commit\.message|display_title)` +
		`))\b`)

	headRef = regexp.MustCompile(`(?i)github\.(event\.pull_request\.head\.(sha|ref)|head_ref)`)
)

// Scanner checks pipelines for security risks
type Scanner struct {
	patterns []SecretPattern
}

// NewScanner creates a scanner with the default credential table
func NewScanner() *Scanner {
	return &Scanner{patterns: DefaultSecretPatterns()}
}

// AddPattern extends the credential table
func (s *Scanner) AddPattern(p SecretPattern) {
	s.patterns = append(s.patterns, p)
}

// Scan returns security findings for d. raw is the source file and may be
// nil, in which case credentials are searched in step text only.
func (s *Scanner) Scan(d *dag.PipelineDag, raw []byte) []finding.Finding {
	if d == nil {
		return nil
	}
	var findings []finding.Finding
	if d.Provider() == domain.ProviderGitHubActions {
		findings = append(findings, injectionFindings(d)...)
		findings = append(findings, pullRequestTargetFindings(d)...)
	}

	if raw == nil {
		raw = []byte(stepText(d))
	}
	lines := strings.Split(string(raw), "\n")
	findings = append(findings, credentialFindings(d, s.ScanLines(raw), lines)...)
	return findings
}

func stepText(d *dag.PipelineDag) string {
	var b strings.Builder
	for _, job := range d.Jobs() {
		for _, st := range job.Steps {
			if st.Run != "" {
				b.WriteString(st.Run)
				b.WriteByte('\n')
			}
			keys := make([]string, 0, len(st.With))
			for k := range st.With {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "%s: %s\n", k, st.With[k])
			}
		}
	}
	return b.String()
}

// UntrustedExpressions returns the untrusted ${{ }} expressions in text, in
// order of appearance and without duplicates.
func UntrustedExpressions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range expression.FindAllStringSubmatch(text, -1) {
		if !untrustedContext.MatchString(m[1]) || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// injectionFindings flags run steps, and github-script inputs, that expand
// attacker-controlled expressions directly into code.
func injectionFindings(d *dag.PipelineDag) []finding.Finding {
	var findings []finding.Finding
	for _, job := range d.Jobs() {
		for i, st := range job.Steps {
			code := st.Run
			kind := "shell command"
			if code == "" && strings.HasPrefix(strings.ToLower(st.Uses), "actions/github-script@") {
				code = st.With["script"]
				kind = "github-script"
			}
			exprs := UntrustedExpressions(code)
			if len(exprs) == 0 {
				continue
			}

			label := st.Label()
			if label == "" {
				label = fmt.Sprintf("step %d", i+1)
			}
			findings = append(findings, finding.Finding{
				Severity: domain.SeverityCritical,
				Category: domain.CategorySecurity,
				Title:    fmt.Sprintf("Job %q expands untrusted input into a %s", job.ID, kind),
				Description: fmt.Sprintf("Step %q interpolates %s. The value is substituted before the %s runs, so a crafted "+
					"title, branch name or comment executes as code with the job's token.",
					label, quoteAll(exprs), kind),
				AffectedJobs:   []string{job.ID},
				Recommendation: "Pass the value through an environment variable and reference it quoted, e.g. env: TITLE: " + "${{ " + exprs[0] + " }} then \"$TITLE\".",
				Confidence:     0.9,
			})
		}
	}
	return findings
}

// pullRequestTargetFindings flags pull_request_target workflows that check
// out the untrusted head revision.
func pullRequestTargetFindings(d *dag.PipelineDag) []finding.Finding {
	if !d.HasTrigger("pull_request_target") {
		return nil
	}
	var findings []finding.Finding
	for _, job := range d.Jobs() {
		for _, st := range job.Steps {
			if !strings.HasPrefix(strings.ToLower(st.Uses), "actions/checkout@") || !headRef.MatchString(st.With["ref"]) {
				continue
			}
			findings = append(findings, finding.Finding{
				Severity: domain.SeverityHigh,
				Category: domain.CategorySecurity,
				Title:    fmt.Sprintf("Job %q checks out pull request code under pull_request_target", job.ID),
				Description: "pull_request_target runs with a write token and repository secrets. Checking out " +
					"the pull request head lets its build scripts run with those privileges.",
				AffectedJobs: []string{job.ID},
				Recommendation: "Use the pull_request trigger for untrusted code, or split the workflow so the privileged " +
					"part only consumes artifacts from an unprivileged run.",
				Confidence: 0.75,
			})
			break
		}
	}
	return findings
}

func quoteAll(exprs []string) string {
	quoted := make([]string, len(exprs))
	for i, e := range exprs {
		quoted[i] = "${{ " + e + " }}"
	}
	return strings.Join(quoted, ", ")
}
