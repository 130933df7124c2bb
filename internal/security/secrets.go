package security

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/finding"
)

// SecretType represents the type of secret detected
type SecretType string

// Secret type constants define the credential shapes the scanner knows
const (
	SecretAWSKey        SecretType = "aws_access_key"
	SecretAWSSecret     SecretType = "aws_secret_key"
	SecretGitHubToken   SecretType = "github_token"
	SecretSlackToken    SecretType = "slack_token"
	SecretPrivateKey    SecretType = "private_key"
	SecretAPIKey        SecretType = "api_key"
	SecretPassword      SecretType = "password"
	SecretJWT           SecretType = "jwt_token"
	SecretDatabaseURL   SecretType = "database_url"
	SecretGenericSecret SecretType = "generic_secret"
)

// SecretPattern is one credential shape. Group is the submatch holding the
// secret itself; 0 means the whole match.
type SecretPattern struct {
	Type        SecretType
	Pattern     *regexp.Regexp
	Group       int
	Description string
}

// SecretMatch is a credential found on a line of the source file
type SecretMatch struct {
	Type        SecretType `json:"type"`
	Line        int        `json:"line"`
	Job         string     `json:"job,omitempty"`
	Match       string     `json:"match"`
	Description string     `json:"description"`
}

// DefaultSecretPatterns returns the built-in credential table
func DefaultSecretPatterns() []SecretPattern {
	return []SecretPattern{
		{
			Type:        SecretAWSKey,
			Pattern:     regexp.MustCompile(`\b(AKIA[0-9A-Z]{16})\b`),
			Group:       1,
			Description: "AWS Access Key ID",
		},
		{
			Type:        SecretAWSSecret,
			Pattern:     regexp.MustCompile(`(?i)aws[\w-]*secret[\w-]*\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
			Group:       1,
			Description: "AWS Secret Access Key",
		},
		{
			Type:        SecretGitHubToken,
			Pattern:     regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9_]{36,}|github_pat_[A-Za-z0-9_]{40,})\b`),
			Group:       1,
			Description: "GitHub token",
		},
		{
			Type:        SecretSlackToken,
			Pattern:     regexp.MustCompile(`xox[baprs]-[0-9]{10,12}-[0-9]{10,12}-[A-Za-z0-9]{24,}`),
			Description: "Slack token",
		},
		{
			Type:        SecretPrivateKey,
			Pattern:     regexp.MustCompile(`-----BEGIN\s+(RSA|DSA|EC|OPENSSH|PGP)\s+PRIVATE KEY-----`),
			Description: "Private key",
		},
		{
			Type:        SecretAPIKey,
			Pattern:     regexp.MustCompile(`(?i)api[\s_-]?key[\w-]*\s*[:=]\s*["']?([A-Za-z0-9_\-]{32,})["']?`),
			Group:       1,
			Description: "Generic API key",
		},
		{
			Type:        SecretPassword,
			Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)[\w-]*\s*[:=]\s*["']([^"'$\s]{8,})["']`),
			Group:       2,
			Description: "Password",
		},
		{
			Type:        SecretPassword,
			Pattern:     regexp.MustCompile(`(?i)--password[= ]["']?([^"'$\s][^"'\s]{7,})["']?`),
			Group:       1,
			Description: "Command-line password",
		},
		{
			Type:        SecretJWT,
			Pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`),
			Description: "JWT",
		},
		{
			Type:        SecretDatabaseURL,
			Pattern:     regexp.MustCompile(`(?i)(postgres|postgresql|mysql|mongodb(\+srv)?|redis|amqp)://[^\s'"/:@$]+:([^\s'"@$]+)@`),
			Group:       3,
			Description: "Connection string with credentials",
		},
		{
			Type:        SecretGenericSecret,
			Pattern:     regexp.MustCompile(`(?i)(secret|token)[\w-]*\s*[:=]\s*["']([A-Za-z0-9_\-+=/]{20,})["']`),
			Group:       2,
			Description: "Generic secret",
		},
	}
}

// ScanLines scans raw file contents line by line. Lines referencing a secret
// store (${{ secrets.X }}, $VAR) never match because the patterns exclude $.
func (s *Scanner) ScanLines(raw []byte) []SecretMatch {
	var matches []SecretMatch
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for lineNum := 1; sc.Scan(); lineNum++ {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		for _, p := range s.patterns {
			loc := p.Pattern.FindStringSubmatchIndex(line)
			if loc == nil {
				continue
			}
			matches = append(matches, SecretMatch{
				Type:        p.Type,
				Line:        lineNum,
				Match:       redactMatch(line, loc, p.Group),
				Description: p.Description,
			})
			// One credential per line is enough to flag it
			break
		}
	}
	return matches
}

// redactMatch replaces the secret part of line with a marker
func redactMatch(line string, loc []int, group int) string {
	start, end := loc[0], loc[1]
	if 2*group+1 < len(loc) && loc[2*group] >= 0 {
		start, end = loc[2*group], loc[2*group+1]
	}
	return strings.TrimSpace(line[:start] + "***REDACTED***" + line[end:])
}

// credentialFindings turns line matches into findings, attributing each to
// the job whose step text contains the line.
func credentialFindings(d *dag.PipelineDag, matches []SecretMatch, lines []string) []finding.Finding {
	var findings []finding.Finding
	for _, m := range matches {
		jobs := []string{}
		if m.Line-1 < len(lines) {
			if job := owner(d, strings.TrimSpace(lines[m.Line-1])); job != "" {
				jobs = append(jobs, job)
			}
		}
		where := fmt.Sprintf("line %d", m.Line)
		if len(jobs) > 0 {
			where = fmt.Sprintf("job %q (line %d)", jobs[0], m.Line)
		}
		findings = append(findings, finding.Finding{
			Severity:     domain.SeverityHigh,
			Category:     domain.CategorySecurity,
			Title:        fmt.Sprintf("%s hard-coded in %s", m.Description, where),
			Description:  fmt.Sprintf("The pipeline file contains a literal credential: %s. Anyone who can read the repository can use it.", m.Match),
			AffectedJobs: jobs,
			Recommendation: "Revoke the credential, store it in the provider's secret store and reference it " +
				"(${{ secrets.NAME }}, a masked CI/CD variable, a CircleCI context or a Buildkite secret).",
			Confidence: 0.8,
		})
	}
	return findings
}

// owner returns the first job with a step whose text contains line
func owner(d *dag.PipelineDag, line string) string {
	if d == nil || line == "" {
		return ""
	}
	// Strip a YAML key prefix such as "run: " so inline steps still match
	if _, value, ok := strings.Cut(line, ": "); ok {
		line = strings.TrimSpace(strings.Trim(value, `"'`))
	}
	line = strings.TrimPrefix(line, "- ")
	if line == "" {
		return ""
	}
	for _, job := range d.Jobs() {
		for _, s := range job.Steps {
			if strings.Contains(s.Run, line) {
				return job.ID
			}
			for _, v := range s.With {
				if strings.Contains(v, line) {
					return job.ID
				}
			}
		}
	}
	return ""
}
