// Package redact produces shareable copies of analysis reports with secret
// names, credentials and internal hosts removed.
package redact

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

// Marker replaces removed text
const Marker = "[REDACTED]"

// DefaultAllowedHosts are public CI and code hosts whose URLs are kept.
// Subdomains of an allowed host are allowed too.
var DefaultAllowedHosts = []string{
	"github.com",
	"githubusercontent.com",
	"gitlab.com",
	"circleci.com",
	"buildkite.com",
	"docker.com",
	"docker.io",
	"npmjs.com",
	"pypi.org",
	"go.dev",
}

// Options controls redaction
type Options struct {
	AllowedHosts []string `yaml:"allowed_hosts" toml:"allowed_hosts" json:"allowed_hosts"`
	// KeepSourcePath disables source path truncation
	KeepSourcePath bool `yaml:"keep_source_path" toml:"keep_source_path" json:"keep_source_path"`
}

// DefaultOptions returns the built-in allow list
func DefaultOptions() Options {
	return Options{AllowedHosts: append([]string(nil), DefaultAllowedHosts...)}
}

var (
	credentialURL = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s:@'"]+:[^/\s@'"]+@`)
	secretRef     = regexp.MustCompile(`\bsecrets\.[A-Za-z_][A-Za-z0-9_-]*`)
	anyURL        = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s'"<>()\[\]{}]+`)
	keyValue      = regexp.MustCompile(`(?i)\b([\w.-]*(?:token|secret|password|passwd|pwd|api[_-]?key|access[_-]?key|private[_-]?key|credentials?)[\w.-]*)(\s*[:=]\s*)("[^"]*"|'[^']*'|[^\s,;]+)`)
)

// sourceRoots are the path fragments that start a CI configuration path
var sourceRoots = []string{".github/", ".gitlab/", ".gitlab-ci.", ".circleci/", ".buildkite/"}

// Report returns a redacted copy of r. Job ids and numbers are unchanged;
// the copy gets its own report id.
func Report(r *report.AnalysisReport, opts Options) (*report.AnalysisReport, error) {
	out := r.Clone()
	if !opts.KeepSourcePath {
		out.SourceFile = SourcePath(out.SourceFile)
	}
	for i := range out.Findings {
		f := &out.Findings[i]
		f.Title = Text(f.Title, opts)
		f.Description = Text(f.Description, opts)
		f.Recommendation = Text(f.Recommendation, opts)
		f.FixCommand = Text(f.FixCommand, opts)
	}
	for i, d := range out.Diagnostics {
		out.Diagnostics[i] = Text(d, opts)
	}
	if err := out.Seal(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAnalysisFailed, "failed to derive redacted report id", err)
	}
	return out, nil
}

// SourcePath keeps only the CI-config-relative suffix of a path, or the
// file name when no known root is present.
func SourcePath(path string) string {
	if path == "" {
		return ""
	}
	slashed := filepath.ToSlash(path)
	for _, root := range sourceRoots {
		if i := strings.LastIndex(slashed, root); i >= 0 {
			return slashed[i:]
		}
	}
	return filepath.Base(slashed)
}

// Text scrubs one free-text field
func Text(s string, opts Options) string {
	if s == "" {
		return s
	}
	s = anyURL.ReplaceAllStringFunc(s, func(raw string) string {
		if allowedURL(raw, opts.AllowedHosts) {
			return raw
		}
		return Marker
	})
	s = credentialURL.ReplaceAllString(s, "${1}"+Marker+"@")
	s = secretRef.ReplaceAllString(s, "secrets."+Marker)
	s = keyValue.ReplaceAllStringFunc(s, func(m string) string {
		parts := keyValue.FindStringSubmatch(m)
		value := strings.Trim(parts[3], `"'`)
		// Template references and earlier redactions are not literal secrets
		if strings.Contains(value, "${") || strings.Contains(value, "{{") || strings.HasPrefix(value, "$") || strings.Contains(value, Marker) {
			return m
		}
		return parts[1] + parts[2] + Marker
	})
	return s
}

func allowedURL(raw string, allowed []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && (host == a || strings.HasSuffix(host, "."+a)) {
			return true
		}
	}
	return false
}
