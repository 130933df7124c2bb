package domain

import (
	"fmt"
	"strings"
)

// Provider tags the CI system a pipeline definition belongs to
type Provider string

// Supported providers
const (
	ProviderGitHubActions Provider = "github-actions"
	ProviderGitLabCI      Provider = "gitlab-ci"
	ProviderCircleCI      Provider = "circleci"
	ProviderBuildkite     Provider = "buildkite"
)

// Providers lists every supported provider
var Providers = []Provider{ProviderGitHubActions, ProviderGitLabCI, ProviderCircleCI, ProviderBuildkite}

// ParseProvider parses a provider tag, accepting a few common aliases
func ParseProvider(value string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "github-actions", "github", "gha", "actions":
		return ProviderGitHubActions, nil
	case "gitlab-ci", "gitlab":
		return ProviderGitLabCI, nil
	case "circleci", "circle":
		return ProviderCircleCI, nil
	case "buildkite", "bk":
		return ProviderBuildkite, nil
	default:
		return "", fmt.Errorf("unsupported provider %q: must be github-actions, gitlab-ci, circleci, or buildkite", value)
	}
}

// Validate checks if the provider is supported
func (p Provider) Validate() error {
	for _, known := range Providers {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("unsupported provider %q", string(p))
}

// DisplayName returns the product name
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGitHubActions:
		return "GitHub Actions"
	case ProviderGitLabCI:
		return "GitLab CI"
	case ProviderCircleCI:
		return "CircleCI"
	case ProviderBuildkite:
		return "Buildkite"
	default:
		return string(p)
	}
}

// String returns the string representation
func (p Provider) String() string {
	return string(p)
}
