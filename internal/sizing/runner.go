package sizing

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/felixgeelhaar/pipescope/internal/domain"
)

// ParseRunnerClass maps a runner label (GitHub runs-on, GitLab tag, CircleCI
// resource_class, Buildkite queue) to a size class.
func ParseRunnerClass(provider domain.Provider, label string) (domain.SizeClass, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || strings.Contains(label, "${{") {
		return 0, false
	}

	tokens := strings.FieldsFunc(label, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, tok := range tokens {
		switch tok {
		case "xlarge", "2xlarge", "3xlarge", "4xlarge", "8xlarge":
			return domain.SizeXLarge, true
		case "large":
			return domain.SizeLarge, true
		case "medium":
			return domain.SizeMedium, true
		case "small", "micro":
			return domain.SizeSmall, true
		case "core", "cores", "cpu", "cpus", "vcpu", "vcpus":
			if i > 0 {
				if n, err := strconv.Atoi(tokens[i-1]); err == nil {
					return classForCores(n), true
				}
			}
		}
		if n, ok := coreSuffix(tok); ok {
			return classForCores(n), true
		}
	}

	// Standard GitHub-hosted images without a size suffix are the smallest tier
	if provider == domain.ProviderGitHubActions && len(tokens) > 0 {
		switch tokens[0] {
		case "ubuntu", "windows", "macos":
			return domain.SizeSmall, true
		}
	}
	return 0, false
}

// coreSuffix parses tokens like "16core" or "8cpu"
func coreSuffix(tok string) (int, bool) {
	for _, suffix := range []string{"cores", "core", "vcpus", "vcpu", "cpus", "cpu"} {
		if num, found := strings.CutSuffix(tok, suffix); found && num != "" {
			n, err := strconv.Atoi(num)
			return n, err == nil
		}
	}
	return 0, false
}

func classForCores(n int) domain.SizeClass {
	switch {
	case n <= 2:
		return domain.SizeSmall
	case n <= 4:
		return domain.SizeMedium
	case n <= 8:
		return domain.SizeLarge
	default:
		return domain.SizeXLarge
	}
}

// SuggestLabel returns the provider-native setting that selects class, keeping
// the operating system of the current label where the provider encodes it.
// The empty string means the provider has no conventional label.
func SuggestLabel(provider domain.Provider, current string, class domain.SizeClass) string {
	switch provider {
	case domain.ProviderGitHubActions:
		os := "ubuntu"
		for _, candidate := range []string{"windows", "macos"} {
			if strings.HasPrefix(strings.ToLower(current), candidate) {
				os = candidate
			}
		}
		if os == "macos" {
			switch class {
			case domain.SizeLarge:
				return "runs-on: macos-latest-large"
			case domain.SizeXLarge:
				return "runs-on: macos-latest-xlarge"
			default:
				return "runs-on: macos-latest"
			}
		}
		cores := map[domain.SizeClass]string{
			domain.SizeSmall:  "",
			domain.SizeMedium: "-4-cores",
			domain.SizeLarge:  "-8-cores",
			domain.SizeXLarge: "-16-cores",
		}
		return fmt.Sprintf("runs-on: %s-latest%s", os, cores[class])
	case domain.ProviderGitLabCI:
		return fmt.Sprintf("tags: [saas-linux-%s-amd64]", class)
	case domain.ProviderCircleCI:
		return fmt.Sprintf("resource_class: %s", class)
	default:
		return ""
	}
}
