package parser

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// DetectProvider infers the CI provider from the conventional file location,
// falling back to the shape of the document.
func DetectProvider(path string, root *yaml.Node) (domain.Provider, error) {
	if p, ok := providerFromPath(path); ok {
		return p, nil
	}
	if p, ok := providerFromContent(resolve(root)); ok {
		return p, nil
	}
	return "", errors.NewUnknownProviderError(path)
}

func providerFromPath(path string) (domain.Provider, bool) {
	slashed := filepath.ToSlash(path)
	base := strings.ToLower(filepath.Base(slashed))

	switch {
	case strings.Contains(slashed, ".github/workflows/"):
		return domain.ProviderGitHubActions, true
	case base == ".gitlab-ci.yml" || base == ".gitlab-ci.yaml" || strings.Contains(slashed, ".gitlab/ci/"):
		return domain.ProviderGitLabCI, true
	case strings.Contains(slashed, ".circleci/"):
		return domain.ProviderCircleCI, true
	case strings.Contains(slashed, ".buildkite/"):
		return domain.ProviderBuildkite, true
	}
	return "", false
}

func providerFromContent(root *yaml.Node) (domain.Provider, bool) {
	if root == nil || root.Kind != yaml.MappingNode {
		return "", false
	}

	// A top-level steps list is the Buildkite shape
	if isSeq(lookup(root, "steps")) {
		return domain.ProviderBuildkite, true
	}

	if jobs := lookup(root, "jobs"); isMap(jobs) {
		if has(root, "on") {
			return domain.ProviderGitHubActions, true
		}
		if has(root, "workflows") || has(root, "orbs") || has(root, "executors") {
			return domain.ProviderCircleCI, true
		}
		for _, p := range pairs(jobs) {
			if has(p.value, "runs-on") {
				return domain.ProviderGitHubActions, true
			}
			if has(p.value, "docker") || has(p.value, "machine") || has(p.value, "resource_class") {
				return domain.ProviderCircleCI, true
			}
		}
	}

	if has(root, "stages") {
		return domain.ProviderGitLabCI, true
	}
	for _, p := range pairs(root) {
		if has(p.value, "script") {
			return domain.ProviderGitLabCI, true
		}
	}
	return "", false
}

// Discover lists the CI configuration files under a repository root in
// conventional locations, sorted by path.
func Discover(root string) ([]string, error) {
	var found []string

	for _, name := range []string{".gitlab-ci.yml", ".gitlab-ci.yaml", ".circleci/config.yml", ".circleci/config.yaml"} {
		if fileExists(filepath.Join(root, name)) {
			found = append(found, filepath.Join(root, name))
		}
	}

	for _, dir := range []string{".github/workflows", ".buildkite"} {
		matches, err := yamlFiles(filepath.Join(root, dir))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to scan "+dir, err)
		}
		found = append(found, matches...)
	}

	sort.Strings(found)
	return found, nil
}

func yamlFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && stderrors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
