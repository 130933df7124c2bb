// Package parser turns provider-specific CI configuration files into the
// provider-neutral pipeline graph.
package parser

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// Options controls parsing
type Options struct {
	// Provider skips detection when set
	Provider domain.Provider
	// Name overrides the pipeline name taken from the file
	Name string
	// NoEstimates leaves step durations unset instead of applying the
	// heuristic table
	NoEstimates bool
}

// draft is what a provider parser produces before graph assembly
type draft struct {
	name     string
	triggers []string
	jobs     []dag.JobNode
	// needs maps a job id to the ids it waits for, in declared order
	needs map[string][]string
}

func newDraft(name string) *draft {
	return &draft{name: name, needs: make(map[string][]string)}
}

func (d *draft) addJob(job dag.JobNode) {
	d.jobs = append(d.jobs, job)
}

func (d *draft) need(job string, deps ...string) {
	for _, dep := range deps {
		if dep == "" || contains(d.needs[job], dep) {
			continue
		}
		d.needs[job] = append(d.needs[job], dep)
	}
}

func (d *draft) hasJob(id string) bool {
	for _, j := range d.jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

type parseFunc func(path string, root *yaml.Node) (*draft, error)

var parsers = map[domain.Provider]parseFunc{
	domain.ProviderGitHubActions: parseGitHub,
	domain.ProviderGitLabCI:      parseGitLab,
	domain.ProviderCircleCI:      parseCircleCI,
	domain.ProviderBuildkite:     parseBuildkite,
}

// Parse builds a validated pipeline graph from the contents of a CI file.
// path is used for provider detection and naming only.
func Parse(path string, data []byte, opts Options) (*dag.PipelineDag, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseInvalidYAML, fmt.Sprintf("invalid YAML in %s", path), err).
			WithSuggestion("Check indentation; YAML does not allow tabs")
	}

	provider := opts.Provider
	if provider == "" {
		detected, err := DetectProvider(path, &root)
		if err != nil {
			return nil, err
		}
		provider = detected
	}
	if err := provider.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseUnknownProvider, "unsupported provider", err)
	}

	if !isMap(&root) {
		return nil, errors.NewInvalidPipelineError(provider.DisplayName(), "top level must be a mapping")
	}

	dr, err := parsers[provider](path, resolve(&root))
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		dr.name = opts.Name
	}
	if dr.name == "" {
		dr.name = defaultName(path)
	}
	if !opts.NoEstimates {
		for i := range dr.jobs {
			EstimateSteps(dr.jobs[i].Steps)
		}
	}
	return assemble(path, provider, dr)
}

// ParseFile reads and parses a CI file
func ParseFile(path string, opts Options) (*dag.PipelineDag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	return Parse(path, data, opts)
}

func assemble(path string, provider domain.Provider, dr *draft) (*dag.PipelineDag, error) {
	d := dag.New(dr.name, path, provider)
	d.SetTriggers(dr.triggers)

	for _, job := range dr.jobs {
		if _, err := d.AddJob(job); err != nil {
			return nil, err
		}
	}
	for _, job := range dr.jobs {
		for _, dep := range dr.needs[job.ID] {
			if err := d.AddDependency(job.ID, dep); err != nil {
				return nil, err
			}
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// defaultName derives a pipeline name from the file name
func defaultName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, ".")
	switch base {
	case "config", "pipeline", "gitlab-ci", "":
		dir := filepath.Base(filepath.Dir(path))
		if dir != "." && dir != string(filepath.Separator) {
			return strings.TrimPrefix(dir, ".")
		}
		if base == "" {
			return "pipeline"
		}
	}
	return base
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
