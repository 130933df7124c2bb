package cmd

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/analysis"
	"github.com/felixgeelhaar/pipescope/internal/cost"
	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/parser"
	"github.com/felixgeelhaar/pipescope/internal/report"
	"github.com/felixgeelhaar/pipescope/internal/security"
	"github.com/felixgeelhaar/pipescope/internal/sizing"
)

// pipeline is one loaded CI file: the raw bytes for lint and secret
// scanning plus the parsed graph.
type pipeline struct {
	Path string
	Raw  []byte
	Dag  *dag.PipelineDag
}

// parseFlags are shared by every command that parses a pipeline
type parseFlags struct {
	provider    string
	name        string
	noEstimates bool
}

func (f parseFlags) options() (parser.Options, error) {
	opts := parser.Options{Name: f.name, NoEstimates: f.noEstimates}
	if f.provider != "" {
		p, err := domain.ParseProvider(f.provider)
		if err != nil {
			return opts, errors.Wrap(errors.ErrCodeParseUnknownProvider, "invalid --provider", err).
				WithSuggestion("Use github-actions, gitlab-ci, circleci or buildkite")
		}
		opts.Provider = p
	}
	return opts, nil
}

// resolveTargets returns args, or the pipelines discovered in the working
// directory when no file was named.
func resolveTargets(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	found, err := parser.Discover(wd)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.New(errors.ErrCodeFileNotFound, "no CI configuration found in "+wd).
			WithSuggestion("Pass the pipeline file explicitly: pipescope analyze path/to/ci.yml").
			WithSuggestion("Looked in .github/workflows, .gitlab-ci.yml, .circleci/config.yml and .buildkite")
	}
	return found, nil
}

// readPipeline reads path without parsing it
func readPipeline(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	return data, nil
}

// loadPipeline reads and parses path. A .json file is a graph saved by
// 'pipescope parse --out' and is loaded as is.
func loadPipeline(path string, flags parseFlags) (*pipeline, error) {
	opts, err := flags.options()
	if err != nil {
		return nil, err
	}
	raw, err := readPipeline(path)
	if err != nil {
		return nil, err
	}

	var d *dag.PipelineDag
	if strings.EqualFold(filepath.Ext(path), ".json") {
		d, err = decodeGraph(path, raw)
	} else {
		d, err = parser.Parse(path, raw, opts)
	}
	if err != nil {
		return nil, err
	}
	return &pipeline{Path: path, Raw: raw, Dag: d}, nil
}

func decodeGraph(path string, raw []byte) (*dag.PipelineDag, error) {
	var d dag.PipelineDag
	if err := json.Unmarshal(raw, &d); err != nil {
		if errors.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrCodeParseInvalidPipeline, "invalid pipeline graph "+path, err).
			WithSuggestion("Regenerate it with: pipescope parse <file> --out " + filepath.Base(path))
	}
	return &d, nil
}

// newAnalyzer builds an analyzer from the resolved configuration. The
// secret and injection scan runs as a regular pass over raw unless
// noSecurity is set.
func (c *CommandContext) newAnalyzer(raw []byte, noSecurity, concurrent bool) (*analysis.Analyzer, error) {
	opts := []analysis.Option{
		analysis.WithConcurrency(concurrent),
		analysis.WithLogger(c.Logger),
		analysis.WithMetrics(c.Metrics),
	}

	if path := c.Config.Sizing.RulesFile; path != "" {
		rules, err := sizing.LoadRules(path)
		if err != nil {
			return nil, err
		}
		sizer, err := sizing.New(rules)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigSizingRules, "invalid sizing rules", err)
		}
		c.Logger.Debug("custom sizing rules loaded", "path", path, "rules", len(rules.Rules))
		opts = append(opts, analysis.WithSizer(sizer))
	}

	if !noSecurity {
		scanner := security.NewScanner()
		opts = append(opts, analysis.WithPass("security", func(in analysis.Input) []finding.Finding {
			return scanner.Scan(in.Dag, raw)
		}))
	}

	return analysis.NewAnalyzer(c.Config.Analysis, opts...), nil
}

// costFlags override the cost section of the configuration
type costFlags struct {
	runsPerDay float64
	teamSize   int
	hourlyRate float64
	runner     string
}

// estimateCost prices r. The runner comes from --runner, then the config,
// then the first critical path job that declares one.
func (c *CommandContext) estimateCost(r *report.AnalysisReport, d *dag.PipelineDag, flags costFlags) cost.Result {
	in := cost.Input{
		DurationSecs:          r.CriticalPathDurationSecs,
		OptimizedDurationSecs: r.OptimizedDurationSecs,
		RunsPerDay:            c.Config.Cost.RunsPerDay,
		RunnerType:            c.Config.Cost.RunnerType,
		DeveloperHourlyRate:   c.Config.Cost.HourlyRate,
		TeamSize:              c.Config.Cost.TeamSize,
	}
	if flags.runsPerDay > 0 {
		in.RunsPerDay = flags.runsPerDay
	}
	if flags.teamSize > 0 {
		in.TeamSize = flags.teamSize
	}
	if flags.hourlyRate > 0 {
		in.DeveloperHourlyRate = flags.hourlyRate
	}
	if flags.runner != "" {
		in.RunnerType = flags.runner
	}
	if in.RunnerType == "" {
		in.RunnerType = criticalRunner(r, d)
	}
	return cost.Estimate(in)
}

func criticalRunner(r *report.AnalysisReport, d *dag.PipelineDag) string {
	for _, id := range r.CriticalPath {
		if idx, ok := d.Lookup(id); ok {
			if runsOn := d.Job(idx).RunsOn; runsOn != "" {
				return runsOn
			}
		}
	}
	return ""
}
