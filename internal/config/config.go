// Package config loads pipescope settings from a YAML (or TOML) file and
// PIPESCOPE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/analysis"
	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/redact"
	"github.com/felixgeelhaar/pipescope/internal/telemetry"
)

// FileNames are looked up, in order, in the working directory
var FileNames = []string{".pipescope.yaml", ".pipescope.yml", ".pipescope.toml"}

// Formats accepted by output.format
var Formats = []string{"text", "json", "yaml", "sarif"}

// Config is the full pipescope configuration
type Config struct {
	Analysis  analysis.Config  `yaml:"analysis" toml:"analysis" json:"analysis"`
	Sizing    SizingConfig     `yaml:"sizing" toml:"sizing" json:"sizing"`
	Cost      CostConfig       `yaml:"cost" toml:"cost" json:"cost"`
	Redaction redact.Options   `yaml:"redaction" toml:"redaction" json:"redaction"`
	Logging   LoggingConfig    `yaml:"logging" toml:"logging" json:"logging"`
	Output    OutputConfig     `yaml:"output" toml:"output" json:"output"`
	History   HistoryConfig    `yaml:"history" toml:"history" json:"history"`
	Metrics   MetricsConfig    `yaml:"metrics" toml:"metrics" json:"metrics"`
	Telemetry telemetry.Config `yaml:"telemetry" toml:"telemetry" json:"telemetry"`
}

// SizingConfig points at a custom runner-sizing rule table
type SizingConfig struct {
	RulesFile string `yaml:"rules_file,omitempty" toml:"rules_file" json:"rules_file,omitempty"`
}

// CostConfig holds the team figures for cost estimates
type CostConfig struct {
	RunsPerDay float64 `yaml:"runs_per_day" toml:"runs_per_day" json:"runs_per_day"` // per developer
	TeamSize   int     `yaml:"team_size" toml:"team_size" json:"team_size"`
	HourlyRate float64 `yaml:"hourly_rate" toml:"hourly_rate" json:"hourly_rate"`
	// RunnerType overrides the runner label found in the pipeline
	RunnerType string `yaml:"runner_type,omitempty" toml:"runner_type" json:"runner_type,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type OutputConfig struct {
	Format  string `yaml:"format" toml:"format" json:"format"`
	NoColor bool   `yaml:"no_color" toml:"no_color" json:"no_color"`
	// FailOn is the lowest severity that makes analyze exit non-zero; empty disables the gate
	FailOn string `yaml:"fail_on,omitempty" toml:"fail_on" json:"fail_on,omitempty"`
}

type HistoryConfig struct {
	Path   string `yaml:"path,omitempty" toml:"path" json:"path,omitempty"`
	Record bool   `yaml:"record" toml:"record" json:"record"`
}

// MetricsConfig controls the Prometheus textfile written after analyze
type MetricsConfig struct {
	File string `yaml:"file,omitempty" toml:"file" json:"file,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Analysis: analysis.DefaultConfig(),
		Cost: CostConfig{
			RunsPerDay: 4,
			TeamSize:   5,
			HourlyRate: 75,
		},
		Redaction: redact.DefaultOptions(),
		Logging:   LoggingConfig{Level: "warn", Format: "text"},
		Output:    OutputConfig{Format: "text"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultHistoryPath is where analyses are recorded when history.path is unset
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pipescope", "history.db")
	}
	return filepath.Join(home, ".pipescope", "history.db")
}

// Discover returns the first config file found in dir, then in
// $HOME/.pipescope, or "" when there is none.
func Discover(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
			p := filepath.Join(home, ".pipescope", name)
			if fileExists(p) {
				return p
			}
		}
	}
	return ""
}

// Load reads path over the defaults and applies environment overrides. An
// empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewFileNotFoundError(path)
			}
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read config %s", path), err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return errors.NewFileUnmarshalError(path, "TOML", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.NewFileUnmarshalError(path, "YAML", err)
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...)).
			WithSuggestion("Run 'pipescope config' to print the effective configuration")
	}
	if err := c.Analysis.Validate(); err != nil {
		return invalid("analysis: %v", err)
	}
	if c.Cost.RunsPerDay < 0 || c.Cost.TeamSize < 0 || c.Cost.HourlyRate < 0 {
		return invalid("cost figures must not be negative")
	}
	if !slices.Contains(Formats, strings.ToLower(c.Output.Format)) {
		return invalid("output.format must be one of %s, got %q", strings.Join(Formats, ", "), c.Output.Format)
	}
	if c.Output.FailOn != "" {
		if _, err := domain.ParseSeverity(c.Output.FailOn); err != nil {
			return invalid("output.fail_on: %v", err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return invalid("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return invalid("telemetry: %v", err)
	}
	return nil
}

// HistoryPath returns the configured history database or the default one
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return DefaultHistoryPath()
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays PIPESCOPE_* variables. NO_COLOR is honoured too.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	float := func(name string, dst *float64) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = f
		return nil
	}

	str("PIPESCOPE_LOG_LEVEL", &cfg.Logging.Level)
	str("PIPESCOPE_LOG_FORMAT", &cfg.Logging.Format)
	str("PIPESCOPE_FORMAT", &cfg.Output.Format)
	str("PIPESCOPE_FAIL_ON", &cfg.Output.FailOn)
	str("PIPESCOPE_SIZING_RULES", &cfg.Sizing.RulesFile)
	str("PIPESCOPE_HISTORY_DB", &cfg.History.Path)
	str("PIPESCOPE_RUNNER_TYPE", &cfg.Cost.RunnerType)
	str("PIPESCOPE_METRICS_FILE", &cfg.Metrics.File)

	// An exporter endpoint implies tracing
	if v, ok := lookup("PIPESCOPE_OTLP_ENDPOINT"); ok && v != "" {
		cfg.Telemetry.Endpoint = v
		cfg.Telemetry.Enabled = true
	}

	if _, ok := lookup("NO_COLOR"); ok {
		cfg.Output.NoColor = true
	}
	if v, ok := lookup("PIPESCOPE_RECORD"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("PIPESCOPE_RECORD", v, err)
		}
		cfg.History.Record = b
	}
	if v, ok := lookup("PIPESCOPE_TEAM_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("PIPESCOPE_TEAM_SIZE", v, err)
		}
		cfg.Cost.TeamSize = n
	}
	for name, dst := range map[string]*float64{
		"PIPESCOPE_RUNS_PER_DAY":      &cfg.Cost.RunsPerDay,
		"PIPESCOPE_HOURLY_RATE":       &cfg.Cost.HourlyRate,
		"PIPESCOPE_DEFAULT_STEP_SECS": &cfg.Analysis.DefaultStepSecs,
	} {
		if err := float(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func envError(name, value string, err error) error {
	return errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid %s=%q", name, value), err)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
