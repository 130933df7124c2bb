package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/config"
	"github.com/felixgeelhaar/pipescope/internal/log"
	"github.com/felixgeelhaar/pipescope/internal/metrics"
	"github.com/felixgeelhaar/pipescope/internal/report"
	"github.com/felixgeelhaar/pipescope/internal/telemetry"
	"github.com/felixgeelhaar/pipescope/internal/ux"
	"github.com/felixgeelhaar/pipescope/internal/version"
)

// CommandContext holds the resolved flags, configuration and logger of one
// command invocation. Flags win over the config file, which wins over defaults.
type CommandContext struct {
	Format     string
	NoColor    bool
	Quiet      bool
	ConfigPath string
	Config     *config.Config
	Logger     *log.Logger
	Out        io.Writer

	// Registry collects the metrics of this invocation
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// NewCommandContext extracts command context from cobra.Command flags.
// Commands call this first in their RunE function.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		if wd, err := os.Getwd(); err == nil {
			configPath = config.Discover(wd)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if flags.Changed("format") {
		if cfg.Output.Format, err = flags.GetString("format"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-color") {
		if cfg.Output.NoColor, err = flags.GetBool("no-color"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("log-level") {
		if cfg.Logging.Level, err = flags.GetString("log-level"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("log-format") {
		if cfg.Logging.Format, err = flags.GetString("log-format"); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return nil, err
	}

	// Logs go to stderr so reports on stdout stay machine readable
	logger := log.New(log.ConfigFrom(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()))
	log.SetDefaultLogger(logger)
	logger.Debug("configuration loaded", "path", configPath)

	if cfg.Telemetry.Enabled {
		tcfg := cfg.Telemetry
		tcfg.ServiceVersion = version.GetInfo().Short()
		if _, err := telemetry.InitProvider(cmd.Context(), tcfg); err != nil {
			// Tracing is best effort; the command still runs
			logger.Warn("tracing disabled", "error", err)
		} else {
			logger.Debug("tracing enabled", "endpoint", tcfg.Endpoint, "sample_rate", tcfg.SampleRate)
		}
	}

	reg, m := metrics.NewRegistry()

	return &CommandContext{
		Format:     cfg.Output.Format,
		NoColor:    cfg.Output.NoColor,
		Quiet:      quiet,
		ConfigPath: configPath,
		Config:     cfg,
		Logger:     logger,
		Out:        cmd.OutOrStdout(),
		Registry:   reg,
		Metrics:    m,
	}, nil
}

// Print writes v in the selected format. SARIF is only available for
// analysis reports.
func (c *CommandContext) Print(v ux.View) error {
	return c.print(c.Out, v)
}

// PrintTo writes v to path, or to stdout when path is empty
func (c *CommandContext) PrintTo(path string, v ux.View) error {
	if path == "" {
		return c.Print(v)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := c.print(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *CommandContext) print(w io.Writer, v ux.View) error {
	if c.Format == "sarif" {
		rv, ok := v.(ux.ReportView)
		if !ok {
			return fmt.Errorf("sarif output is only available for analysis reports")
		}
		return writeSARIF(w, rv.Report)
	}
	formatter, err := ux.NewFormatter(c.Format, &ux.FormatterOptions{Writer: w, NoColor: c.NoColor})
	if err != nil {
		return err
	}
	return formatter.Format(v)
}

// Infof prints a status line to stderr unless --quiet is set
func (c *CommandContext) Infof(cmd *cobra.Command, format string, args ...any) {
	if c.Quiet {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func writeSARIF(w io.Writer, r *report.AnalysisReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.ToSARIF())
}
