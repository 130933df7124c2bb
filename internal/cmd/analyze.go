package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/exitcode"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/history"
	"github.com/felixgeelhaar/pipescope/internal/metrics"
	"github.com/felixgeelhaar/pipescope/internal/redact"
	"github.com/felixgeelhaar/pipescope/internal/report"
	"github.com/felixgeelhaar/pipescope/internal/telemetry"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Analyze pipelines for optimization opportunities",
	Long: `Parse one or more CI pipeline files and run every analysis pass over them:
critical path, parallelization, caching, waste, runner sizing and security.

Without arguments, pipelines are discovered in the working directory
(.github/workflows, .gitlab-ci.yml, .circleci/config.yml, .buildkite).

Examples:
  # Analyze every pipeline in the repository
  pipescope analyze

  # Emit SARIF for code scanning
  pipescope analyze .github/workflows/ci.yml --format sarif --out ci.sarif

  # Fail the build on high severity findings and include a cost estimate
  pipescope analyze .gitlab-ci.yml --fail-on high --cost

  # Leave Prometheus metrics for the node_exporter textfile collector
  pipescope analyze --metrics-file /var/lib/node_exporter/pipescope.prom
`,
	RunE: runAnalyze,
}

var (
	analyzeParse      parseFlags
	analyzeCost       costFlags
	analyzeShowDag    bool
	analyzeOut        string
	analyzeRedact     bool
	analyzeWithCost   bool
	analyzeFailOn     string
	analyzeRecord     bool
	analyzeNoSecurity bool
	analyzeConcurrent bool
	analyzeMetrics    string
)

func init() {
	flags := analyzeCmd.Flags()
	flags.StringVar(&analyzeParse.provider, "provider", "", "CI provider, detected from path and content when empty")
	flags.StringVar(&analyzeParse.name, "name", "", "override the pipeline name")
	flags.BoolVar(&analyzeParse.noEstimates, "no-estimates", false, "do not estimate step durations from commands")
	flags.BoolVar(&analyzeShowDag, "dag", false, "print the job graph before the report")
	flags.StringVarP(&analyzeOut, "out", "o", "", "write the report to a file instead of stdout")
	flags.BoolVar(&analyzeRedact, "redact", false, "strip secrets, internal URLs and local paths from the report")
	flags.BoolVar(&analyzeWithCost, "cost", false, "attach a cost estimate to the report")
	flags.StringVar(&analyzeFailOn, "fail-on", "", "exit 3 when a finding is at or above this severity")
	flags.BoolVar(&analyzeRecord, "record", false, "record the report in the history database")
	flags.BoolVar(&analyzeNoSecurity, "no-security", false, "skip the secret and injection scan")
	flags.BoolVar(&analyzeConcurrent, "concurrent", false, "run analysis passes concurrently")
	flags.StringVar(&analyzeCost.runner, "runner", "", "runner type used for --cost")
	flags.StringVar(&analyzeMetrics, "metrics-file", "", "write Prometheus metrics in text format to this file")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) (err error) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "analyze")
	defer span.End()
	cmd.SetContext(ctx)

	metricsFile := cmdCtx.Config.Metrics.File
	if cmd.Flags().Changed("metrics-file") {
		metricsFile = analyzeMetrics
	}
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
		if metricsFile == "" {
			return
		}
		if werr := metrics.WriteTextfile(cmdCtx.Registry, metricsFile); werr != nil && err == nil {
			err = werr
		}
	}()

	failOn := cmdCtx.Config.Output.FailOn
	if cmd.Flags().Changed("fail-on") {
		failOn = analyzeFailOn
	}
	var threshold domain.Severity
	if failOn != "" {
		if threshold, err = domain.ParseSeverity(failOn); err != nil {
			return exitcode.WithCode(exitcode.UsageError, err.Error())
		}
	}

	targets, err := resolveTargets(args)
	if err != nil {
		return err
	}
	if analyzeOut != "" && len(targets) > 1 {
		return exitcode.WithCode(exitcode.UsageError, "--out needs exactly one pipeline file")
	}

	record := cmdCtx.Config.History.Record || analyzeRecord
	var store *history.Store
	if record {
		if store, err = history.Open(cmdCtx.Config.HistoryPath()); err != nil {
			return err
		}
		defer store.Close()
	}

	var gated []string
	for _, path := range targets {
		r, err := cmdCtx.analyzeFile(cmd, path)
		if err != nil {
			return err
		}

		if store != nil {
			entry, err := store.Record(cmd.Context(), r)
			if err != nil {
				return err
			}
			cmdCtx.Logger.Debug("analysis recorded", "seq", entry.Seq, "report", entry.ReportID)
		}

		if analyzeOut != "" {
			if err := cmdCtx.PrintTo(analyzeOut, ux.ReportView{Report: r}); err != nil {
				return err
			}
			cmdCtx.Infof(cmd, "✓ Report written to %s", analyzeOut)
		} else if err := cmdCtx.Print(ux.ReportView{Report: r}); err != nil {
			return err
		}

		if failOn != "" && finding.AnyAtOrAbove(r.Findings, threshold) {
			gated = append(gated, r.PipelineName)
		}
	}

	if len(gated) > 0 {
		return exitcode.WithCode(exitcode.FindingsThreshold,
			fmt.Sprintf("findings at or above %s in %d pipeline(s)", threshold, len(gated)))
	}
	return nil
}

// analyzeFile runs the full analysis of one pipeline file and applies the
// cost and redaction options.
func (c *CommandContext) analyzeFile(cmd *cobra.Command, path string) (*report.AnalysisReport, error) {
	p, err := loadPipeline(path, analyzeParse)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("analyzing pipeline", "path", path, "provider", string(p.Dag.Provider()), "jobs", p.Dag.JobCount())

	if analyzeShowDag {
		if err := c.Print(ux.DagView{Dag: p.Dag, DefaultStepSecs: c.Config.Analysis.DefaultStepSecs}); err != nil {
			return nil, err
		}
	}

	analyzer, err := c.newAnalyzer(p.Raw, analyzeNoSecurity, analyzeConcurrent)
	if err != nil {
		return nil, err
	}
	r, err := analyzer.Analyze(cmd.Context(), p.Dag)
	if err != nil {
		return nil, err
	}

	if analyzeWithCost {
		estimate := c.estimateCost(r, p.Dag, analyzeCost)
		r.Cost = &estimate
		if err := r.Seal(); err != nil {
			return nil, err
		}
	}
	if analyzeRedact {
		if r, err = redact.Report(r, c.Config.Redaction); err != nil {
			return nil, err
		}
	}
	return r, nil
}
