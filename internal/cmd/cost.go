package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var costCmd = &cobra.Command{
	Use:   "cost <file>",
	Short: "Estimate what a pipeline costs per run and per month",
	Long: `Analyze a pipeline and price it: compute cost per run, monthly compute cost
and savings, and the developer time spent waiting on the removable part of the
critical path.

Team figures default to the cost section of the configuration file.

Examples:
  pipescope cost .github/workflows/ci.yml --team-size 12 --runs-per-day 6
  pipescope cost .circleci/config.yml --runner macos --hourly-rate 90
`,
	Args: cobra.ExactArgs(1),
	RunE: runCost,
}

var (
	costParse parseFlags
	costOpts  costFlags
)

func init() {
	flags := costCmd.Flags()
	flags.StringVar(&costParse.provider, "provider", "", "CI provider, detected from path and content when empty")
	flags.Float64Var(&costOpts.runsPerDay, "runs-per-day", 0, "pipeline runs per developer per day")
	flags.IntVar(&costOpts.teamSize, "team-size", 0, "number of developers")
	flags.Float64Var(&costOpts.hourlyRate, "hourly-rate", 0, "developer hourly rate")
	flags.StringVar(&costOpts.runner, "runner", "", "runner type (linux, windows, macos, arm, gpu or a runner label)")

	rootCmd.AddCommand(costCmd)
}

func runCost(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	p, err := loadPipeline(args[0], costParse)
	if err != nil {
		return err
	}
	analyzer, err := cmdCtx.newAnalyzer(p.Raw, true, false)
	if err != nil {
		return err
	}
	r, err := analyzer.Analyze(cmd.Context(), p.Dag)
	if err != nil {
		return err
	}

	return cmdCtx.Print(ux.CostView{Result: cmdCtx.estimateCost(r, p.Dag, costOpts)})
}
