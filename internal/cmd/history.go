package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/exitcode"
	"github.com/felixgeelhaar/pipescope/internal/history"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded analyses",
	Long: `List analyses recorded with 'pipescope analyze --record' (or history.record
in the configuration file), newest first.

Examples:
  pipescope history --pipeline CI --limit 10
  pipescope history show 3f2a9c1e-...
  pipescope history trend CI
  pipescope history prune --keep 50
`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print a recorded report",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyTrendCmd = &cobra.Command{
	Use:   "trend <pipeline>",
	Short: "Compare the two most recent analyses of a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryTrend,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest analyses of each pipeline",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

var (
	historyPipeline string
	historyLimit    int
	historyKeep     int
)

func init() {
	historyCmd.Flags().StringVar(&historyPipeline, "pipeline", "", "only list this pipeline")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries, 0 for all")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 20, "entries to keep per pipeline")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyTrendCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the configured history database
func openHistory(cmd *cobra.Command) (*CommandContext, *history.Store, error) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(cmdCtx.Config.HistoryPath())
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Logger.Debug("history opened", "path", store.Path())
	return cmdCtx, store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cmdCtx, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), history.Filter{Pipeline: historyPipeline, Limit: historyLimit})
	if err != nil {
		return err
	}
	return cmdCtx.Print(ux.HistoryView{Entries: entries})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cmdCtx, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return cmdCtx.Print(ux.ReportView{Report: r})
}

func runHistoryTrend(cmd *cobra.Command, args []string) error {
	cmdCtx, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	trend, ok, err := store.Trend(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.ErrCodeFileNotFound, "fewer than two recorded analyses of "+args[0]).
			WithSuggestion("Record analyses with 'pipescope analyze --record'")
	}
	return cmdCtx.Print(ux.TrendView{Trend: trend})
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyKeep < 1 {
		return exitcode.WithCode(exitcode.UsageError, "--keep must be at least 1")
	}
	cmdCtx, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Prune(cmd.Context(), historyKeep)
	if err != nil {
		return err
	}
	cmdCtx.Infof(cmd, "✓ Removed %d entries", removed)
	return nil
}
