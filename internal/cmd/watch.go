package cmd

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/metrics"
	"github.com/felixgeelhaar/pipescope/internal/ux"
	"github.com/felixgeelhaar/pipescope/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [file...]",
	Short: "Re-analyze pipelines whenever they change",
	Long: `Analyze the given pipeline files, then watch them and print a fresh report
after every save. Without arguments the pipelines in the working directory are
watched. Stop with Ctrl+C.

Analysis errors are reported and watching continues. With --metrics-addr the
analysis metrics are served for Prometheus at /metrics while watching.`,
	RunE: runWatch,
}

var (
	watchDebounce    time.Duration
	watchMetricsAddr string
)

func init() {
	flags := watchCmd.Flags()
	flags.DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-analyzing")
	flags.StringVar(&analyzeParse.provider, "provider", "", "CI provider, detected from path and content when empty")
	flags.BoolVar(&analyzeNoSecurity, "no-security", false, "skip the secret and injection scan")
	flags.BoolVar(&analyzeWithCost, "cost", false, "attach a cost estimate to each report")
	flags.StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	targets, err := resolveTargets(args)
	if err != nil {
		return err
	}

	handler := func(ctx context.Context, path string) error {
		r, err := cmdCtx.analyzeFile(cmd, path)
		cmdCtx.Metrics.ObserveWatchRun(err)
		if err != nil {
			return ux.EnhanceError(err)
		}
		return cmdCtx.Print(ux.ReportView{Report: r})
	}

	if watchMetricsAddr != "" {
		srv := &http.Server{
			Addr:              watchMetricsAddr,
			Handler:           metricsMux(cmdCtx),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				cmdCtx.Logger.Error("metrics server failed", "addr", watchMetricsAddr, "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		cmdCtx.Infof(cmd, "Serving metrics on %s/metrics", watchMetricsAddr)
	}

	w, err := watch.New(targets, handler, watch.WithDebounce(watchDebounce), watch.WithLogger(cmdCtx.Logger))
	if err != nil {
		return err
	}
	cmdCtx.Infof(cmd, "Watching %d pipeline(s), press Ctrl+C to stop", len(w.Paths()))
	return w.Run(cmd.Context())
}

func metricsMux(c *CommandContext) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(c.Registry))
	return mux
}
