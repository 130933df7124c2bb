package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/log"
	"github.com/felixgeelhaar/pipescope/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "pipescope",
	Short: "Static analyzer for CI/CD pipelines",
	Long: `pipescope reads GitHub Actions, GitLab CI, CircleCI and Buildkite pipeline
definitions and reports optimization opportunities without running them: the
critical path, missing caches, needless serialization, wasted work, mis-sized
runners and security risks, ranked by severity with estimated savings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every command
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)

	// Flush pending spans even when the command failed or was interrupted
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if serr := telemetry.Shutdown(shutdownCtx); serr != nil {
		log.DefaultLogger().Warn("failed to flush traces", "error", serr)
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default .pipescope.yaml or $HOME/.pipescope/config.yaml)")
	flags.StringP("format", "f", "", "output format: text, json, yaml or sarif")
	flags.Bool("no-color", false, "disable colored output")
	flags.BoolP("quiet", "q", false, "only print errors")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
}
