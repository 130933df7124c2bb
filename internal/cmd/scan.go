package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/exitcode"
	"github.com/felixgeelhaar/pipescope/internal/finding"
	"github.com/felixgeelhaar/pipescope/internal/security"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Scan a pipeline for secrets and injection risks",
	Long: `Run only the security checks over a pipeline file: hard-coded credentials,
untrusted expressions interpolated into shell commands, and pull_request_target
workflows that check out the pull request head.

Matched secrets are masked in the output.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var (
	scanOpts   parseFlags
	scanFailOn string
)

func init() {
	scanCmd.Flags().StringVar(&scanOpts.provider, "provider", "", "CI provider, detected from path and content when empty")
	scanCmd.Flags().StringVar(&scanFailOn, "fail-on", "", "exit 3 when a finding is at or above this severity")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	p, err := loadPipeline(args[0], scanOpts)
	if err != nil {
		return err
	}
	findings := security.NewScanner().Scan(p.Dag, p.Raw)
	finding.Sort(findings)
	cmdCtx.Logger.Debug("security scan complete", "path", p.Path, "findings", len(findings))

	if err := cmdCtx.Print(ux.FindingsView{Findings: findings}); err != nil {
		return err
	}

	if scanFailOn != "" {
		threshold, err := domain.ParseSeverity(scanFailOn)
		if err != nil {
			return exitcode.WithCode(exitcode.UsageError, err.Error())
		}
		if finding.AnyAtOrAbove(findings, threshold) {
			return exitcode.WithCode(exitcode.FindingsThreshold, fmt.Sprintf("security findings at or above %s", threshold))
		}
	}
	return nil
}
