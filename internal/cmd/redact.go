package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/redact"
	"github.com/felixgeelhaar/pipescope/internal/report"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var redactCmd = &cobra.Command{
	Use:   "redact <report.json>",
	Short: "Remove sensitive details from a saved report",
	Long: `Produce a copy of an analysis report that is safe to share: secret values,
credentials in URLs, links to hosts outside the allow list and local path
prefixes are replaced. The redacted report gets a new id.

Allowed hosts and path handling come from the redaction section of the
configuration file.`,
	Args: cobra.ExactArgs(1),
	RunE: runRedact,
}

var (
	redactOut      string
	redactKeepPath bool
)

func init() {
	redactCmd.Flags().StringVarP(&redactOut, "out", "o", "", "write the redacted report to a file instead of stdout")
	redactCmd.Flags().BoolVar(&redactKeepPath, "keep-source-path", false, "keep the full source file path")

	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	r, err := report.Load(args[0])
	if err != nil {
		return err
	}
	opts := cmdCtx.Config.Redaction
	if cmd.Flags().Changed("keep-source-path") {
		opts.KeepSourcePath = redactKeepPath
	}
	redacted, err := redact.Report(r, opts)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Debug("report redacted", "from", r.ID, "to", redacted.ID)

	if redactOut != "" {
		if err := report.Save(redacted, redactOut); err != nil {
			return err
		}
		cmdCtx.Infof(cmd, "✓ Redacted report written to %s", redactOut)
		return nil
	}
	return cmdCtx.Print(ux.ReportView{Report: redacted})
}
