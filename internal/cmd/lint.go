package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/exitcode"
	"github.com/felixgeelhaar/pipescope/internal/lint"
	"github.com/felixgeelhaar/pipescope/internal/parser"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var lintCmd = &cobra.Command{
	Use:   "lint <file>",
	Short: "Check a pipeline file for structural problems",
	Long: `Lint a CI pipeline file: YAML syntax, tabs, unknown or misspelled keys,
unpinned and deprecated actions, jobs without steps.

Exit codes: 0 clean, 1 warnings only, 2 errors.`,
	Args: cobra.ExactArgs(1),
	RunE: runLint,
}

var lintOpts parseFlags

func init() {
	lintCmd.Flags().StringVar(&lintOpts.provider, "provider", "", "CI provider, detected from path and content when empty")

	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	raw, err := readPipeline(path)
	if err != nil {
		return err
	}
	opts, err := lintOpts.options()
	if err != nil {
		return err
	}

	provider := opts.Provider
	if provider == "" {
		var root yaml.Node
		// Syntax errors are reported by the linter itself
		_ = yaml.Unmarshal(raw, &root)
		if provider, err = parser.DetectProvider(path, &root); err != nil {
			return err
		}
		opts.Provider = provider
	}

	// Graph rules need a parsed pipeline; file-level rules still run without one
	var d *dag.PipelineDag
	if parsed, err := parser.Parse(path, raw, opts); err == nil {
		d = parsed
	} else {
		cmdCtx.Logger.Debug("pipeline did not parse, skipping graph rules", "path", path, "error", err.Error())
	}

	result := lint.Run(provider, raw, d)
	if result.SourceFile == "" {
		result.SourceFile = path
	}
	if err := cmdCtx.Print(ux.LintView{Report: result}); err != nil {
		return err
	}

	if code := result.ExitCode(); code != exitcode.Success {
		return exitcode.WithCode(code, fmt.Sprintf("%s: %d problems", path, result.Summary.Total))
	}
	return nil
}
