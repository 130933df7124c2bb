package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a pipeline and print its job graph",
	Long: `Parse a CI pipeline file into its job graph without analyzing it.

The text format lists jobs layer by layer with their dependencies. JSON and
YAML emit the graph in the same form --out saves it in.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

var (
	parseOpts parseFlags
	parseOut  string
)

func init() {
	parseCmd.Flags().StringVar(&parseOpts.provider, "provider", "", "CI provider, detected from path and content when empty")
	parseCmd.Flags().StringVar(&parseOpts.name, "name", "", "override the pipeline name")
	parseCmd.Flags().BoolVar(&parseOpts.noEstimates, "no-estimates", false, "do not estimate step durations from commands")
	parseCmd.Flags().StringVarP(&parseOut, "out", "o", "", "save the graph as JSON")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	p, err := loadPipeline(args[0], parseOpts)
	if err != nil {
		return err
	}

	if parseOut != "" {
		data, err := json.MarshalIndent(p.Dag, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal graph: %w", err)
		}
		if err := os.WriteFile(parseOut, data, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+parseOut, err)
		}
		cmdCtx.Infof(cmd, "✓ Graph saved to %s", parseOut)
		return nil
	}

	return cmdCtx.Print(ux.DagView{Dag: p.Dag, DefaultStepSecs: cmdCtx.Config.Analysis.DefaultStepSecs})
}
