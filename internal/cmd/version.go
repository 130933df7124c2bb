package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/ux"
	"github.com/felixgeelhaar/pipescope/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the pipescope version. --verbose adds the commit, build date, Go
version and platform; --json (or --format json|yaml) prints all of it as data.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var (
	versionVerbose bool
	versionJSON    bool
)

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")

	rootCmd.AddCommand(versionCmd)
}

// versionView renders build information
type versionView struct {
	info    version.Info
	verbose bool
}

func (v versionView) Data() any { return v.info }

func (v versionView) Render(s ux.Styles) string {
	if v.verbose {
		return v.info.String() + "\n"
	}
	return fmt.Sprintf("%s %s\n", version.Name, v.info.Short())
}

// version does not read the config file, so it works next to a broken one
func runVersion(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if versionJSON {
		format = "json"
	}
	if format == "" {
		format = "text"
	}
	noColor, _ := cmd.Flags().GetBool("no-color")

	formatter, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: cmd.OutOrStdout(), NoColor: noColor})
	if err != nil {
		return err
	}
	return formatter.Format(versionView{info: version.GetInfo(), verbose: versionVerbose})
}
