package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/config"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit pipescope configuration",
	Long: `Manage pipescope configuration.

The configuration file is looked up as .pipescope.yaml, .pipescope.yml or
.pipescope.toml in the working directory, then ~/.pipescope/config.yaml.
PIPESCOPE_* environment variables and command line flags override it.

Configuration includes:
  • Analysis thresholds and the default step duration
  • Custom runner sizing rules
  • Team figures for cost estimates
  • Redaction allow list
  • Logging, output and history settings

Examples:
  # View the effective configuration
  pipescope config view

  # Write a starter .pipescope.yaml
  pipescope config init

  # Get a specific value
  pipescope config get cost.team_size

  # Show which configuration file is in use
  pipescope config path
`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long:  `Display the configuration after defaults, file and environment are merged.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration in $EDITOR",
	Long:  `Open the configuration file in your default editor (from $EDITOR environment variable).`,
	Args:  cobra.NoArgs,
	RunE:  runConfigEdit,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  `Retrieve the value of a configuration key using dot notation (e.g., analysis.long_job_secs).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path of the configuration file in use, if any.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var (
	configInitForce bool
	configInitOut   string
)

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().StringVarP(&configInitOut, "out", "o", config.FileNames[0], "file to write")

	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	// Use formatter for JSON/YAML output
	if cmdCtx.Format == "json" || cmdCtx.Format == "yaml" {
		formatter, err := ux.NewFormatter(cmdCtx.Format, &ux.FormatterOptions{Writer: cmdCtx.Out, NoColor: cmdCtx.NoColor})
		if err != nil {
			return err
		}
		return formatter.Format(cmdCtx.Config)
	}

	// Text output
	source := cmdCtx.ConfigPath
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Fprintf(cmdCtx.Out, "Configuration file: %s\n\n", source)

	data, err := yaml.Marshal(cmdCtx.Config)
	if err != nil {
		return err
	}
	fmt.Fprint(cmdCtx.Out, string(data))
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	path := cmdCtx.ConfigPath
	if path == "" {
		path = config.FileNames[0]
		if err := writeConfig(cmdCtx.Config, path); err != nil {
			return err
		}
	}

	// Get editor from environment
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi" // Fallback to vi
	}

	editorCmd := exec.CommandContext(cmd.Context(), editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	// Validate the edited config
	if _, err := config.Load(path); err != nil {
		cmdCtx.Infof(cmd, "Warning: %s may contain errors", path)
		return err
	}

	cmdCtx.Infof(cmd, "✓ Configuration updated successfully")
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	value, err := getNestedValue(cmdCtx.Config, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmdCtx.Out, value)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(configInitOut); err == nil && !configInitForce {
		return errors.New(errors.ErrCodeConfigInvalid, configInitOut+" already exists").
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := writeConfig(config.Default(), configInitOut); err != nil {
		return err
	}
	cmdCtx.Infof(cmd, "✓ Wrote %s", configInitOut)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	if cmdCtx.ConfigPath == "" {
		cmdCtx.Infof(cmd, "No configuration file found, using built-in defaults")
		return nil
	}
	abs, err := filepath.Abs(cmdCtx.ConfigPath)
	if err != nil {
		abs = cmdCtx.ConfigPath
	}
	fmt.Fprintln(cmdCtx.Out, abs)
	return nil
}

// writeConfig saves cfg as YAML
func writeConfig(cfg *config.Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+path, err)
	}
	return nil
}

// getNestedValue retrieves a value from the config using dot notation over
// its YAML keys
func getNestedValue(cfg *config.Config, key string) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return "", err
	}

	var current any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("unknown configuration key: %s", key)
		}
		if current, ok = m[part]; !ok {
			return "", fmt.Errorf("unknown configuration key: %s", key)
		}
	}

	switch v := current.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.TrimSuffix(string(out), "\n"), nil
	default:
		return fmt.Sprint(v), nil
	}
}
