package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/koisite/internal/build"
	"github.com/conneroisu/koisite/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect koisite configuration",
	Long: `Inspect the resolved koisite configuration.

Examples:
  koisite config show                  # Show configuration as YAML
  koisite config show --format json    # Show configuration as JSON
  koisite config validate              # Validate the configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after the configuration file, KOISITE_
environment variables, defaults and command-line flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration and check that the required inputs exist:

- Value ranges, paths and log settings
- The snippet command line and highlight theme
- The template and stylesheet files`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, json)")
	AddFlagValidation(configShowCmd, "format", ValidateChoice("yaml", "yml", "json"))
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	// NewSite checks the snippet command line and the theme.
	if _, err := build.NewSite(cfg, logger); err != nil {
		return err
	}

	result := config.ValidateConfigWithDetails(cfg)
	fmt.Fprint(cmd.OutOrStdout(), result.String())
	if !result.Valid {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}

	source := viper.ConfigFileUsed()
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s)\n", source)
	return nil
}
