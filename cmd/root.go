// Package cmd provides the koisite command-line interface.
//
// Configuration is read from, in order of precedence:
//  1. Command-line flags (--root, --log-level, --port, ...)
//  2. KOISITE_ environment variables (KOISITE_SITE_ROOT, KOISITE_SERVER_PORT, ...)
//  3. The configuration file: --config, else KOISITE_CONFIG_FILE, else
//     .koisite.yml in the site root or the current directory
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/koisite/internal/config"
	"github.com/conneroisu/koisite/internal/logging"
)

var (
	cfgFile       string
	configReadErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "koisite",
	Short: "Build pipeline for the Koi language website",
	Long: `koisite builds the Koi website: it highlights code snippets, assembles
them into the page template, compiles the stylesheet and optimizes images.

Quick Start:
  koisite build          Build everything into dist/
  koisite watch          Rebuild on change
  koisite serve          Serve dist/ with live reload`,
	SilenceUsage: true,
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .koisite.yml, can also use KOISITE_CONFIG_FILE env var)")
	flags.String("root", "", "site root directory (default is the current directory)")
	flags.StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	AddFlagValidation(rootCmd, "log-level", ValidateChoice("debug", "info", "warn", "error"))
	AddFlagValidation(rootCmd, "log-format", ValidateChoice("text", "json"))
}

// initConfig points viper at the configuration file and environment. It
// runs before every command.
func initConfig() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("site.root", flags.Lookup("root"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))

	viper.SetEnvPrefix("KOISITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("KOISITE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		if root := viper.GetString("site.root"); root != "" {
			viper.AddConfigPath(root)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".koisite")
	}

	// A missing file is fine; defaults apply. A broken one is reported by
	// loadConfig.
	configReadErr = viper.ReadInConfig()
}

// loadConfig returns the validated configuration. It fails when an
// explicitly named config file cannot be read.
func loadConfig() (*config.Config, error) {
	if err := configReadErr; err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger from the log settings in cfg.
func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		Component: "koisite",
	}), nil
}

// setup loads the configuration and logger shared by every build command.
func setup(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}
	return cfg, logger, nil
}
