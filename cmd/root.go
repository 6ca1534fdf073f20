// Package cmd provides the siteforge command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// SITEFORGE_<SECTION>_<OPTION> environment variables (a .env file in the
// working directory is loaded into the environment first), the file named
// by --config or SITEFORGE_CONFIG_FILE, and .siteforge.yml in the working
// directory.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/logging"
)

var (
	cfgFile string
	// configReadErr is a config file that was named or found but not read.
	configReadErr error
)

// rootCmd runs dev mode when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "siteforge",
	Short: "Build and serve a static front-end from src/",
	Long: `siteforge compiles a static site's sources (HTML, Pug, Markdown, Sass,
JavaScript, images, fonts and downloads) into an output tree.

Without a subcommand it runs dev mode: an initial build, then a watcher that
rebuilds each asset category on change and a live-reloading dev server.

Quick Start:
  siteforge                 Build into dist/, watch src/ and serve
  siteforge build           Production build into build/
  siteforge categories      Show the asset category table
  siteforge publish         Upload build/ to an S3-compatible bucket`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindCommandFlags(viper.GetViper(), cmd)
	},
	RunE: runDev,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .siteforge.yml, can also use SITEFORGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindFlag(rootCmd.PersistentFlags().Lookup("log-level"), "log.level")
	bindFlag(rootCmd.PersistentFlags().Lookup("log-format"), "log.format")

	addDevFlags(rootCmd)
}

// initConfig points viper at the config file and the environment.
func initConfig() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	configReadErr = nil
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEFORGE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".siteforge")
	}

	viper.SetEnvPrefix("SITEFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		return
	}
	var notFound viper.ConfigFileNotFoundError
	if explicit || !errors.As(err, &notFound) {
		configReadErr = err
	}
}

// loadConfig resolves the effective configuration and its logger.
func loadConfig() (*config.Config, logging.Logger, error) {
	if configReadErr != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", configReadErr)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
