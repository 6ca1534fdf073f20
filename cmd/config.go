package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, the config file, environment
variables and flags have been applied. Secrets are redacted.

Examples:
  siteforge config                          # Effective configuration
  SITEFORGE_SERVER_PORT=8080 siteforge config
  siteforge config > .siteforge.yml         # Start a config file`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.Images.TinyPNGKey != "" {
		shown.Images.TinyPNGKey = redacted
	}
	if shown.Publish.AccessKey != "" {
		shown.Publish.AccessKey = redacted
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&shown)
}
