package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/siteforge/internal/build"
)

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"d", "serve"},
	Short:   "Build, watch src/ and serve the dev output with live reload",
	Long: `Run dev mode: build every asset category into the dev output root, then
watch the source root and rebuild each category whose files change. The dev
server serves the output root, injects the live-reload client into HTML and
pushes a reload (or a stylesheet swap) after every successful rebuild.

The server also exposes a status page at /__siteforge/status and Prometheus
metrics at /metrics.

Examples:
  siteforge dev                    # Serve on localhost:3000
  siteforge dev -p 8080 --open     # Custom port, open a browser
  siteforge dev --debounce 100ms   # Coalesce editor save bursts`,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)
	addDevFlags(devCmd)
}

func runDev(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	return build.New(cfg, logger).Dev(ctx)
}
