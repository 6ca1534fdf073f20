package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/siteforge/internal/build"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run every asset category once into the production root",
	Long: `Build every asset category once with the production stage lists
(compressed styles, comment stripping, minification) into the production
output root. Categories run concurrently and a failing category never stops
the others; the command exits non-zero when any category failed.

Examples:
  siteforge build            # Build into build/
  siteforge build --clean    # Remove build/ first`,
	RunE: runBuild,
}

var buildClean bool

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove the production root before building")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	report, err := build.New(cfg, logger).Build(ctx, build.BuildOptions{Clean: buildClean})
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

func printReport(out io.Writer, report *build.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "CATEGORY\tFILES\tDURATION\tSTATUS")
	for _, res := range report.Results {
		status := "ok"
		if res.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", res.Category, len(res.Written), formatDuration(res.Duration), status)
	}
	fmt.Fprintf(w, "total\t%d\t%s\t\n", report.Written(), formatDuration(report.Duration))
}
