package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/siteforge/internal/build"
	"github.com/conneroisu/siteforge/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the production root to an S3-compatible bucket",
	Long: `Upload every file under the production root to the configured bucket,
keyed by its path relative to the root under publish.prefix.

Credentials come from publish.access_key and publish.secret_key, usually set
through SITEFORGE_PUBLISH_ACCESS_KEY and SITEFORGE_PUBLISH_SECRET_KEY.

Examples:
  siteforge publish                  # Upload build/
  siteforge publish --build --clean  # Clean build first, then upload`,
	RunE: runPublish,
}

var (
	publishBuild bool
	publishClean bool
)

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().BoolVar(&publishBuild, "build", false, "Run a production build first")
	publishCmd.Flags().BoolVar(&publishClean, "clean", false, "With --build, remove the production root first")
	publishCmd.Flags().String("bucket", "", "Target bucket")
	publishCmd.Flags().String("prefix", "", "Key prefix inside the bucket")
	bindFlag(publishCmd.Flags().Lookup("bucket"), "publish.bucket")
	bindFlag(publishCmd.Flags().Lookup("prefix"), "publish.prefix")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := publish.NewS3Store(cfg.Publish)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if publishBuild {
		report, err := build.New(cfg, logger).Build(ctx, build.BuildOptions{Clean: publishClean})
		if report != nil {
			printReport(cmd.OutOrStdout(), report)
		}
		if err != nil {
			return fmt.Errorf("build failed, nothing published: %w", err)
		}
	}

	res, err := publish.New(store, publish.Options{
		Root:   cfg.Output.Prod,
		Prefix: cfg.Publish.Prefix,
		Logger: logger,
	}).Publish(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published %d files (%d bytes) to %s in %s\n",
		len(res.Keys), res.Bytes, store.Bucket(), formatDuration(res.Duration))
	return nil
}
