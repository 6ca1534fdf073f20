package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/siteforge/internal/build"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"cats", "ls"},
	Short:   "Show the resolved asset category table",
	Long: `List every asset category after configuration overrides: its include,
exclude and watch-only globs, its output directory and its stage list.

Examples:
  siteforge categories                    # Dev stage lists as a table
  siteforge categories --production       # Production stage lists
  siteforge categories -f json            # Machine-readable output`,
	RunE: runCategories,
}

var (
	categoriesFormat     string
	categoriesProduction bool
)

func init() {
	rootCmd.AddCommand(categoriesCmd)

	addFormatFlag(categoriesCmd, &categoriesFormat, "table")
	categoriesCmd.Flags().BoolVar(&categoriesProduction, "production", false, "Show production stage lists")
}

func runCategories(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	profile := build.ProfileDev
	if categoriesProduction {
		profile = build.ProfileProduction
	}
	infos, err := build.Describe(profile, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(categoriesFormat) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(infos)
	default:
		return outputCategoriesTable(out, infos)
	}
}

func outputCategoriesTable(out io.Writer, infos []build.CategoryInfo) error {
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "CATEGORY\tINCLUDE\tEXCLUDE\tWATCH\tOUTPUT\tSTAGES")
	for _, c := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			title.String(c.Name),
			strings.Join(c.Include, " "),
			dash(strings.Join(c.Exclude, " ")),
			dash(strings.Join(c.Watch, " ")),
			c.OutputDir,
			strings.Join(c.Stages, " > "),
		)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
