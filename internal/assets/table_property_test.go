//go:build property

package assets

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTableProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	table, err := NewTable(Defaults(), nilFactory)
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("underscore stylesheets are never styles inputs", prop.ForAll(
		func(name string, ext string) bool {
			c, _ := table.Get(Styles)
			rel := "css/_" + name + "." + ext
			return !c.Matcher.Includes(rel) && c.Matcher.Triggers(rel)
		},
		gen.Identifier(),
		gen.OneConstOf("sass", "scss"),
	))

	properties.Property("pug includes never trigger a run", prop.ForAll(
		func(name string) bool {
			return len(table.Match("pug/includes/"+name+".pug")) == 0
		},
		gen.Identifier(),
	))

	properties.Property("top-level html triggers exactly one category", prop.ForAll(
		func(name string) bool {
			got := table.Match(name + ".html")
			return len(got) == 1 && got[0].Name == HTML
		},
		gen.Identifier(),
	))

	properties.Property("excluded paths are never included", prop.ForAll(
		func(name string) bool {
			for _, c := range table.Categories() {
				for _, rel := range []string{"js/" + name + ".min.js", "pages/_" + name + ".md", "css/" + name + ".min.css"} {
					if c.Matcher.Excluded(rel) && c.Matcher.Includes(rel) {
						return false
					}
				}
			}
			return true
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
