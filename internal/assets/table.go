// Package assets holds the asset category table: the static mapping from a
// category name to its source globs and the pipeline that rebuilds it.
//
// The table is resolved once at startup. A changed path is matched against
// every category and each matching category is triggered on its own;
// overlapping categories are all triggered.
package assets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

// Category names.
const (
	HTML       = "html"
	Pug        = "pug"
	Markdown   = "markdown"
	Styles     = "styles"
	Scripts    = "scripts"
	Images     = "images"
	TinyImages = "tiny-images"
	Fonts      = "fonts"
	Downloads  = "downloads"
)

// Definition describes a category before its pipeline is attached.
type Definition struct {
	Name    string
	Include []string
	Exclude []string
	// Watch lists paths that trigger a rebuild without being inputs.
	Watch []string
	// OutputDir is relative to the output root.
	OutputDir string
}

// Defaults returns the built-in category definitions in table order.
func Defaults() []Definition {
	return []Definition{
		{Name: HTML, Include: []string{"*.html"}, OutputDir: "."},
		{Name: Pug, Include: []string{"pug/**/*.pug"}, Exclude: []string{"pug/includes/**"}, OutputDir: "."},
		{Name: Markdown, Include: []string{"pages/**/*.md"}, Exclude: []string{"pages/**/_*.md"}, OutputDir: "."},
		{
			Name:      Styles,
			Include:   []string{"css/*.{sass,scss,css}"},
			Exclude:   []string{"css/_*", "css/*.min.css"},
			Watch:     []string{"css/_*.{sass,scss}"},
			OutputDir: "css",
		},
		{Name: Scripts, Include: []string{"js/**/*.js"}, Exclude: []string{"js/**/*.min.js"}, OutputDir: "js"},
		{Name: Images, Include: []string{"just_images/**"}, OutputDir: "images"},
		{Name: TinyImages, Include: []string{"tiny_images/**"}, OutputDir: "images"},
		{Name: Fonts, Include: []string{"fonts/*.{woff,woff2,ttf,otf,eot}"}, OutputDir: "fonts"},
		{Name: Downloads, Include: []string{"downloads/**"}, OutputDir: "downloads"},
	}
}

// ApplyOverrides replaces default globs with configured ones and drops
// disabled categories. Overrides naming an unknown category are rejected.
func ApplyOverrides(defs []Definition, overrides map[string]config.CategoryOverride) ([]Definition, error) {
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	for name := range overrides {
		if !known[name] {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "unknown category in overrides: "+name)
		}
	}

	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		o, ok := overrides[d.Name]
		if !ok {
			out = append(out, d)
			continue
		}
		if o.Disabled {
			continue
		}
		if len(o.Include) > 0 {
			d.Include = o.Include
		}
		if len(o.Exclude) > 0 {
			d.Exclude = o.Exclude
		}
		if len(o.Watch) > 0 {
			d.Watch = o.Watch
		}
		out = append(out, d)
	}
	return out, nil
}

// Category is one entry of the table.
type Category struct {
	Definition
	Matcher  *Matcher
	Pipeline *pipeline.Pipeline
}

// PipelineFactory builds the pipeline of one category.
type PipelineFactory func(def Definition, m *Matcher) (*pipeline.Pipeline, error)

// Table is the immutable asset category table.
type Table struct {
	categories []*Category
	byName     map[string]*Category
}

// NewTable builds a table, attaching a pipeline to every definition.
func NewTable(defs []Definition, factory PipelineFactory) (*Table, error) {
	t := &Table{byName: make(map[string]*Category, len(defs))}

	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "category without a name")
		}
		if _, dup := t.byName[def.Name]; dup {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "duplicate category: "+def.Name)
		}

		m, err := NewMatcher(def.Name, def.Include, def.Exclude, def.Watch)
		if err != nil {
			return nil, err
		}

		p, err := factory(def, m)
		if err != nil {
			return nil, fmt.Errorf("building %s pipeline: %w", def.Name, err)
		}

		c := &Category{Definition: def, Matcher: m, Pipeline: p}
		t.categories = append(t.categories, c)
		t.byName[def.Name] = c
	}

	return t, nil
}

// Match returns every category a change to rel should trigger, in table order.
func (t *Table) Match(rel string) []*Category {
	var out []*Category
	for _, c := range t.categories {
		if c.Matcher.Triggers(rel) {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the category called name.
func (t *Table) Get(name string) (*Category, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Categories returns all categories in table order.
func (t *Table) Categories() []*Category {
	out := make([]*Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Names returns the sorted category names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.categories))
	for _, c := range t.categories {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// String renders a one-line summary, used in debug logs.
func (c *Category) String() string {
	return fmt.Sprintf("%s include=[%s] exclude=[%s] -> %s",
		c.Name, strings.Join(c.Include, ","), strings.Join(c.Exclude, ","), c.OutputDir)
}
