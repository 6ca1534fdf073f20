package build

import (
	"net/http"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/assets"
	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/metrics"
	"github.com/conneroisu/siteforge/internal/pipeline"
	"github.com/conneroisu/siteforge/internal/transform"
)

// Profile selects the stage list of every category.
type Profile int

const (
	ProfileDev Profile = iota
	ProfileProduction
)

func (p Profile) String() string {
	if p == ProfileProduction {
		return "production"
	}
	return "dev"
}

// StyleOutput is the single stylesheet the styles category produces.
const StyleOutput = "style.min.css"

// Deps carries what the category pipelines are built from.
type Deps struct {
	Config *config.Config
	// SourceRoot is the absolute source root used by external tools.
	SourceRoot string
	Source     afero.Fs
	Output     afero.Fs
	Notifier   pipeline.Notifier
	Logger     logging.Logger
	Recorder   metrics.Recorder
	HTTPClient *http.Client
}

// NewTable resolves the category table for profile.
func NewTable(profile Profile, deps Deps) (*assets.Table, error) {
	defs, err := assets.ApplyOverrides(assets.Defaults(), deps.Config.Categories)
	if err != nil {
		return nil, err
	}

	tiny := transform.NewTinyPNG(deps.Config.Images.TinyPNGKey, deps.Config.Images.TinyPNGEndpoint, deps.HTTPClient)

	return assets.NewTable(defs, func(def assets.Definition, m *assets.Matcher) (*pipeline.Pipeline, error) {
		stages, err := Stages(profile, def.Name, deps, tiny)
		if err != nil {
			return nil, err
		}
		return pipeline.New(pipeline.Options{
			Category:  def.Name,
			Stages:    stages,
			OutputDir: def.OutputDir,
			Source:    deps.Source,
			Output:    deps.Output,
			Selector:  m,
			Notifier:  deps.Notifier,
			Logger:    deps.Logger,
			Recorder:  deps.Recorder,
		})
	})
}

// Stages returns the stage list of one category under profile.
func Stages(profile Profile, category string, deps Deps, tiny *transform.TinyPNG) ([]pipeline.Stage, error) {
	cfg := deps.Config
	prod := profile == ProfileProduction
	tool := func(argv []string) transform.Command {
		return transform.Command{Argv: argv, Dir: deps.SourceRoot}
	}

	switch category {
	case assets.HTML:
		if prod {
			return []pipeline.Stage{transform.StripComments(), transform.Minify()}, nil
		}
		return []pipeline.Stage{transform.Copy("")}, nil

	case assets.Pug:
		pug := transform.Pug(tool(cfg.Tools.Pug), transform.PugOptions{
			SourceRoot: deps.SourceRoot,
			BaseDir:    filepath.Join(deps.SourceRoot, "pug"),
			Pretty:     !prod,
		})
		if prod {
			return []pipeline.Stage{pug, transform.StripComments(), transform.Minify()}, nil
		}
		return []pipeline.Stage{pug}, nil

	case assets.Markdown:
		if prod {
			return []pipeline.Stage{transform.Markdown(), transform.Minify()}, nil
		}
		return []pipeline.Stage{transform.Markdown()}, nil

	case assets.Styles:
		sass := transform.Sass(tool(cfg.Tools.Sass), transform.SassOptions{
			Compressed: prod,
			SourceMap:  !prod,
			LoadPaths:  []string{filepath.Join(deps.SourceRoot, "css")},
		})
		prefix := transform.Prefix(tool(cfg.Tools.Prefixer), !prod)
		if prod {
			return []pipeline.Stage{
				sass, prefix, transform.Concat(StyleOutput), transform.Rename(StyleOutput),
				transform.StripComments(), transform.Minify(),
			}, nil
		}
		return []pipeline.Stage{
			sass, prefix, transform.Concat(StyleOutput), transform.Rename(StyleOutput),
			transform.ExternalizeSourceMap(),
		}, nil

	case assets.Scripts:
		if prod {
			return []pipeline.Stage{transform.Copy("js"), transform.StripComments(), transform.Minify()}, nil
		}
		return []pipeline.Stage{transform.Copy("js")}, nil

	case assets.Images:
		return []pipeline.Stage{transform.Copy("just_images")}, nil

	case assets.TinyImages:
		return []pipeline.Stage{tiny.Stage("tiny_images")}, nil

	case assets.Fonts:
		return []pipeline.Stage{transform.Copy("fonts")}, nil

	case assets.Downloads:
		return []pipeline.Stage{transform.Copy("downloads")}, nil
	}

	return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "no stages defined for category "+category)
}

// CategoryInfo describes one resolved category for display.
type CategoryInfo struct {
	Name      string   `json:"name" yaml:"name"`
	Include   []string `json:"include" yaml:"include"`
	Exclude   []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Watch     []string `json:"watch,omitempty" yaml:"watch,omitempty"`
	OutputDir string   `json:"output_dir" yaml:"output_dir"`
	Stages    []string `json:"stages" yaml:"stages"`
}

// Describe resolves the category table of cfg under profile without
// touching the filesystem.
func Describe(profile Profile, cfg *config.Config) ([]CategoryInfo, error) {
	defs, err := assets.ApplyOverrides(assets.Defaults(), cfg.Categories)
	if err != nil {
		return nil, err
	}

	deps := Deps{Config: cfg, SourceRoot: cfg.Source}
	tiny := transform.NewTinyPNG(cfg.Images.TinyPNGKey, cfg.Images.TinyPNGEndpoint, nil)

	out := make([]CategoryInfo, 0, len(defs))
	for _, def := range defs {
		stages, err := Stages(profile, def.Name, deps, tiny)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(stages))
		for i, s := range stages {
			names[i] = s.Name()
		}
		out = append(out, CategoryInfo{
			Name:      def.Name,
			Include:   def.Include,
			Exclude:   def.Exclude,
			Watch:     def.Watch,
			OutputDir: def.OutputDir,
			Stages:    names,
		})
	}
	return out, nil
}
