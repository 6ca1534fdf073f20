package build

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/siteforge/internal/assets"
	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
	"github.com/conneroisu/siteforge/internal/transform"
)

func stageNames(stages []pipeline.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}

func TestStagesPerProfile(t *testing.T) {
	deps := Deps{Config: testConfig("/site"), SourceRoot: "/site/src"}
	tiny := transform.NewTinyPNG("", config.DefaultTinyPNGEndpoint, nil)

	cases := []struct {
		category string
		profile  Profile
		want     []string
	}{
		{assets.Styles, ProfileDev, []string{"sass", "prefix", "concat", "rename", "sourcemap"}},
		{assets.Styles, ProfileProduction, []string{"sass", "prefix", "concat", "rename", "strip-comments", "minify"}},
		{assets.HTML, ProfileDev, []string{"copy"}},
		{assets.HTML, ProfileProduction, []string{"strip-comments", "minify"}},
		{assets.Pug, ProfileDev, []string{"pug"}},
		{assets.Pug, ProfileProduction, []string{"pug", "strip-comments", "minify"}},
		{assets.Markdown, ProfileProduction, []string{"markdown", "minify"}},
		{assets.Scripts, ProfileDev, []string{"copy"}},
		{assets.Scripts, ProfileProduction, []string{"copy", "strip-comments", "minify"}},
		{assets.Images, ProfileProduction, []string{"copy"}},
		{assets.TinyImages, ProfileDev, []string{"tinypng"}},
		{assets.Fonts, ProfileDev, []string{"copy"}},
		{assets.Downloads, ProfileDev, []string{"copy"}},
	}
	for _, tc := range cases {
		t.Run(tc.category+"/"+tc.profile.String(), func(t *testing.T) {
			stages, err := Stages(tc.profile, tc.category, deps, tiny)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stageNames(stages))
		})
	}
}

func TestStagesUnknownCategory(t *testing.T) {
	_, err := Stages(ProfileDev, "videos", Deps{Config: testConfig("/site")}, nil)
	assert.True(t, errors.IsConfigError(err))
}

func TestNewTableUnknownOverride(t *testing.T) {
	cfg := testConfig("/site")
	cfg.Categories["videos"] = config.CategoryOverride{Include: []string{"videos/**"}}
	mem := afero.NewMemMapFs()

	_, err := NewTable(ProfileDev, Deps{Config: cfg, Source: mem, Output: mem})
	assert.True(t, errors.IsConfigError(err))
}

func TestNewTableOutputDirs(t *testing.T) {
	mem := afero.NewMemMapFs()
	table, err := NewTable(ProfileDev, Deps{Config: testConfig("/site"), Source: mem, Output: mem})
	require.NoError(t, err)

	for _, def := range assets.Defaults() {
		c, ok := table.Get(def.Name)
		require.True(t, ok, def.Name)
		assert.Equal(t, def.OutputDir, c.Pipeline.OutputDir())
	}
}

func TestDescribe(t *testing.T) {
	cfg := testConfig("/site")
	cfg.Categories[assets.Fonts] = config.CategoryOverride{Disabled: true}

	infos, err := Describe(ProfileProduction, cfg)
	require.NoError(t, err)
	assert.Len(t, infos, len(assets.Defaults())-1)

	for _, info := range infos {
		assert.NotEqual(t, assets.Fonts, info.Name)
		if info.Name == assets.Styles {
			assert.Equal(t, "css", info.OutputDir)
			assert.Equal(t, []string{"css/_*.{sass,scss}"}, info.Watch)
			assert.Contains(t, info.Stages, "minify")
		}
	}
}
