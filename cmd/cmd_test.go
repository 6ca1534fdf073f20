package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/siteforge/internal/assets"
	"github.com/conneroisu/siteforge/internal/build"
)

// execute runs the root command in a fresh working directory state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	categoriesFormat, categoriesProduction = "table", false
	buildClean = false
	versionFormat, versionShort = "text", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFiles(t *testing.T, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(body), 0o644))
	}
}

func TestCategoriesJSON(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "categories", "--format", "json", "--production")
	require.NoError(t, err)

	var infos []build.CategoryInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, len(assets.Defaults()))
	assert.Equal(t, assets.HTML, infos[0].Name)
	assert.Equal(t, []string{"strip-comments", "minify"}, infos[0].Stages)
}

func TestCategoriesTable(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "Styles")
	assert.Contains(t, out, "sass > prefix > concat > rename > sourcemap")
}

func TestCategoriesRejectsUnknownFormat(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "categories", "--format", "xml")
	assert.Error(t, err)
}

func TestCategoriesHonoursOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFiles(t, map[string]string{
		".siteforge.yml": "categories:\n  downloads:\n    disabled: true\n  scripts:\n    include: [\"scripts/**/*.js\"]\n",
	})

	out, err := execute(t, "categories", "-f", "json")
	require.NoError(t, err)

	var infos []build.CategoryInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Len(t, infos, len(assets.Defaults())-1)
	for _, info := range infos {
		if info.Name == assets.Scripts {
			assert.Equal(t, []string{"scripts/**/*.js"}, info.Include)
		}
	}
}

func TestConfigPrintsEffectiveYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFiles(t, map[string]string{
		".siteforge.yml": "server:\n  port: 8080\nimages:\n  tinypng_key: supersecret\n",
	})
	t.Setenv("SITEFORGE_OUTPUT_PROD", "public")

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 8080")
	assert.Contains(t, out, "prod: public")
	assert.Contains(t, out, "source: src")
	assert.NotContains(t, out, "supersecret")
	assert.Contains(t, out, redacted)
}

func TestExplicitConfigMustExist(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "--config", "missing.yml", "config")
	assert.Error(t, err)
}

func TestInvalidConfigRejected(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFiles(t, map[string]string{".siteforge.yml": "output:\n  dev: same\n  prod: same\n"})

	_, err := execute(t, "config")
	assert.Error(t, err)
}

func TestBuildCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFiles(t, map[string]string{
		".siteforge.yml": "tools:\n  sass: [sh, -c, cat, sh]\n  prefixer: [sh, -c, cat, sh]\n",
		"src/index.html": "<html><body><!-- drop --><p>hi</p></body></html>",
		"src/css/a.css":  "p { color: blue; }\n",
	})

	out, err := execute(t, "build", "--clean")
	require.NoError(t, err)
	assert.Contains(t, out, "styles")
	assert.Contains(t, out, "total")
	assert.NotContains(t, out, "failed")

	html, err := os.ReadFile(filepath.Join("build", "index.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(html), "drop")
	assert.FileExists(t, filepath.Join("build", "css", build.StyleOutput))
}

func TestBuildCommandReportsFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFiles(t, map[string]string{
		".siteforge.yml": "tools:\n  sass: [sh, -c, \"echo broken >&2; exit 1\", sh]\n",
		"src/index.html": "<p>hi</p>",
		"src/css/a.scss": "p {",
	})

	out, err := execute(t, "build")
	require.Error(t, err)
	assert.Contains(t, out, "failed")
	assert.FileExists(t, filepath.Join("build", "index.html"))
}

func TestPublishNeedsEndpoint(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "publish")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	out, err = execute(t, "version", "-f", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "go_version")
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat("JSON", outputFormats))
	assert.Error(t, ValidateFormat("csv", outputFormats))
}

func TestRootAcceptsDevFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	// No src directory, so dev mode stops at the source check after the
	// flags have been parsed and bound.
	_, err := execute(t, "-p", "8080", "--host", "127.0.0.1", "--debounce", "50ms", "--max-runs", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source root")
	assert.Equal(t, 8080, viper.GetInt("server.port"))
	assert.Equal(t, 50*time.Millisecond, viper.GetDuration("watch.debounce"))
	assert.Equal(t, 2, viper.GetInt("dev.max_concurrent_runs"))

	_, err = execute(t, "--port", "70000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between 0 and 65535")
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("0"))
	assert.NoError(t, ValidatePort("8080"))
	assert.Error(t, ValidatePort("70000"))
	assert.Error(t, ValidatePort("http"))
}
