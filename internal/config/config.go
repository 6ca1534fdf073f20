// Package config provides configuration management for siteforge using
// Viper for loading from files, environment variables and command-line flags.
//
// The configuration file is .siteforge.yml in the working directory. Every
// key can be overridden with a SITEFORGE_<SECTION>_<KEY> environment
// variable. Defaults reproduce the conventional layout: sources under src/,
// the dev server's tree under dist/ and production output under build/.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/conneroisu/siteforge/internal/errors"
)

type Config struct {
	Source     string                      `mapstructure:"source" yaml:"source"`
	Output     OutputConfig                `mapstructure:"output" yaml:"output"`
	Server     ServerConfig                `mapstructure:"server" yaml:"server"`
	Dev        DevConfig                   `mapstructure:"dev" yaml:"dev"`
	Watch      WatchConfig                 `mapstructure:"watch" yaml:"watch"`
	Tools      ToolsConfig                 `mapstructure:"tools" yaml:"tools"`
	Images     ImagesConfig                `mapstructure:"images" yaml:"images"`
	Categories map[string]CategoryOverride `mapstructure:"categories" yaml:"categories,omitempty"`
	Publish    PublishConfig               `mapstructure:"publish" yaml:"publish"`
	Log        LogConfig                   `mapstructure:"log" yaml:"log"`
}

type OutputConfig struct {
	Dev  string `mapstructure:"dev" yaml:"dev"`
	Prod string `mapstructure:"prod" yaml:"prod"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Open bool   `mapstructure:"open" yaml:"open"`
}

type DevConfig struct {
	InitialBuild      bool `mapstructure:"initial_build" yaml:"initial_build"`
	MaxConcurrentRuns int  `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
}

type WatchConfig struct {
	// Debounce coalesces repeated events per path and category. Zero disables it.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// ToolsConfig holds the argv prefix of each external transform.
type ToolsConfig struct {
	Sass     []string `mapstructure:"sass" yaml:"sass"`
	Pug      []string `mapstructure:"pug" yaml:"pug"`
	Prefixer []string `mapstructure:"prefixer" yaml:"prefixer"`
}

type ImagesConfig struct {
	TinyPNGKey      string `mapstructure:"tinypng_key" yaml:"tinypng_key"`
	TinyPNGEndpoint string `mapstructure:"tinypng_endpoint" yaml:"tinypng_endpoint"`
}

// CategoryOverride replaces the default globs of one asset category.
type CategoryOverride struct {
	Include  []string `mapstructure:"include" yaml:"include,omitempty"`
	Exclude  []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
	Watch    []string `mapstructure:"watch" yaml:"watch,omitempty"`
	Disabled bool     `mapstructure:"disabled" yaml:"disabled,omitempty"`
}

type PublishConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"-"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultTinyPNGEndpoint is the shrink endpoint of the TinyPNG API.
const DefaultTinyPNGEndpoint = "https://api.tinify.com/shrink"

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source", "src")
	v.SetDefault("output.dev", "dist")
	v.SetDefault("output.prod", "build")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.open", false)
	v.SetDefault("dev.initial_build", true)
	v.SetDefault("dev.max_concurrent_runs", 0)
	v.SetDefault("watch.debounce", time.Duration(0))
	v.SetDefault("tools.sass", []string{"sass"})
	v.SetDefault("tools.pug", []string{"pug"})
	v.SetDefault("tools.prefixer", []string{"npx", "postcss", "--use", "autoprefixer"})
	v.SetDefault("images.tinypng_endpoint", DefaultTinyPNGEndpoint)
	v.SetDefault("publish.region", "us-east-1")
	v.SetDefault("publish.use_ssl", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applying defaults and validation.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "decoding configuration: "+err.Error())
	}

	// Env overrides arrive as a single string; viper does not split them.
	config.Tools.Sass = splitArgv(config.Tools.Sass)
	config.Tools.Pug = splitArgv(config.Tools.Pug)
	config.Tools.Prefixer = splitArgv(config.Tools.Prefixer)

	if config.Categories == nil {
		config.Categories = make(map[string]CategoryOverride)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func splitArgv(argv []string) []string {
	if len(argv) == 1 && strings.ContainsAny(argv[0], " \t") {
		return strings.Fields(argv[0])
	}
	return argv
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	for name, p := range map[string]string{
		"source":      config.Source,
		"output.dev":  config.Output.Dev,
		"output.prod": config.Output.Prod,
	} {
		if err := validatePath(p); err != nil {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if overlaps(config.Output.Dev, config.Output.Prod) {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "output.dev and output.prod must not contain each other")
	}
	if overlaps(config.Source, config.Output.Dev) || overlaps(config.Source, config.Output.Prod) {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "source and the output directories must not contain each other")
	}

	if config.Dev.MaxConcurrentRuns < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "dev.max_concurrent_runs must be >= 0")
	}
	if config.Watch.Debounce < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "watch.debounce must be >= 0")
	}

	for name, override := range config.Categories {
		for _, pattern := range concat(override.Include, override.Exclude, override.Watch) {
			if !doublestar.ValidatePattern(strings.TrimPrefix(pattern, "!")) {
				return errors.ErrInvalidPattern(name, pattern)
			}
		}
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "log.format must be text or json")
	}

	return nil
}

// overlaps reports whether a and b are the same directory or one contains
// the other. Unresolvable paths count as overlapping.
func overlaps(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return true
	}
	return within(absA, absB) || within(absB, absA)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %q", char)
			}
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if cleanPath == "." || cleanPath == "/" {
		return fmt.Errorf("path %q would address the whole tree", path)
	}

	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// Addr returns the dev server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
