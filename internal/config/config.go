// Package config provides configuration management for koisite using Viper
// for loading from files, environment variables, and command-line flags.
//
// Every path in the configuration is relative to Site.Root unless it is
// absolute. Path resolves a configured path against the root.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/viper"
)

type Config struct {
	Site     SiteConfig     `mapstructure:"site" yaml:"site" json:"site"`
	Snippets SnippetsConfig `mapstructure:"snippets" yaml:"snippets" json:"snippets"`
	CSS      CSSConfig      `mapstructure:"css" yaml:"css" json:"css"`
	HTML     HTMLConfig     `mapstructure:"html" yaml:"html" json:"html"`
	Assets   AssetsConfig   `mapstructure:"assets" yaml:"assets" json:"assets"`
	Build    BuildConfig    `mapstructure:"build" yaml:"build" json:"build"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
}

type SiteConfig struct {
	Root       string `mapstructure:"root" yaml:"root" json:"root"`
	Template   string `mapstructure:"template" yaml:"template" json:"template"`
	Stylesheet string `mapstructure:"stylesheet" yaml:"stylesheet" json:"stylesheet"`
	AssetsDir  string `mapstructure:"assets_dir" yaml:"assets_dir" json:"assets_dir"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
}

type SnippetsConfig struct {
	SourceDir   string `mapstructure:"source_dir" yaml:"source_dir" json:"source_dir"`
	FragmentDir string `mapstructure:"fragment_dir" yaml:"fragment_dir" json:"fragment_dir"`
	Extension   string `mapstructure:"extension" yaml:"extension" json:"extension"`
	// Command replaces the built-in highlighter. It runs with SourceDir as
	// its working directory.
	Command string `mapstructure:"command" yaml:"command" json:"command"`
	// Theme names a chroma style whose colours are emitted for the
	// highlight classes.
	Theme string `mapstructure:"theme" yaml:"theme" json:"theme"`
}

type CSSConfig struct {
	Command string   `mapstructure:"command" yaml:"command" json:"command"`
	Args    []string `mapstructure:"args" yaml:"args" json:"args"`
	Minify  bool     `mapstructure:"minify" yaml:"minify" json:"minify"`
}

type HTMLConfig struct {
	Minify bool `mapstructure:"minify" yaml:"minify" json:"minify"`
}

type AssetsConfig struct {
	Optimize    bool `mapstructure:"optimize" yaml:"optimize" json:"optimize"`
	JPEGQuality int  `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

type BuildConfig struct {
	Workers  int           `mapstructure:"workers" yaml:"workers" json:"workers"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Open           bool     `mapstructure:"open" yaml:"open" json:"open"`
	LiveReload     bool     `mapstructure:"live_reload" yaml:"live_reload" json:"live_reload"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Load reads the configuration from viper, applies defaults for unset
// values and validates the result.
func Load() (*Config, error) {
	bindEnv(reflect.TypeOf(Config{}), "")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// bindEnv registers every configuration key with viper so KOISITE_ variables
// are seen by Unmarshal even when no file or flag mentions the key.
func bindEnv(t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if field.Type.Kind() == reflect.Struct {
			bindEnv(field.Type, key)
			continue
		}
		_ = viper.BindEnv(key)
	}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

func applyDefaults(config *Config) {
	if config.Site.Root == "" {
		config.Site.Root = "."
	}
	if config.Site.Template == "" {
		config.Site.Template = "index.html"
	}
	if config.Site.Stylesheet == "" {
		config.Site.Stylesheet = "style.scss"
	}
	if config.Site.AssetsDir == "" {
		config.Site.AssetsDir = "assets"
	}
	if config.Site.OutputDir == "" {
		config.Site.OutputDir = "dist"
	}

	if config.Snippets.SourceDir == "" {
		config.Snippets.SourceDir = "snippets"
	}
	if config.Snippets.FragmentDir == "" {
		config.Snippets.FragmentDir = filepath.Join(config.Snippets.SourceDir, "out")
	}
	if config.Snippets.Extension == "" {
		config.Snippets.Extension = ".koi"
	}
	if !strings.HasPrefix(config.Snippets.Extension, ".") {
		config.Snippets.Extension = "." + config.Snippets.Extension
	}

	if config.CSS.Command == "" {
		config.CSS.Command = "sass"
	}
	if !viper.IsSet("css.args") && len(config.CSS.Args) == 0 {
		config.CSS.Args = []string{"--no-source-map"}
	}

	// Booleans default to true, so only an explicit setting turns them off
	// (workaround for viper bool handling).
	config.CSS.Minify = boolDefault("css.minify", true)
	config.HTML.Minify = boolDefault("html.minify", true)
	config.Assets.Optimize = boolDefault("assets.optimize", true)
	config.Server.LiveReload = boolDefault("server.live_reload", true)
	if viper.IsSet("server.open") {
		config.Server.Open = viper.GetBool("server.open")
	}

	if config.Build.Workers == 0 {
		config.Build.Workers = 4
	}
	if config.Build.Debounce == 0 {
		config.Build.Debounce = 300 * time.Millisecond
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if !viper.IsSet("server.port") && config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func boolDefault(key string, def bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return def
}

// Path resolves p against the site root.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Site.Root, p)
}

// TemplatePath is the resolved template file.
func (c *Config) TemplatePath() string { return c.Path(c.Site.Template) }

// StylesheetPath is the resolved stylesheet source.
func (c *Config) StylesheetPath() string { return c.Path(c.Site.Stylesheet) }

// AssetsPath is the resolved asset source directory.
func (c *Config) AssetsPath() string { return c.Path(c.Site.AssetsDir) }

// OutputPath is the resolved output directory.
func (c *Config) OutputPath() string { return c.Path(c.Site.OutputDir) }

// SnippetSourcePath is the resolved snippet source directory.
func (c *Config) SnippetSourcePath() string { return c.Path(c.Snippets.SourceDir) }

// FragmentPath is the resolved fragment directory.
func (c *Config) FragmentPath() string { return c.Path(c.Snippets.FragmentDir) }

// HTMLOutputPath is where the assembled page is written.
func (c *Config) HTMLOutputPath() string {
	return filepath.Join(c.OutputPath(), filepath.Base(c.Site.Template))
}

// CSSOutputPath is where the compiled stylesheet is written.
func (c *Config) CSSOutputPath() string {
	base := filepath.Base(c.Site.Stylesheet)
	return filepath.Join(c.OutputPath(), strings.TrimSuffix(base, filepath.Ext(base))+".css")
}

// AssetsOutputPath is where optimized assets are written.
func (c *Config) AssetsOutputPath() string {
	return filepath.Join(c.OutputPath(), filepath.Base(c.Site.AssetsDir))
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	for key, p := range map[string]string{
		"site.template":         config.Site.Template,
		"site.stylesheet":       config.Site.Stylesheet,
		"site.assets_dir":       config.Site.AssetsDir,
		"site.output_dir":       config.Site.OutputDir,
		"snippets.source_dir":   config.Snippets.SourceDir,
		"snippets.fragment_dir": config.Snippets.FragmentDir,
	} {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	if strings.ContainsAny(config.Snippets.Extension, `/\ `) {
		return fmt.Errorf("snippets.extension %q must not contain separators or spaces", config.Snippets.Extension)
	}

	if config.Snippets.Theme != "" {
		if !KnownTheme(config.Snippets.Theme) {
			return fmt.Errorf("snippets.theme: unknown chroma style %q", config.Snippets.Theme)
		}
	}

	if config.Build.Workers < 1 {
		return fmt.Errorf("build.workers must be at least 1, got %d", config.Build.Workers)
	}
	if config.Build.Debounce < 0 {
		return fmt.Errorf("build.debounce must not be negative")
	}

	if config.Assets.JPEGQuality < 0 || config.Assets.JPEGQuality > 100 {
		return fmt.Errorf("assets.jpeg_quality %d is not in range 0-100", config.Assets.JPEGQuality)
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", config.Log.Format)
	}

	return nil
}

// KnownTheme reports whether name is a registered chroma style.
func KnownTheme(name string) bool {
	style := styles.Get(name)
	return style != styles.Fallback || strings.EqualFold(name, styles.Fallback.Name)
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	return nil
}

// validatePath rejects relative paths that climb out of the site root and
// paths containing shell metacharacters.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if !filepath.IsAbs(cleanPath) && (cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator))) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
