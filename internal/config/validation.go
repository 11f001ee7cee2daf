package config

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	write("Errors", vr.Errors)
	write("Warnings", vr.Warnings)
	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails checks a loaded configuration against the site
// on disk. Errors make a build fail; warnings point at settings that work
// but probably are not what was meant.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateSiteDetails(config, result)
	validateSnippetsDetails(config, result)
	validateCSSDetails(config, result)
	validateBuildConfigDetails(&config.Build, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			fmt.Sprintf("port %d is privileged and may need root", config.Port),
			"Use the default 8080")
	}

	if err := validateHostname(config.Host); err != nil {
		result.addError("server.host", config.Host, err.Error(),
			"Use localhost, an IP address or a plain hostname")
	} else if config.Host == "0.0.0.0" || config.Host == "::" {
		result.addWarning("server.host", config.Host,
			"the dev server is reachable from other machines")
	}

	for _, origin := range config.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			result.addWarning("server.allowed_origins", origin,
				"origin has no http:// or https:// scheme and only matches by host")
		}
	}
}

func validateSiteDetails(config *Config, result *ValidationResult) {
	for _, f := range []struct{ field, path string }{
		{"site.template", config.TemplatePath()},
		{"site.stylesheet", config.StylesheetPath()},
	} {
		field, p := f.field, f.path
		info, err := os.Stat(p)
		switch {
		case err != nil:
			result.addError(field, p, "file does not exist",
				fmt.Sprintf("Create %s or point %s at an existing file", p, field))
		case info.IsDir():
			result.addError(field, p, "is a directory, not a file")
		}
	}

	if !pathExists(config.AssetsPath()) {
		result.addWarning("site.assets_dir", config.AssetsPath(),
			"directory does not exist; the assets task will copy nothing")
	}

	out, err := filepath.Abs(config.OutputPath())
	if err == nil {
		root, rerr := filepath.Abs(config.Site.Root)
		if rerr == nil && out == root {
			result.addError("site.output_dir", config.Site.OutputDir,
				"output directory is the site root; build --clean would delete the sources",
				"Use a dedicated directory such as dist")
		}
	}
}

func validateSnippetsDetails(config *Config, result *ValidationResult) {
	if !pathExists(config.SnippetSourcePath()) {
		result.addWarning("snippets.source_dir", config.SnippetSourcePath(),
			"directory does not exist; no fragments will be generated")
	}

	if config.Snippets.Command != "" {
		if err := validateBuildCommand(config.Snippets.Command); err != nil {
			result.addError("snippets.command", config.Snippets.Command, err.Error(),
				"The command is split into words and run directly, not through a shell")
		}
	}

	if config.Snippets.Theme != "" && !KnownTheme(config.Snippets.Theme) {
		result.addError("snippets.theme", config.Snippets.Theme, "unknown chroma style",
			"Try monokai, github or dracula")
	}
}

func validateCSSDetails(config *Config, result *ValidationResult) {
	ext := strings.ToLower(filepath.Ext(config.Site.Stylesheet))
	if ext != ".scss" && ext != ".sass" {
		return
	}
	if err := validateBuildCommand(config.CSS.Command); err != nil {
		result.addError("css.command", config.CSS.Command, err.Error())
		return
	}
	if _, err := exec.LookPath(config.CSS.Command); err != nil {
		result.addWarning("css.command", config.CSS.Command,
			"not found in PATH; the css task will fail",
			"Install dart-sass or set css.command")
	}
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	if config.Workers < 1 {
		result.addError("build.workers", config.Workers, "must be at least 1")
	} else if limit := runtime.NumCPU() * 4; config.Workers > limit {
		result.addWarning("build.workers", config.Workers,
			fmt.Sprintf("more workers than useful on this machine (%d)", limit))
	}

	if config.Debounce < 0 {
		result.addError("build.debounce", config.Debounce, "must not be negative")
	}
}

// Helper validation functions

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if host == "" || net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func validateBuildCommand(command string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">"}
	for _, char := range dangerousChars {
		if strings.Contains(command, char) {
			return fmt.Errorf("contains potentially dangerous character: %s", char)
		}
	}

	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command cannot be empty")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
