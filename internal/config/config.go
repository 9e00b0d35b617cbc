// Package config loads runtime settings from defaults, WIKITIKZ_* environment
// variables and command line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const envPrefix = "WIKITIKZ_"

// Config holds runtime configuration for the wiki server and the render CLI.
type Config struct {
	RootDir       string
	AssetsDir     string
	LatexBin      string
	DvisvgmBin    string
	DocumentClass string
	LogRulesFile  string
	SettingsFile  string
	PreambleNames []string
	RenderTimeout time.Duration
	QuietPeriod   time.Duration
	Port          int
	MaxAscent     int
	AutoOpen      bool
	DarkModeFirst bool
	Verbose       bool
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		RootDir:       ".",
		AutoOpen:      true,
		DarkModeFirst: true,
		AssetsDir:     "static",
		LatexBin:      "latex",
		DvisvgmBin:    "dvisvgm",
		PreambleNames: []string{".tikz-preamble.tex", ".tikz-preamble", "tikz-preamble.tex"},
		RenderTimeout: 30 * time.Second,
		QuietPeriod:   250 * time.Millisecond,
		MaxAscent:     32,
	}
}

// RegisterFlags attaches server flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "root directory containing markdown files")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind the HTTP server (0 = auto-assign, default: auto)")
	fs.BoolVar(&cfg.AutoOpen, "auto-open", cfg.AutoOpen, "open the browser automatically after start")
	fs.BoolVar(&cfg.DarkModeFirst, "dark", cfg.DarkModeFirst, "enable dark theme by default")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "directory containing built frontend assets")
	fs.StringVar(&cfg.SettingsFile, "settings", cfg.SettingsFile, "settings file (default <root>/.wikitikz/settings.json)")
	RegisterRenderFlags(fs, cfg)
}

// RegisterRenderFlags attaches the TeX toolchain flags shared by every command.
func RegisterRenderFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.LatexBin, "latex", cfg.LatexBin, "latex binary")
	fs.StringVar(&cfg.DvisvgmBin, "dvisvgm", cfg.DvisvgmBin, "dvisvgm binary")
	fs.StringVar(&cfg.DocumentClass, "document-class", cfg.DocumentClass, "document class line written ahead of every diagram")
	fs.DurationVar(&cfg.RenderTimeout, "render-timeout", cfg.RenderTimeout, "timeout for a single diagram render")
	fs.DurationVar(&cfg.QuietPeriod, "log-quiet", cfg.QuietPeriod, "quiet period before buffered TeX log lines are classified")
	fs.StringVar(&cfg.LogRulesFile, "log-rules", cfg.LogRulesFile, "YAML file replacing the built-in TeX log rules")
	fs.StringSliceVar(&cfg.PreambleNames, "preamble-name", cfg.PreambleNames, "preamble file names in priority order")
	fs.IntVar(&cfg.MaxAscent, "preamble-depth", cfg.MaxAscent, "maximum directories to ascend when looking for a preamble")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging")
}

// envBinding maps one WIKITIKZ_* variable onto a Config field.
type envBinding struct {
	key string
	set func(*Config, string) error
}

var envBindings = []envBinding{
	{"ROOT", bind(func(c *Config) *string { return &c.RootDir }, parseString)},
	{"PORT", bind(func(c *Config) *int { return &c.Port }, strconv.Atoi)},
	{"AUTO_OPEN", bind(func(c *Config) *bool { return &c.AutoOpen }, strconv.ParseBool)},
	{"DARK", bind(func(c *Config) *bool { return &c.DarkModeFirst }, strconv.ParseBool)},
	{"ASSETS", bind(func(c *Config) *string { return &c.AssetsDir }, parseString)},
	{"SETTINGS", bind(func(c *Config) *string { return &c.SettingsFile }, parseString)},
	{"LATEX", bind(func(c *Config) *string { return &c.LatexBin }, parseString)},
	{"DVISVGM", bind(func(c *Config) *string { return &c.DvisvgmBin }, parseString)},
	{"DOCUMENT_CLASS", bind(func(c *Config) *string { return &c.DocumentClass }, parseString)},
	{"LOG_RULES", bind(func(c *Config) *string { return &c.LogRulesFile }, parseString)},
	{"RENDER_TIMEOUT", bind(func(c *Config) *time.Duration { return &c.RenderTimeout }, time.ParseDuration)},
	{"LOG_QUIET", bind(func(c *Config) *time.Duration { return &c.QuietPeriod }, time.ParseDuration)},
	{"PREAMBLE_NAMES", bind(func(c *Config) *[]string { return &c.PreambleNames }, parseList)},
	{"PREAMBLE_DEPTH", bind(func(c *Config) *int { return &c.MaxAscent }, strconv.Atoi)},
	{"VERBOSE", bind(func(c *Config) *bool { return &c.Verbose }, strconv.ParseBool)},
}

func bind[T any](field func(*Config) *T, parse func(string) (T, error)) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := parse(raw)
		if err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
}

func parseString(raw string) (string, error) { return raw, nil }

func parseList(raw string) ([]string, error) {
	list := splitList(raw)
	if len(list) == 0 {
		return nil, errors.New("empty list")
	}
	return list, nil
}

// ApplyEnvOverrides reads WIKITIKZ_* variables into cfg. Blank and malformed
// values leave the field untouched.
func ApplyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		raw := strings.TrimSpace(os.Getenv(envPrefix + b.key))
		if raw == "" {
			continue
		}
		_ = b.set(cfg, raw)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Finalize resolves paths and validates cfg, reporting every invalid value
// at once.
func Finalize(cfg *Config) error {
	var errs []error
	invalid := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Port < 0 || cfg.Port > 65535 {
		invalid("invalid port: %d", cfg.Port)
	}
	if cfg.RenderTimeout <= 0 {
		invalid("invalid render timeout: %s", cfg.RenderTimeout)
	}
	if cfg.QuietPeriod <= 0 {
		invalid("invalid log quiet period: %s", cfg.QuietPeriod)
	}
	if cfg.MaxAscent < 0 {
		invalid("invalid preamble depth: %d", cfg.MaxAscent)
	}
	if len(cfg.PreambleNames) == 0 {
		invalid("at least one preamble name is required")
	}
	for _, name := range cfg.PreambleNames {
		if strings.ContainsAny(name, `/\`) {
			invalid("preamble name %q must not contain a path separator", name)
		}
	}

	if cfg.AssetsDir == "" {
		cfg.AssetsDir = "static"
	}
	for _, p := range []struct {
		what string
		path *string
	}{
		{"root directory", &cfg.RootDir},
		{"assets directory", &cfg.AssetsDir},
		{"log rules file", &cfg.LogRulesFile},
	} {
		if *p.path == "" {
			continue
		}
		abs, err := filepath.Abs(*p.path)
		if err != nil {
			invalid("resolve %s: %w", p.what, err)
			continue
		}
		*p.path = abs
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = filepath.Join(cfg.RootDir, ".wikitikz", "settings.json")
	}

	return errors.Join(errs...)
}
