package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/euforicio/wikitikz/internal/config"
)

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs, &cfg)

	root := t.TempDir()
	err := fs.Parse([]string{
		"--root", root,
		"--log-quiet", "400ms",
		"--preamble-name", "a.tex,b.tex",
		"--latex", "/opt/tex/bin/latex",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := config.Finalize(&cfg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if cfg.QuietPeriod != 400*time.Millisecond {
		t.Fatalf("unexpected quiet period %s", cfg.QuietPeriod)
	}
	if len(cfg.PreambleNames) != 2 || cfg.PreambleNames[0] != "a.tex" {
		t.Fatalf("unexpected preamble names %v", cfg.PreambleNames)
	}
	if cfg.LatexBin != "/opt/tex/bin/latex" {
		t.Fatalf("unexpected latex bin %q", cfg.LatexBin)
	}
	if want := filepath.Join(root, ".wikitikz", "settings.json"); cfg.SettingsFile != want {
		t.Fatalf("settings file = %q, want %q", cfg.SettingsFile, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WIKITIKZ_LOG_QUIET", "1s")
	t.Setenv("WIKITIKZ_PREAMBLE_NAMES", " x.tex , ,y.tex")
	t.Setenv("WIKITIKZ_PORT", "not-a-number")
	t.Setenv("WIKITIKZ_DVISVGM", "/usr/local/bin/dvisvgm")

	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	if cfg.QuietPeriod != time.Second {
		t.Fatalf("unexpected quiet period %s", cfg.QuietPeriod)
	}
	if len(cfg.PreambleNames) != 2 || cfg.PreambleNames[1] != "y.tex" {
		t.Fatalf("unexpected preamble names %v", cfg.PreambleNames)
	}
	if cfg.Port != 0 {
		t.Fatalf("expected malformed port to be ignored, got %d", cfg.Port)
	}
	if cfg.DvisvgmBin != "/usr/local/bin/dvisvgm" {
		t.Fatalf("unexpected dvisvgm %q", cfg.DvisvgmBin)
	}
}

func TestFinalizeRejectsInvalidValues(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*config.Config){
		"port":          func(c *config.Config) { c.Port = 70000 },
		"quiet":         func(c *config.Config) { c.QuietPeriod = 0 },
		"timeout":       func(c *config.Config) { c.RenderTimeout = -time.Second },
		"no names":      func(c *config.Config) { c.PreambleNames = nil },
		"separator":     func(c *config.Config) { c.PreambleNames = []string{"dir/preamble.tex"} },
		"negative walk": func(c *config.Config) { c.MaxAscent = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.RootDir = t.TempDir()
			mutate(&cfg)
			if err := config.Finalize(&cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestFinalizeReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.Port = -1
	cfg.QuietPeriod = 0
	cfg.PreambleNames = []string{"ok.tex", `sub\bad.tex`}

	err := config.Finalize(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"invalid port", "quiet period", `"sub\\bad.tex"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnvIgnoresBlankValues(t *testing.T) {
	t.Setenv("WIKITIKZ_ROOT", "   ")
	t.Setenv("WIKITIKZ_PREAMBLE_NAMES", " , ")
	t.Setenv("WIKITIKZ_AUTO_OPEN", "false")

	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	if cfg.RootDir != "." || len(cfg.PreambleNames) != 3 {
		t.Fatalf("blank values changed config: root %q names %v", cfg.RootDir, cfg.PreambleNames)
	}
	if cfg.AutoOpen {
		t.Fatal("expected WIKITIKZ_AUTO_OPEN=false to apply")
	}
}
