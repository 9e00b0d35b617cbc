package bootstrap_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/euforicio/wikitikz/internal/bootstrap"
	"github.com/euforicio/wikitikz/internal/config"
	"github.com/euforicio/wikitikz/internal/settings"
	"github.com/euforicio/wikitikz/internal/tikz/tikztest"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	tools := tikztest.Toolchain(t)
	root := t.TempDir()

	cfg := config.Default()
	cfg.RootDir = root
	cfg.LatexBin = tools.LatexBin
	cfg.DvisvgmBin = tools.DvisvgmBin
	cfg.QuietPeriod = 20 * time.Millisecond
	cfg.SettingsFile = filepath.Join(root, ".wikitikz", "settings.json")
	return cfg
}

func TestBuildRendersThroughSharedStack(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stack, err := bootstrap.Build(cfg, logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(stack.Close)

	page := []byte("```tikz\n\\draw (0,0) -- (1,1);\n```\n")
	doc, err := stack.Renderer.Render(context.Background(), "notes/page.md", time.Time{}, page)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if doc.Diagrams != 1 || !strings.Contains(doc.HTML, "tikz-block") {
		t.Fatalf("expected one rendered diagram, got %d in %s", doc.Diagrams, doc.HTML)
	}
	if !strings.Contains(strings.ToLower(doc.HTML), "currentcolor") {
		t.Fatalf("expected inverted colors by default, got %s", doc.HTML)
	}

	if _, err := stack.Settings.Update(func(s *settings.Settings) { s.InvertColorsInDarkMode = false }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, err = stack.Renderer.Render(context.Background(), "notes/page.md", time.Time{}, page)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(strings.ToLower(doc.HTML), "currentcolor") {
		t.Fatalf("expected original colors after disabling inversion, got %s", doc.HTML)
	}
}

func TestBuildUsesPreambleNames(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.PreambleNames = []string{"diagrams.tex"}

	stack, err := bootstrap.Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(stack.Close)

	if !stack.Resolver.IsPreamble("a/b/diagrams.tex") || stack.Resolver.IsPreamble("a/.tikz-preamble.tex") {
		t.Fatalf("resolver ignored configured names: %v", stack.Resolver.Names())
	}
}

func TestBuildRejectsMissingRulesFile(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.LogRulesFile = filepath.Join(cfg.RootDir, "missing.yaml")

	if _, err := bootstrap.Build(cfg, nil); err == nil {
		t.Fatalf("expected error for missing rules file")
	}
}

func TestBuildLoadsRulesFile(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.LogRulesFile = filepath.Join(cfg.RootDir, "rules.yaml")
	rules := "- name: banner\n  pattern: '^This is'\n  verdict: skip\n"
	if err := os.WriteFile(cfg.LogRulesFile, []byte(rules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	stack, err := bootstrap.Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	stack.Close()
}
