// Package bootstrap builds the rendering stack shared by the server and the
// command line renderer: one engine, classifier, resolver and pipeline per
// process, and one markdown renderer on top of them.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/euforicio/wikitikz/internal/config"
	"github.com/euforicio/wikitikz/internal/renderer"
	d2renderer "github.com/euforicio/wikitikz/internal/renderer/d2"
	"github.com/euforicio/wikitikz/internal/settings"
	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/engine"
	"github.com/euforicio/wikitikz/internal/tikz/postprocess"
	"github.com/euforicio/wikitikz/internal/tikz/preamble"
)

// Stack is the assembled rendering stack.
type Stack struct {
	Engine   *engine.Engine
	Resolver *preamble.Resolver
	Pipeline *tikz.Pipeline
	Post     *postprocess.Processor
	D2       *d2renderer.Renderer
	Settings *settings.Store
	Renderer *renderer.Service
}

// Build wires the stack from cfg. A missing toolchain is logged, not fatal:
// pages still render and every tikz block reports the missing binary.
func Build(cfg config.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var rules diag.Rules
	if cfg.LogRulesFile != "" {
		loaded, err := diag.LoadRulesFile(cfg.LogRulesFile)
		if err != nil {
			return nil, fmt.Errorf("load log rules: %w", err)
		}
		rules = loaded
		logger.Info("loaded log rules", slog.String("file", cfg.LogRulesFile), slog.Int("rules", len(rules)))
	}

	store := settings.NewStore(cfg.SettingsFile, logger)
	if err := store.Load(); err != nil {
		logger.Warn("settings unreadable, using defaults", slog.String("file", store.Path()), slog.Any("err", err))
	}

	eng := engine.New(diag.NewSink(), logger, &engine.Options{
		LatexBin:      cfg.LatexBin,
		DvisvgmBin:    cfg.DvisvgmBin,
		DocumentClass: cfg.DocumentClass,
		Timeout:       cfg.RenderTimeout,
	})
	if err := eng.Available(); err != nil {
		logger.Warn("tex toolchain unavailable", slog.Any("err", err))
	}

	classifier := diag.New(logger, diag.Options{Rules: rules, QuietPeriod: cfg.QuietPeriod})
	resolver := preamble.New(preamble.FSLookup{FS: os.DirFS(cfg.RootDir)}, logger, preamble.Options{
		Names:     cfg.PreambleNames,
		MaxAscent: cfg.MaxAscent,
	})
	post := postprocess.New(postprocess.NewMinifyOptimizer(), logger)
	pipeline := tikz.New(resolver, eng, classifier, post, logger, tikz.Options{Invert: store.InvertColors})
	d2 := d2renderer.New(logger, &d2renderer.Options{Timeout: cfg.RenderTimeout})

	renderSvc := renderer.NewService(logger, renderer.Options{
		Pipeline: pipeline,
		D2:       d2,
		Post:     post,
		Invert:   store.InvertColors,
	})
	store.OnChange(func(settings.Settings) { renderSvc.InvalidateAll() })

	return &Stack{
		Engine:   eng,
		Resolver: resolver,
		Pipeline: pipeline,
		Post:     post,
		D2:       d2,
		Settings: store,
		Renderer: renderSvc,
	}, nil
}

// Close detaches the pipeline from the engine's diagnostic channel.
func (s *Stack) Close() {
	s.Pipeline.Close()
}
