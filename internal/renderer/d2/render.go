// Package d2 compiles d2 diagram fences to SVG.
package d2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

// ErrEmptyDiagram is returned for a blank diagram body.
var ErrEmptyDiagram = errors.New("empty d2 diagram")

const defaultTimeout = 12 * time.Second

// Result is one compiled diagram.
type Result struct {
	SVG      string
	Duration time.Duration
}

// Options configure the renderer.
type Options struct {
	Timeout time.Duration
	// ThemeID and DarkThemeID select catalog themes. A negative DarkThemeID
	// disables the dark variant.
	ThemeID     int64
	DarkThemeID int64
	// MaxConcurrent bounds simultaneous compiles; zero means GOMAXPROCS.
	MaxConcurrent int64
}

// Renderer compiles d2 in process. The layout engine is picked by the
// diagram's own vars block.
type Renderer struct {
	logger *slog.Logger
	opts   Options
	slots  *semaphore.Weighted
}

// New creates a renderer. Zero options select a neutral light theme with the
// flagship dark theme for dark mode.
func New(logger *slog.Logger, opts *Options) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Options{
		Timeout:       defaultTimeout,
		ThemeID:       d2themescatalog.NeutralDefault.ID,
		DarkThemeID:   d2themescatalog.DarkFlagshipTerrastruct.ID,
		MaxConcurrent: int64(runtime.GOMAXPROCS(0)),
	}
	if opts != nil {
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		if opts.ThemeID != 0 {
			cfg.ThemeID = opts.ThemeID
		}
		if opts.DarkThemeID != 0 {
			cfg.DarkThemeID = opts.DarkThemeID
		}
		if opts.MaxConcurrent > 0 {
			cfg.MaxConcurrent = opts.MaxConcurrent
		}
	}
	return &Renderer{
		logger: logger.With("component", "d2"),
		opts:   cfg,
		slots:  semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Render compiles source into SVG. Waiting for a free compile slot counts
// against the timeout.
func (r *Renderer) Render(ctx context.Context, source string) (Result, error) {
	if strings.TrimSpace(source) == "" {
		return Result{}, ErrEmptyDiagram
	}
	ctx, cancel := context.WithTimeout(d2log.With(ctx, r.logger), r.opts.Timeout)
	defer cancel()

	if err := r.slots.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("wait for d2 slot: %w", err)
	}
	defer r.slots.Release(1)

	start := time.Now()
	// A ruler caches font metrics and is not safe for concurrent use.
	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return Result{}, fmt.Errorf("init ruler: %w", err)
	}
	renderOpts := r.svgOptions()
	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: resolveLayout,
	}, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("compile d2: %w", err)
	}
	if diagram == nil {
		return Result{}, errors.New("d2 compiler returned no diagram")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("render svg: %w", err)
	}
	elapsed := time.Since(start)
	r.logger.DebugContext(ctx, "d2 rendered", slog.Duration("elapsed", elapsed), slog.Int("bytes", len(svg)))
	return Result{SVG: string(svg), Duration: elapsed}, nil
}

func (r *Renderer) svgOptions() *d2svg.RenderOpts {
	theme := r.opts.ThemeID
	pad := int64(d2svg.DEFAULT_PADDING)
	opts := &d2svg.RenderOpts{ThemeID: &theme, Pad: &pad}
	if r.opts.DarkThemeID >= 0 {
		dark := r.opts.DarkThemeID
		opts.DarkThemeID = &dark
	}
	return opts
}

var layouts = map[string]d2graph.LayoutGraph{
	"dagre": func(ctx context.Context, g *d2graph.Graph) error { return d2dagrelayout.Layout(ctx, g, nil) },
	"elk":   func(ctx context.Context, g *d2graph.Graph) error { return d2elklayout.Layout(ctx, g, nil) },
}

func resolveLayout(engine string) (d2graph.LayoutGraph, error) {
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		name = "dagre"
	}
	if layout, ok := layouts[name]; ok {
		return layout, nil
	}
	return nil, fmt.Errorf("unsupported d2 layout %q (available: dagre, elk)", engine)
}
