// Package engine drives the external TeX toolchain that turns tikz source into SVG.
//
// latex output is streamed line by line into a diag.Sink while it runs; the
// SVG arrives through a single-shot Completion once dvisvgm has converted the
// DVI file.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/source"
)

var (
	// ErrEmptyDiagram is returned when the supplied source is blank.
	ErrEmptyDiagram = errors.New("empty tikz diagram")
	// ErrToolMissing is returned when latex or dvisvgm cannot be found.
	ErrToolMissing = errors.New("tex toolchain binary not found")
	// ErrRenderFailed is returned when a toolchain step exits unsuccessfully.
	ErrRenderFailed = errors.New("tikz render failed")
)

// DefaultDocumentClass opens every generated document.
const DefaultDocumentClass = `\documentclass[tikz]{standalone}`

const inputName = "input"

// killGrace bounds how long a killed tool's leftover children may hold its
// output pipes open.
const killGrace = time.Second

// Options configure the engine.
type Options struct {
	LatexBin      string
	DvisvgmBin    string
	DocumentClass string
	WorkDir       string
	Timeout       time.Duration
}

// Result is the outcome of a successful render.
type Result struct {
	SVG      string
	Duration time.Duration
}

// Engine runs latex and dvisvgm for each render.
type Engine struct {
	sink   *diag.Sink
	logger *slog.Logger
	opts   Options
}

// New creates an engine that writes its log stream to sink. If logger is nil,
// the default slog logger is used.
func New(sink *diag.Sink, logger *slog.Logger, opts *Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = diag.NewSink()
	}
	cfg := Options{
		LatexBin:      "latex",
		DvisvgmBin:    "dvisvgm",
		DocumentClass: DefaultDocumentClass,
		Timeout:       30 * time.Second,
	}
	if opts != nil {
		if opts.LatexBin != "" {
			cfg.LatexBin = opts.LatexBin
		}
		if opts.DvisvgmBin != "" {
			cfg.DvisvgmBin = opts.DvisvgmBin
		}
		if opts.DocumentClass != "" {
			cfg.DocumentClass = opts.DocumentClass
		}
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		cfg.WorkDir = opts.WorkDir
	}
	return &Engine{
		sink:   sink,
		logger: logger.With("component", "engine"),
		opts:   cfg,
	}
}

// Sink returns the diagnostic channel the engine writes to.
func (e *Engine) Sink() *diag.Sink {
	return e.sink
}

// Available reports whether both toolchain binaries can be located.
func (e *Engine) Available() error {
	for _, bin := range []string{e.opts.LatexBin, e.opts.DvisvgmBin} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrToolMissing, bin, err)
		}
	}
	return nil
}

// Document turns merged block source into a complete TeX document.
func (e *Engine) Document(merged string) string {
	return e.opts.DocumentClass + "\n" + source.Wrap(merged) + "\n"
}

// Start launches a render of merged in the background. merged is captured
// by value before anything runs, so the toolchain only ever sees the complete
// text.
func (e *Engine) Start(ctx context.Context, merged string) *Completion {
	c := newCompletion()
	if strings.TrimSpace(merged) == "" {
		c.resolve(Result{}, ErrEmptyDiagram)
		return c
	}
	doc := e.Document(merged)
	go func() {
		res, err := e.run(ctx, doc)
		c.resolve(res, err)
	}()
	return c
}

func (e *Engine) run(ctx context.Context, doc string) (Result, error) {
	if err := e.Available(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp(e.opts.WorkDir, "wikitikz-*")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, inputName+".tex"), []byte(doc), 0o600); err != nil {
		return Result{}, fmt.Errorf("write tex input: %w", err)
	}

	if err := e.runLatex(ctx, dir); err != nil {
		return Result{}, err
	}

	svg, err := e.runDvisvgm(ctx, dir)
	if err != nil {
		return Result{}, err
	}

	return Result{
		SVG:      svg,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) runLatex(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, e.opts.LatexBin,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-no-shell-escape",
		inputName+".tex",
	)
	cmd.Dir = dir
	cmd.WaitDelay = killGrace

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	var g errgroup.Group
	g.Go(func() error { return e.pump(outR) })
	g.Go(func() error { return e.pump(errR) })

	runErr := cmd.Start()
	if runErr == nil {
		runErr = cmd.Wait()
	}
	outW.Close()
	errW.Close()
	scanErr := g.Wait()

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: latex: %w", ErrRenderFailed, ctxErr)
		}
		return fmt.Errorf("%w: latex: %w", ErrRenderFailed, runErr)
	}
	if scanErr != nil {
		e.logger.Debug("latex output truncated", slog.Any("err", scanErr))
	}
	return nil
}

// pump forwards r to the sink line by line. It keeps draining r after a scan
// error so the writer never blocks.
func (e *Engine) pump(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		e.sink.WriteLine(strings.TrimRight(scanner.Text(), "\r"))
	}
	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

func (e *Engine) runDvisvgm(ctx context.Context, dir string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, e.opts.DvisvgmBin,
		"--no-fonts",
		"--exact-bbox",
		"--stdout",
		inputName+".dvi",
	)
	cmd.Dir = dir
	cmd.WaitDelay = killGrace
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: dvisvgm: %w: %s", ErrRenderFailed, err, strings.TrimSpace(errOut.String()))
	}
	if msg := strings.TrimSpace(errOut.String()); msg != "" {
		e.logger.Debug("dvisvgm output", slog.String("msg", msg))
	}

	svg := stripProlog(out.String())
	if svg == "" {
		return "", fmt.Errorf("%w: dvisvgm produced no svg", ErrRenderFailed)
	}
	return svg, nil
}

// stripProlog drops the XML declaration and any comments ahead of the root
// element so the markup can be inlined into HTML.
func stripProlog(markup string) string {
	idx := strings.Index(markup, "<svg")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(markup[idx:])
}
