// Package main provides wikitikz-render, which renders tikz snippets or the
// tikz blocks of a markdown file to SVG or PNG without starting the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/euforicio/wikitikz/internal/bootstrap"
	"github.com/euforicio/wikitikz/internal/buildinfo"
	"github.com/euforicio/wikitikz/internal/config"
	"github.com/euforicio/wikitikz/internal/exporter"
	"github.com/euforicio/wikitikz/internal/renderer/transform"
	"github.com/euforicio/wikitikz/internal/tikz"
)

var errRenderFailures = errors.New("one or more diagrams failed to render")

type options struct {
	input  string
	out    string
	doc    string
	scale  float64
	png    bool
	invert bool
}

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	var opts options
	flags := pflag.NewFlagSet("wikitikz-render", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wikitikz-render [flags] <file.tex|file.md|->\n\n")
		flags.PrintDefaults()
	}
	flags.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "wiki root used for preamble lookup")
	config.RegisterRenderFlags(flags, &cfg)
	flags.StringVarP(&opts.out, "out", "o", "", "output file, or directory when rendering several blocks (default stdout)")
	flags.StringVar(&opts.doc, "doc", "", "wiki-relative document path that selects the preamble (default: the input path)")
	flags.BoolVar(&opts.png, "png", false, "rasterize to PNG instead of writing SVG")
	flags.Float64Var(&opts.scale, "scale", 2, "PNG scale factor")
	flags.BoolVar(&opts.invert, "invert", false, "rewrite black and white for dark themes")
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.String("wikitikz-render"))
		os.Exit(0)
	}
	if flags.NArg() != 1 {
		flags.Usage()
		os.Exit(2)
	}
	opts.input = flags.Arg(0)

	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger = logger.With("app", "wikitikz-render")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("render failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	src, err := readInput(opts.input)
	if err != nil {
		return err
	}

	blocks := []string{string(src)}
	if isMarkdown(opts.input) {
		fences := transform.ExtractFences(src, "tikz")
		if len(fences) == 0 {
			return fmt.Errorf("%s: no tikz blocks found", opts.input)
		}
		blocks = blocks[:0]
		for _, f := range fences {
			blocks = append(blocks, f.Source)
		}
	}

	docPath, err := documentPath(cfg.RootDir, opts)
	if err != nil {
		return err
	}

	stack, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()
	if err := stack.Engine.Available(); err != nil {
		return err
	}

	invert := opts.invert
	failed := 0
	for i, source := range blocks {
		res := stack.Pipeline.RenderBlock(ctx, tikz.Block{
			Source:  source,
			DocPath: docPath,
			Invert:  &invert,
		})
		if res.Report != nil {
			fmt.Fprintf(os.Stderr, "block %d: %s\n%s\n", i+1, res.Report.Title, res.Report.Body)
		}
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "block %d: %v\n", i+1, res.Err)
			failed++
			continue
		}
		logger.Debug("rendered block", slog.Int("block", i+1), slog.Duration("duration", res.Duration))

		if err := writeOutput(opts, i, len(blocks), res.SVG); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errRenderFailures, failed, len(blocks))
	}
	return nil
}

func readInput(input string) ([]byte, error) {
	if input == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(input) // #nosec G304 -- path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func isMarkdown(input string) bool {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// documentPath picks the wiki-relative path whose directory chain supplies
// the preamble. Inputs outside the root fall back to the root itself.
func documentPath(root string, opts options) (string, error) {
	if opts.doc != "" {
		cleaned := filepath.ToSlash(filepath.Clean(opts.doc))
		if filepath.IsAbs(opts.doc) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return "", fmt.Errorf("--doc must be relative to the wiki root: %s", opts.doc)
		}
		return cleaned, nil
	}
	if opts.input == "-" {
		return "index.md", nil
	}
	abs, err := filepath.Abs(opts.input)
	if err != nil {
		return "", fmt.Errorf("resolve input: %w", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "index.md", nil
	}
	return filepath.ToSlash(rel), nil
}

func writeOutput(opts options, index, total int, svg string) error {
	data := []byte(svg)
	ext := ".svg"
	if opts.png {
		png, err := exporter.RasterizeSVG(data, opts.scale)
		if err != nil {
			return fmt.Errorf("block %d: %w", index+1, err)
		}
		data = png
		ext = ".png"
	}

	if opts.out == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	target := opts.out
	if total > 1 || isDir(opts.out) {
		if err := os.MkdirAll(opts.out, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		target = filepath.Join(opts.out, fmt.Sprintf("%s-%d%s", baseName(opts.input), index+1, ext))
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func baseName(input string) string {
	if input == "-" {
		return "diagram"
	}
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
