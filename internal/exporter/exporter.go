// Package exporter writes a single wiki page as standalone HTML, PDF,
// markdown or plain text. Diagrams are rendered the same way the server
// renders them; for PDF they are rasterized to PNG first.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/euforicio/wikitikz/internal/renderer"
	d2renderer "github.com/euforicio/wikitikz/internal/renderer/d2"
	"github.com/euforicio/wikitikz/internal/tikz"
)

// ErrInvalidPath is returned for page paths that are empty, absolute or
// leave the wiki root.
var ErrInvalidPath = errors.New("invalid page path")

// Options wire the diagram renderers used for PDF rasterization. Zero values
// leave the matching fences as code.
type Options struct {
	Pipeline *tikz.Pipeline
	D2       *d2renderer.Renderer
}

// Exporter renders pages for download.
type Exporter struct {
	renderer *renderer.Service
	diagrams *diagramEncoder
	logger   *slog.Logger
}

// New constructs an exporter that shares renderSvc with the server so both
// surfaces see the same caches. If renderSvc is nil a renderer without
// diagram support is created.
func New(renderSvc *renderer.Service, opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "exporter")
	if renderSvc == nil {
		renderSvc = renderer.NewService(logger, renderer.Options{})
	}
	return &Exporter{
		renderer: renderSvc,
		diagrams: &diagramEncoder{tikz: opts.Pipeline, d2: opts.D2, logger: logger},
		logger:   logger,
	}
}

// ExportPageOptions selects the page and output of ExportPage.
type ExportPageOptions struct {
	Writer  io.Writer
	Format  Format
	RootDir string
	// Path is wiki-relative; a missing ".md" extension is added.
	Path string
}

type page struct {
	root     string
	rel      string
	modified time.Time
	raw      []byte
}

// ExportPage writes the page named by opts.Path in opts.Format. Missing pages
// wrap os.ErrNotExist and unsafe paths wrap ErrInvalidPath.
func (e *Exporter) ExportPage(ctx context.Context, opts ExportPageOptions) error {
	if opts.Writer == nil {
		return errors.New("writer is required")
	}
	if _, ok := lookup(opts.Format); !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}

	pg, err := loadPage(opts.RootDir, opts.Path)
	if err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "export page", slog.String("path", pg.rel), slog.String("format", string(opts.Format)))

	switch opts.Format {
	case FormatMarkdown:
		_, err = opts.Writer.Write(pg.raw)
		return err
	case FormatPlainText:
		_, err = opts.Writer.Write(plainText(pg.raw))
		return err
	case FormatHTML:
		return e.writeHTML(ctx, pg, opts.Writer)
	default:
		return e.writePDF(ctx, pg, opts.Writer)
	}
}

// loadPage reads a markdown page through an os.Root so that neither ".."
// segments nor symlinks can reach outside rootDir.
func loadPage(rootDir, pagePath string) (page, error) {
	if strings.TrimSpace(rootDir) == "" {
		return page{}, errors.New("root directory is required")
	}
	rel := path.Clean(filepath.ToSlash(strings.TrimSpace(pagePath)))
	if rel == "." || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return page{}, fmt.Errorf("%w: %q", ErrInvalidPath, pagePath)
	}
	switch strings.ToLower(path.Ext(rel)) {
	case ".md", ".markdown":
	default:
		rel += ".md"
	}

	root, err := os.OpenRoot(rootDir)
	if err != nil {
		return page{}, fmt.Errorf("open root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(filepath.FromSlash(rel))
	if err != nil {
		return page{}, fmt.Errorf("open page %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return page{}, fmt.Errorf("stat page %s: %w", rel, err)
	}
	if info.IsDir() {
		return page{}, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, rel)
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return page{}, fmt.Errorf("read page %s: %w", rel, err)
	}
	return page{root: rootDir, rel: rel, modified: info.ModTime(), raw: raw}, nil
}
