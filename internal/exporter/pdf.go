package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/alecthomas/chroma/v2/styles"
	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// pdfStyle is a light chroma style; dark backgrounds waste toner and the PDF
// renderer does not paint code block backgrounds.
const pdfStyle = "github"

// newPDFMarkdown uses the PDF core fonts. The renderer's default web fonts
// are downloaded on first use, which breaks export on an offline machine.
func newPDFMarkdown(ctx context.Context, images http.FileSystem) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(highlighting.WithStyle(pdfStyle)),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRenderer(pdf.New(
			pdf.WithContext(ctx),
			pdf.WithImageFS(images),
			pdf.WithHeadingFont(pdf.FontHelvetica),
			pdf.WithBodyFont(pdf.FontHelvetica),
			pdf.WithCodeFont(pdf.FontCourier),
			pdf.WithCodeBlockTheme(styles.Get(pdfStyle)),
		)),
	)
}

// writePDF rasterizes diagram fences to PNG files in a scratch directory,
// then hands the rewritten markdown to the PDF renderer. Other images are
// read from the page's own directory. Diagrams are never inverted here.
func (e *Exporter) writePDF(ctx context.Context, pg page, w io.Writer) error {
	encoded, diagrams, err := e.diagrams.encode(ctx, pg.rel, pg.raw)
	if err != nil {
		return fmt.Errorf("encode diagrams: %w", err)
	}

	pageDir := filepath.Join(pg.root, filepath.FromSlash(path.Dir(pg.rel)))
	images := imageFS{http.FS(os.DirFS(pageDir))}
	if len(diagrams) > 0 {
		scratch, err := os.MkdirTemp("", "wikitikz-pdf-")
		if err != nil {
			return fmt.Errorf("create image dir: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				e.logger.WarnContext(ctx, "remove image dir failed", slog.String("dir", scratch), slog.Any("err", err))
			}
		}()
		for name, data := range diagrams {
			if err := os.WriteFile(filepath.Join(scratch, name), data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
		images = append(imageFS{http.Dir(scratch)}, images...)
	}

	if err := newPDFMarkdown(ctx, images).Convert(encoded, w); err != nil {
		return fmt.Errorf("convert markdown to pdf: %w", err)
	}
	return nil
}

// imageFS opens a name from the first file system that has it.
type imageFS []http.FileSystem

func (fs imageFS) Open(name string) (http.File, error) {
	err := error(os.ErrNotExist)
	for _, sys := range fs {
		f, openErr := sys.Open(name)
		if openErr == nil {
			return f, nil
		}
		err = openErr
	}
	return nil, err
}
