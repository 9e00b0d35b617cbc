// Package renderer converts markdown to HTML, rendering tikz and d2 fences to
// inline SVG along the way.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"
	"golang.org/x/sync/singleflight"

	"github.com/euforicio/wikitikz/internal/renderer/d2"
	"github.com/euforicio/wikitikz/internal/renderer/transform"
	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/postprocess"
)

// codeStyle is the chroma style whose classes static/css/chroma.css defines.
const codeStyle = "github-dark"

// Document is a rendered markdown file.
//
//nolint:govet // field order optimized for readability, not memory
type Document struct {
	HTML     string
	Metadata Metadata
	Modified time.Time
	Raw      string
	// Reports holds the diagnostic report of every failed diagram render.
	Reports  []diag.Report
	Diagrams int
}

// Summary is what Inspect learns about a document without rendering it.
type Summary struct {
	Metadata Metadata
	Diagrams int
}

// Options wire the diagram renderers. Zero values leave the matching fences
// as highlighted code.
type Options struct {
	Pipeline *tikz.Pipeline
	D2       *d2.Renderer
	// Post processes d2 output; tikz output is processed by the pipeline.
	Post   *postprocess.Processor
	Invert func() bool
}

type cacheEntry struct {
	modTime time.Time
	doc     Document
}

// Service renders markdown into HTML. Documents are cached by path and
// modification time; diagram output also depends on preamble files and
// settings, so callers drop the cache with InvalidateAll when those change.
type Service struct {
	md     goldmark.Markdown
	meta   goldmark.Markdown
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	// gen increments on every invalidation; a render that started before
	// the bump does not store its result.
	gen uint64

	inflight singleflight.Group
}

// NewService constructs a markdown renderer with GFM, frontmatter, heading
// anchors, syntax highlighting and wiki link rewriting. ```tikz fences go
// through opts.Pipeline and ```d2 fences through opts.D2.
func NewService(logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "renderer")

	diagrams := transform.NewDiagramTransformer(transform.DiagramOptions{
		Pipeline: opts.Pipeline,
		D2:       opts.D2,
		Post:     opts.Post,
		Invert:   opts.Invert,
		Logger:   logger,
	})

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle(codeStyle),
				highlighting.WithFormatOptions(html.WithClasses(true), html.WithLineNumbers(false)),
				highlighting.WithWrapperRenderer(transform.FenceWrapper()),
			),
			&anchor.Extender{Position: anchor.After},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
			parser.WithASTTransformers(
				util.Prioritized(linkRewriter{}, 100),
				util.Prioritized(diagrams, 500),
			),
		),
		goldmark.WithRendererOptions(
			// The wiki is local and trusted, so raw HTML passes through.
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
			gmrenderer.WithNodeRenderers(util.Prioritized(transform.NewDiagramBlockRenderer(), 100)),
		),
	)

	return &Service{
		md:     md,
		meta:   goldmark.New(goldmark.WithExtensions(goldmarkmeta.Meta)),
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Inspect parses content for frontmatter and counts diagram fences without
// running any diagram renderer.
func (s *Service) Inspect(content []byte) Summary {
	pc := parser.NewContext()
	root := s.meta.Parser().Parse(text.NewReader(content), parser.WithContext(pc))

	sum := Summary{Metadata: extractMetadata(pc)}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if block, ok := n.(*ast.FencedCodeBlock); ok && entering {
			if transform.IsDiagramLanguage(string(block.Language(content))) {
				sum.Diagrams++
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sum
}

// Render converts markdown content to HTML. path is wiki-relative; it
// resolves relative links and selects the preamble for tikz fences. Results
// are cached by path and modTime, and concurrent renders of the same version
// share one conversion. A zero modTime bypasses the cache.
func (s *Service) Render(ctx context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	if modTime.IsZero() {
		return s.convert(ctx, path, modTime, content)
	}
	if doc, ok := s.lookup(path, modTime); ok {
		return doc, nil
	}

	key := path + "\x00" + modTime.UTC().Format(time.RFC3339Nano)
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		gen := s.generation()
		doc, err := s.convert(ctx, path, modTime, content)
		if err != nil {
			return Document{}, err
		}
		s.store(path, gen, cacheEntry{modTime: modTime, doc: doc})
		return doc, nil
	})
	if err != nil {
		return Document{}, err
	}
	return v.(Document), nil
}

func (s *Service) convert(ctx context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	pc := parser.NewContext()
	pc.Set(transform.DocPathKey, path)
	pc.Set(transform.RenderContextKey, ctx)

	var buf bytes.Buffer
	if err := s.md.Convert(content, &buf, parser.WithContext(pc)); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}
	doc := Document{
		HTML:     buf.String(),
		Metadata: extractMetadata(pc),
		Modified: modTime,
		Raw:      string(content),
		Reports:  transform.Reports(pc),
		Diagrams: transform.Diagrams(pc),
	}
	if len(doc.Reports) > 0 {
		s.logger.Debug("document rendered with diagnostics", slog.String("path", path), slog.Int("reports", len(doc.Reports)))
	}
	return doc, nil
}

func (s *Service) lookup(path string, modTime time.Time) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[path]
	if !ok || !entry.modTime.Equal(modTime) {
		return Document{}, false
	}
	return entry.doc, true
}

func (s *Service) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Service) store(path string, gen uint64, entry cacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.cache[path] = entry
}

// Invalidate removes the cached entry for path.
func (s *Service) Invalidate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, path)
	s.gen++
}

// InvalidateAll drops every cached document.
func (s *Service) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cache)
	s.gen++
}
