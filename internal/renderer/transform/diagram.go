package transform

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	d2renderer "github.com/euforicio/wikitikz/internal/renderer/d2"
	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/postprocess"
)

const (
	tikzLanguage = "tikz"
	d2Language   = "d2"
)

// DiagramOptions selects the renderers behind NewDiagramTransformer. A nil
// renderer leaves its fences as code.
type DiagramOptions struct {
	Pipeline *tikz.Pipeline
	D2       *d2renderer.Renderer
	// Post and Invert apply to d2 output; the pipeline post-processes its own.
	Post   *postprocess.Processor
	Invert func() bool
	Logger *slog.Logger
}

type fenceRenderer func(pc parser.Context, source string) *DiagramBlock

// DiagramTransformer replaces ```tikz and ```d2 fences with DiagramBlock
// nodes carrying inline SVG or the failure to show in its place.
type DiagramTransformer struct {
	renderers map[string]fenceRenderer
	logger    *slog.Logger
}

// NewDiagramTransformer builds the AST transformer for the configured renderers.
func NewDiagramTransformer(opts DiagramOptions) *DiagramTransformer {
	t := &DiagramTransformer{renderers: make(map[string]fenceRenderer, 2), logger: opts.Logger}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if opts.Pipeline != nil {
		t.renderers[tikzLanguage] = t.tikzRenderer(opts.Pipeline)
	}
	if opts.D2 != nil {
		invert := opts.Invert
		if invert == nil {
			invert = func() bool { return false }
		}
		t.renderers[d2Language] = t.d2Renderer(opts.D2, opts.Post, invert)
	}
	return t
}

// Transform implements parser.ASTTransformer. Matching fences are collected
// first and replaced afterwards so the walk never sees a mutated tree.
func (t *DiagramTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	if doc == nil || len(t.renderers) == 0 {
		return
	}
	src := reader.Source()

	type match struct {
		block  *ast.FencedCodeBlock
		render fenceRenderer
		lang   string
	}
	var matches []match
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		block, ok := n.(*ast.FencedCodeBlock)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(strings.TrimSpace(string(block.Language(src))))
		if render, ok := t.renderers[lang]; ok {
			matches = append(matches, match{block: block, render: render, lang: lang})
		}
		return ast.WalkSkipChildren, nil
	})

	for _, m := range matches {
		out := m.render(pc, blockSource(m.block, reader))
		out.Language = m.lang
		out.SetBlankPreviousLines(m.block.HasBlankPreviousLines())
		for _, attr := range m.block.Attributes() {
			out.SetAttribute(attr.Name, attr.Value)
		}
		countDiagram(pc)
		m.block.Parent().ReplaceChild(m.block.Parent(), m.block, out)
	}
}

func (t *DiagramTransformer) tikzRenderer(pipeline *tikz.Pipeline) fenceRenderer {
	return func(pc parser.Context, source string) *DiagramBlock {
		res := pipeline.RenderBlock(renderContext(pc), tikz.Block{
			Source:  source,
			DocPath: DocPath(pc),
			Invert:  invertOverride(pc),
		})
		out := &DiagramBlock{SVG: res.SVG, Report: res.Report, Runtime: res.Duration}
		if res.Report != nil {
			addReport(pc, *res.Report)
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
			t.logger.Debug("tikz block failed", slog.String("path", DocPath(pc)), slog.Any("err", res.Err))
		}
		return out
	}
}

func (t *DiagramTransformer) d2Renderer(r *d2renderer.Renderer, post *postprocess.Processor, invert func() bool) fenceRenderer {
	return func(pc parser.Context, source string) *DiagramBlock {
		res, err := r.Render(renderContext(pc), source)
		if err != nil {
			t.logger.Warn("d2 block failed", slog.String("path", DocPath(pc)), slog.Any("err", err))
			return &DiagramBlock{Error: err.Error()}
		}
		svg := res.SVG
		if post != nil {
			inv := invert()
			if override := invertOverride(pc); override != nil {
				inv = *override
			}
			svg = post.Process(svg, inv)
		}
		return &DiagramBlock{SVG: svg, Runtime: res.Duration}
	}
}

func isFence(block *ast.FencedCodeBlock, source []byte, language string) bool {
	return strings.EqualFold(strings.TrimSpace(string(block.Language(source))), language)
}

func blockSource(block *ast.FencedCodeBlock, reader text.Reader) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(reader.Source()))
	}
	return buf.String()
}

// DiagramBlock is a rendered diagram fence.
type DiagramBlock struct {
	ast.BaseBlock
	// Report is set when a tikz render failed with a classified diagnostic.
	Report   *diag.Report
	Language string
	SVG      string
	Error    string
	Runtime  time.Duration
}

// KindDiagramBlock is the node kind of DiagramBlock.
var KindDiagramBlock = ast.NewNodeKind("DiagramBlock")

// Kind implements ast.Node.
func (b *DiagramBlock) Kind() ast.NodeKind { return KindDiagramBlock }

// IsRaw implements ast.Node.
func (b *DiagramBlock) IsRaw() bool { return true }

// Dump implements ast.Node.
func (b *DiagramBlock) Dump(source []byte, level int) {
	info := map[string]string{"Language": b.Language, "SVG": fmt.Sprintf("%d bytes", len(b.SVG))}
	if b.Error != "" {
		info["Error"] = fmt.Sprintf("%q", b.Error)
	}
	if b.Report != nil {
		info["Report"] = b.Report.Title
	}
	ast.DumpHelper(b, source, level, info, nil)
}

type diagramBlockRenderer struct{}

// NewDiagramBlockRenderer returns the HTML renderer for DiagramBlock nodes.
func NewDiagramBlockRenderer() renderer.NodeRenderer {
	return diagramBlockRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (diagramBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDiagramBlock, renderDiagramBlock)
}

// renderDiagramBlock writes <div class="LANG-block">. A failure with a report
// shows the report; a bare failure shows its message.
func renderDiagramBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*DiagramBlock)

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="%s-block"`, block.Language)
	if block.Runtime > 0 {
		fmt.Fprintf(&b, ` data-runtime-ms="%d"`, block.Runtime.Milliseconds())
	}
	b.WriteByte('>')
	switch {
	case block.SVG != "":
		b.WriteString(block.SVG)
	case block.Report == nil && block.Error != "":
		fmt.Fprintf(&b, `<div class="%s-error">%s</div>`, block.Language, html.EscapeString(block.Error))
	}
	if block.Report != nil {
		writeReport(&b, *block.Report)
	}
	b.WriteString("</div>")

	if _, err := w.WriteString(b.String()); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// writeReport renders a dismissible error notice.
func writeReport(b *strings.Builder, r diag.Report) {
	fmt.Fprintf(b, `<div class="tikz-report" role="alert" data-phase="%s">`, r.Phase)
	fmt.Fprintf(b, `<div class="tikz-report-header"><strong>%s</strong>`, html.EscapeString(r.Title))
	b.WriteString(`<button type="button" class="tikz-report-dismiss" aria-label="Dismiss">&#215;</button></div>`)
	fmt.Fprintf(b, `<pre class="tikz-report-body">%s</pre></div>`, html.EscapeString(r.Body))
}
