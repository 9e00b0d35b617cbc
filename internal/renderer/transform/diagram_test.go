package transform

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	d2renderer "github.com/euforicio/wikitikz/internal/renderer/d2"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
)

func renderNode(t *testing.T, b *DiagramBlock) string {
	t.Helper()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if _, err := renderDiagramBlock(w, nil, b, true); err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return buf.String()
}

func TestRenderDiagramBlock(t *testing.T) {
	t.Parallel()

	got := renderNode(t, &DiagramBlock{Language: "d2", SVG: "<svg/>", Runtime: 1500 * time.Millisecond})
	if got != `<div class="d2-block" data-runtime-ms="1500"><svg/></div>` {
		t.Errorf("svg block = %s", got)
	}

	got = renderNode(t, &DiagramBlock{Language: "d2", Error: "bad <edge>"})
	if got != `<div class="d2-block"><div class="d2-error">bad &lt;edge&gt;</div></div>` {
		t.Errorf("error block = %s", got)
	}

	got = renderNode(t, &DiagramBlock{
		Language: "tikz",
		Error:    "render failed",
		Report:   &diag.Report{Title: "Error", Body: "! Undefined control sequence."},
	})
	if strings.Contains(got, "tikz-error") || !strings.Contains(got, `<pre class="tikz-report-body">! Undefined control sequence.</pre>`) {
		t.Errorf("report block = %s", got)
	}
}

func TestDiagramTransformerWithoutRenderersIsNoop(t *testing.T) {
	t.Parallel()
	src := []byte("```tikz\n\\draw;\n```\n")
	doc := goldmark.DefaultParser().Parse(text.NewReader(src)).(*ast.Document)
	pc := parser.NewContext()

	NewDiagramTransformer(DiagramOptions{}).Transform(doc, text.NewReader(src), pc)

	if Diagrams(pc) != 0 || doc.FirstChild().Kind() == KindDiagramBlock {
		t.Fatal("expected fences untouched without renderers")
	}
}

func TestDiagramTransformerRendersNestedD2(t *testing.T) {
	t.Parallel()
	src := []byte("> quoted\n>\n> ```d2\n> a -> b\n> ```\n\n- item\n\n  ```D2\n  x -> y\n  ```\n")
	pc := parser.NewContext()
	reader := text.NewReader(src)
	doc := goldmark.DefaultParser().Parse(reader, parser.WithContext(pc)).(*ast.Document)

	NewDiagramTransformer(DiagramOptions{D2: d2renderer.New(nil, nil)}).Transform(doc, reader, pc)

	if n := Diagrams(pc); n != 2 {
		t.Fatalf("expected 2 rendered diagrams, got %d", n)
	}
}
