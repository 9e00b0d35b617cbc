// Package transform holds the goldmark AST transformers and node renderers
// that turn diagram fences into inline SVG.
package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/euforicio/wikitikz/internal/tikz/diag"
)

// InvertMetaKey is the frontmatter key that overrides dark-mode inversion for
// every diagram in one document.
const InvertMetaKey = "tikz-invert"

var (
	// DocPathKey holds the wiki-relative path of the document being parsed.
	DocPathKey = parser.NewContextKey()
	// RenderContextKey holds the context.Context of the surrounding render.
	RenderContextKey = parser.NewContextKey()

	reportsKey  = parser.NewContextKey()
	diagramsKey = parser.NewContextKey()
)

// DocPath returns the document path stored in pc, or "".
func DocPath(pc parser.Context) string {
	if v, ok := pc.Get(DocPathKey).(string); ok {
		return v
	}
	return ""
}

func renderContext(pc parser.Context) context.Context {
	if ctx, ok := pc.Get(RenderContextKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// Reports returns the diagnostic reports collected while parsing.
func Reports(pc parser.Context) []diag.Report {
	reports, _ := pc.Get(reportsKey).([]diag.Report)
	return reports
}

func addReport(pc parser.Context, r diag.Report) {
	pc.Set(reportsKey, append(Reports(pc), r))
}

// Diagrams returns how many diagram fences were rendered while parsing.
func Diagrams(pc parser.Context) int {
	n, _ := pc.Get(diagramsKey).(int)
	return n
}

func countDiagram(pc parser.Context) {
	pc.Set(diagramsKey, Diagrams(pc)+1)
}

// invertOverride reads the per-document inversion flag from frontmatter.
func invertOverride(pc parser.Context) *bool {
	raw, ok := goldmarkmeta.Get(pc)[InvertMetaKey]
	if !ok {
		return nil
	}
	var v bool
	switch val := raw.(type) {
	case bool:
		v = val
	case string:
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return nil
		}
		v = parsed
	default:
		if parsed, err := strconv.ParseBool(fmt.Sprint(val)); err == nil {
			v = parsed
		} else {
			return nil
		}
	}
	return &v
}

// IsDiagramLanguage reports whether a fence info string selects a diagram
// renderer.
func IsDiagramLanguage(lang string) bool {
	lang = strings.TrimSpace(lang)
	return strings.EqualFold(lang, tikzLanguage) || strings.EqualFold(lang, d2Language)
}
