package transform

import (
	"bytes"
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/util"
)

const mermaidLanguage = "mermaid"

// FenceWrapper wraps code blocks the highlighter left alone. ```mermaid
// fences become divs Mermaid.js can hydrate. Diagram fences that reach the
// highlighter were not rendered (no renderer configured) and keep their
// source in a marked pre block.
func FenceWrapper() highlighting.WrapperRenderer {
	return func(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
		if ctx.Highlighted() {
			return
		}

		lang, _ := ctx.Language()
		normalized := strings.TrimSpace(strings.ToLower(string(lang)))
		if normalized == mermaidLanguage {
			if entering {
				_, _ = w.WriteString(`<div class="mermaid">`)
			} else {
				_, _ = w.WriteString("</div>\n")
			}
			return
		}

		if !entering {
			_, _ = w.WriteString("</code></pre>\n")
			return
		}
		if IsDiagramLanguage(normalized) {
			_, _ = w.WriteString(`<pre class="diagram-source">`)
		} else {
			_, _ = w.WriteString("<pre>")
		}
		_, _ = w.WriteString("<code")
		if len(bytes.TrimSpace(lang)) > 0 {
			_, _ = w.WriteString(` class="language-`)
			_, _ = w.Write(util.EscapeHTML(lang))
			_, _ = w.WriteString(`"`)
		}
		_, _ = w.WriteString(">")
	}
}
