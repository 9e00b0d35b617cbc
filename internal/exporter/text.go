package exporter

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var textParser = goldmark.New(goldmark.WithExtensions(extension.GFM, meta.Meta)).Parser()

// plainText flattens markdown to readable text. Frontmatter, raw HTML and
// diagram sources are dropped; each diagram leaves a bracketed placeholder.
func plainText(src []byte) []byte {
	root := textParser.Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if entering {
				if label, ok := diagramLabels[string(bytes.ToLower(node.Language(src)))]; ok {
					fmt.Fprintf(&buf, "[%s diagram]\n\n", label)
				} else {
					writeBlockLines(&buf, node, src)
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if entering {
				writeBlockLines(&buf, node, src)
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if entering {
				buf.WriteString("- ")
			}
		case *east.TaskCheckBox:
			if entering {
				if node.IsChecked {
					buf.WriteString("[x] ")
				} else {
					buf.WriteString("[ ] ")
				}
			}
		case *east.TableCell:
			if !entering && node.NextSibling() != nil {
				buf.WriteByte('\t')
			}
		case *east.TableHeader, *east.TableRow, *ast.TextBlock:
			if !entering {
				buf.WriteByte('\n')
			}
		case *ast.ThematicBreak:
			if entering {
				buf.WriteString("---\n\n")
			}
		case *ast.Heading, *ast.Paragraph, *ast.List, *east.Table:
			if !entering {
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return squeezeBlankLines(buf.Bytes())
}

func writeBlockLines(buf *bytes.Buffer, n ast.Node, src []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	buf.WriteByte('\n')
}

// squeezeBlankLines trims trailing spaces, collapses runs of blank lines and
// ends the text with exactly one newline.
func squeezeBlankLines(b []byte) []byte {
	var out bytes.Buffer
	blank := true
	for _, line := range bytes.Split(b, []byte("\n")) {
		line = bytes.TrimRight(line, " \t")
		if len(line) == 0 {
			if !blank {
				out.WriteByte('\n')
			}
			blank = true
			continue
		}
		out.Write(line)
		out.WriteByte('\n')
		blank = false
	}
	return append(bytes.TrimRight(out.Bytes(), "\n"), '\n')
}
