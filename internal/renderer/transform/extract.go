package transform

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fence is one fenced code block lifted out of a markdown document.
type Fence struct {
	Source string
	// Line is the 1-based line of the first content line.
	Line int
}

// ExtractFences returns the bodies of every fenced block whose info string
// selects language, in document order. Matching is case-insensitive.
func ExtractFences(src []byte, language string) []Fence {
	reader := text.NewReader(src)
	root := goldmark.DefaultParser().Parse(reader)

	var fences []Fence
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok || !isFence(block, src, language) {
			return ast.WalkContinue, nil
		}
		fence := Fence{Source: blockSource(block, reader)}
		if block.Lines().Len() > 0 {
			fence.Line = lineOf(src, block.Lines().At(0).Start)
		}
		fences = append(fences, fence)
		return ast.WalkSkipChildren, nil
	})
	return fences
}

func lineOf(src []byte, offset int) int {
	line := 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
		}
	}
	return line
}
