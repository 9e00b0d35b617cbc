package renderer

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/euforicio/wikitikz/internal/renderer/transform"
)

// linkRewriter points relative links at markdown files to /page/ routes and
// relative image sources to /media/, resolving both against the directory of
// the document being rendered. Query strings and fragments are kept.
type linkRewriter struct{}

func (linkRewriter) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	dir := path.Dir(transform.DocPath(pc))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			node.Destination = rewriteDestination(node.Destination, dir, "/page/", isMarkdownTarget)
		case *ast.Image:
			node.Destination = rewriteDestination(node.Destination, dir, "/media/", func(p string) bool {
				return !strings.HasPrefix(p, "/static/")
			})
		}
		return ast.WalkContinue, nil
	})
}

// rewriteDestination returns dest unchanged unless it is a local path that
// want accepts and that is not already under route.
func rewriteDestination(dest []byte, dir, route string, want func(string) bool) []byte {
	u, err := url.Parse(string(dest))
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return dest
	}
	if strings.HasPrefix(u.Path, route) || !want(u.Path) {
		return dest
	}
	u.Path = route + wikiPath(u.Path, dir)
	return []byte(u.String())
}

func isMarkdownTarget(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// wikiPath resolves p against dir. Absolute paths are taken from the wiki
// root.
func wikiPath(p, dir string) string {
	if !strings.HasPrefix(p, "/") && dir != "." && dir != "" {
		p = path.Join(dir, p)
	}
	return strings.TrimPrefix(path.Clean(p), "/")
}
