// Package tree builds the navigation tree of a wiki directory.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/euforicio/wikitikz/internal/renderer"
)

// NodeType identifies what a tree node represents.
type NodeType string

const (
	NodeTypeDirectory NodeType = "directory"
	NodeTypeFile      NodeType = "file"
)

// Node is a directory or markdown document in the navigation tree.
type Node struct {
	Modified     time.Time          `json:"modified"`
	Metadata     *renderer.Metadata `json:"metadata,omitempty"`
	Name         string             `json:"name"`
	RawName      string             `json:"rawName"`
	RelativePath string             `json:"relativePath"`
	Slug         string             `json:"slug"`
	Type         NodeType           `json:"type"`
	Title        string             `json:"title"`
	Children     []*Node            `json:"children,omitempty"`
	Size         int64              `json:"size"`
	// Diagrams counts tikz and d2 fences; for directories it is the total of
	// all descendants.
	Diagrams int `json:"diagrams"`
	// Preamble is set on directories that hold a preamble file of their own.
	Preamble bool `json:"preamble,omitempty"`
}

// Inspector reads frontmatter and counts diagrams without rendering.
type Inspector interface {
	Inspect(content []byte) renderer.Summary
}

// Options control how the tree is constructed.
type Options struct {
	Inspector Inspector
	// IsPreamble marks directories carrying a preamble. Preamble files are
	// never listed as documents.
	IsPreamble    func(rel string) bool
	ExcludeDirs   []string
	IncludeHidden bool
}

// skippedDirs are dependency and tooling directories that never hold wiki
// pages.
var skippedDirs = []string{
	".git", ".hg", ".svn", ".idea", ".vscode", ".wikitikz",
	"node_modules", "vendor", "third_party", "deps",
	"venv", ".venv", "__pycache__",
}

// Build walks root and returns its markdown documents as a tree. Directories
// without documents are pruned, except the root itself.
func Build(ctx context.Context, root string, opts Options) (*Node, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	w := &walker{
		fsys:    os.DirFS(absRoot),
		opts:    opts,
		skipped: make(map[string]bool),
	}
	for _, name := range slices.Concat(skippedDirs, opts.ExcludeDirs) {
		if name = strings.TrimSpace(name); name != "" {
			w.skipped[strings.ToLower(name)] = true
		}
	}

	node, err := w.dir(ctx, ".", info)
	if err != nil {
		return nil, err
	}
	node.Name = filepath.Base(absRoot)
	node.Title = node.Name
	node.RawName = node.Name
	return node, nil
}

type walker struct {
	fsys    fs.FS
	opts    Options
	skipped map[string]bool
}

func (w *walker) dir(ctx context.Context, rel string, info fs.FileInfo) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(w.fsys, rel)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", rel, err)
	}

	node := &Node{
		RawName:  info.Name(),
		Type:     NodeTypeDirectory,
		Modified: info.ModTime(),
	}
	if rel != "." {
		node.RelativePath = rel
		node.Slug = slugify(rel)
		node.Name = displayName(info.Name())
		node.Title = node.Name
	}

	for _, entry := range entries {
		name := entry.Name()
		childRel := path.Join(rel, name)

		if !entry.IsDir() && w.opts.IsPreamble != nil && w.opts.IsPreamble(childRel) {
			node.Preamble = true
			continue
		}
		if strings.HasPrefix(name, ".") && !w.opts.IncludeHidden {
			continue
		}

		var child *Node
		switch {
		case entry.IsDir():
			if w.skipped[strings.ToLower(name)] {
				continue
			}
			childInfo, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", childRel, err)
			}
			if child, err = w.dir(ctx, childRel, childInfo); err != nil {
				return nil, err
			}
			if len(child.Children) == 0 {
				continue
			}
		case isMarkdown(name):
			if child, err = w.file(ctx, childRel, entry); err != nil {
				return nil, err
			}
		default:
			continue
		}
		node.Children = append(node.Children, child)
		node.Diagrams += child.Diagrams
	}

	slices.SortStableFunc(node.Children, compareNodes)
	return node, nil
}

func (w *walker) file(ctx context.Context, rel string, entry fs.DirEntry) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := entry.Info()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	content, err := fs.ReadFile(w.fsys, rel)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}

	name := displayName(entry.Name())
	node := &Node{
		Name:         name,
		Title:        name,
		RawName:      entry.Name(),
		RelativePath: rel,
		Slug:         slugify(rel),
		Type:         NodeTypeFile,
		Modified:     info.ModTime(),
		Size:         info.Size(),
	}
	if w.opts.Inspector == nil {
		return node, nil
	}

	summary := w.opts.Inspector.Inspect(content)
	node.Diagrams = summary.Diagrams
	if meta := summary.Metadata; !meta.IsZero() {
		node.Metadata = &meta
		if meta.Title != "" {
			node.Title = meta.Title
		}
	}
	return node, nil
}

// compareNodes lists directories first, then sorts by title.
func compareNodes(a, b *Node) int {
	if a.Type != b.Type {
		if a.Type == NodeTypeDirectory {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Title, b.Title)
}

func isMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func displayName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}

// slugify lowercases each segment, drops extensions and turns underscores and
// spaces into dashes: "Guides/Advanced_Topics.md" becomes
// "guides/advanced-topics".
func slugify(rel string) string {
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		part = strings.ToLower(displayName(part))
		parts[i] = strings.Join(strings.Fields(part), "-")
	}
	return strings.Join(parts, "/")
}
