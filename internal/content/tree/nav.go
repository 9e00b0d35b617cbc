package tree

import "strings"

// FirstDocument returns the relative path of the first document in display
// order, or "" for a tree without documents.
func (n *Node) FirstDocument() string {
	if n == nil {
		return ""
	}
	if n.Type == NodeTypeFile {
		return n.RelativePath
	}
	for _, child := range n.Children {
		if rel := child.FirstDocument(); rel != "" {
			return rel
		}
	}
	return ""
}

// Trail returns the nodes from n down to the node at rel, both included.
// Paths compare case-insensitively. It returns nil when rel is not in the
// tree.
func (n *Node) Trail(rel string) []*Node {
	if n == nil {
		return nil
	}
	if strings.EqualFold(n.RelativePath, rel) {
		return []*Node{n}
	}
	if n.Type != NodeTypeDirectory || !withinDir(rel, n.RelativePath) {
		return nil
	}
	for _, child := range n.Children {
		if rest := child.Trail(rel); rest != nil {
			return append([]*Node{n}, rest...)
		}
	}
	return nil
}

// withinDir reports whether rel can live below dir; the root directory has
// an empty relative path.
func withinDir(rel, dir string) bool {
	if dir == "" || dir == "." {
		return true
	}
	return len(rel) > len(dir) && strings.EqualFold(rel[:len(dir)], dir) && rel[len(dir)] == '/'
}
