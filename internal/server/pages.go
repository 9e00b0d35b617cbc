package server

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/euforicio/wikitikz/internal/content"
	"github.com/euforicio/wikitikz/internal/content/tree"
	"github.com/euforicio/wikitikz/internal/renderer"
	"github.com/euforicio/wikitikz/internal/settings"
)

// loadTree fetches the current tree or writes a 500 and returns nil.
func (s *Server) loadTree(w http.ResponseWriter, r *http.Request) *tree.Node {
	root, err := s.content.CurrentTree(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "load content tree failed", slog.Any("err", err))
		http.Error(w, "failed to load content tree", http.StatusInternalServerError)
		return nil
	}
	return root
}

// handleRoot redirects to ?page= when given, else to the first document. An
// empty wiki gets the bare layout.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	root := s.loadTree(w, r)
	if root == nil {
		return
	}
	if requested := strings.TrimSpace(r.URL.Query().Get("page")); requested != "" {
		http.Redirect(w, r, "/page/"+requested, http.StatusMovedPermanently)
		return
	}
	if first := root.FirstDocument(); first != "" {
		http.Redirect(w, r, "/page/"+first, http.StatusFound)
		return
	}
	s.renderTemplate(w, r, "layout", s.layoutData(root, "", pageViewData{}, false))
}

// handlePageRoute serves the full HTML shell for a document. A missing
// document still renders the shell so the tree stays usable.
func (s *Server) handlePageRoute(w http.ResponseWriter, r *http.Request) {
	rel, err := parseWildcardPath(r.PathValue("path"))
	if err != nil {
		s.respondPathError(w, err)
		return
	}
	root := s.loadTree(w, r)
	if root == nil {
		return
	}

	doc, err := s.content.Document(r.Context(), rel)
	switch {
	case err == nil:
		s.renderTemplate(w, r, "layout", s.layoutData(root, rel, s.pageView(root, rel, doc), true))
	case errors.Is(err, content.ErrInvalidPath):
		http.Error(w, "Invalid path", http.StatusBadRequest)
	case errors.Is(err, os.ErrNotExist):
		missing := pageViewData{Path: rel, Title: titleFromPath(rel) + " (missing)", Missing: true}
		s.renderTemplate(w, r, "layout", s.layoutData(root, rel, missing, false))
	default:
		s.logger.WarnContext(r.Context(), "page load failed", slog.Any("err", err), slog.String("path", rel))
		http.Error(w, "failed to load page", http.StatusInternalServerError)
	}
}

func (s *Server) layoutData(root *tree.Node, active string, page pageViewData, hasDocument bool) layoutViewData {
	return layoutViewData{
		Tree:          root,
		ActivePath:    active,
		Page:          page,
		HasDocument:   hasDocument,
		CustomCSSURLs: s.customCSSURLs(),
		DarkModeFirst: s.cfg.DarkModeFirst,
		Settings:      s.currentSettings(),
	}
}

func (s *Server) currentSettings() settings.Settings {
	if s.settings == nil {
		return settings.Defaults()
	}
	return s.settings.Get()
}

// handleTree returns the tree as JSON, or as the sidebar fragment for htmx.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	node, err := s.content.CurrentTree(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "fetch tree failed", slog.Any("err", err))
		respondJSON(w, http.StatusInternalServerError, errorResponse("failed to load tree"))
		return
	}

	if isFragmentRequest(r) {
		active := r.URL.Query().Get("current")
		setHXTrigger(w, map[string]any{"treeUpdated": map[string]any{"active": active}})
		s.renderTemplate(w, r, "tree", treeViewData{Root: node, Active: active})
		return
	}
	respondJSON(w, http.StatusOK, struct {
		GeneratedAt time.Time  `json:"generatedAt"`
		Root        *tree.Node `json:"root"`
	}{time.Now(), node})
}

// handlePage returns a rendered document as JSON or, for htmx, as the page
// fragment. ?format=raw (or markdown) returns the unrendered source.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	rel, err := parseWildcardPath(r.PathValue("path"))
	if err != nil {
		s.respondPathError(w, err)
		return
	}
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "raw", "markdown":
		s.handlePageSource(w, r, rel)
		return
	}

	doc, err := s.content.Document(r.Context(), rel)
	if err != nil {
		s.respondDocumentError(w, r, rel, err)
		return
	}
	if !isFragmentRequest(r) {
		respondJSON(w, http.StatusOK, newPageResponse(rel, doc))
		return
	}

	page := s.pageView(s.treeOrNil(r.Context()), rel, doc)
	setHXTrigger(w, map[string]any{
		"pageLoaded": map[string]any{"path": rel, "title": page.Title, "reports": len(doc.Reports)},
	})
	w.Header().Set("X-Wikitikz-Path", rel)
	s.renderTemplate(w, r, "page", page)
}

// handlePageSource skips rendering so editors get the source without
// waiting on TeX.
func (s *Server) handlePageSource(w http.ResponseWriter, r *http.Request, rel string) {
	clean, data, err := s.content.Source(r.Context(), rel)
	if err != nil {
		s.respondDocumentError(w, r, rel, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": clean, "raw": string(data)})
}

func (s *Server) respondDocumentError(w http.ResponseWriter, r *http.Request, rel string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, content.ErrInvalidPath):
		status = http.StatusBadRequest
	default:
		s.logger.ErrorContext(r.Context(), "load page failed", slog.Any("err", err), slog.String("path", rel))
	}
	respondJSON(w, status, errorResponse(err.Error()))
}

func (s *Server) treeOrNil(ctx context.Context) *tree.Node {
	root, err := s.content.CurrentTree(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "load tree for breadcrumbs failed", slog.Any("err", err))
		return nil
	}
	return root
}

func (s *Server) pageView(root *tree.Node, rel string, doc renderer.Document) pageViewData {
	title := doc.Metadata.Title
	if title == "" {
		title = titleFromPath(rel)
	}
	return pageViewData{
		Path:        rel,
		Title:       title,
		HTML:        template.HTML(doc.HTML), //nolint:gosec // produced by the renderer
		Metadata:    doc.Metadata,
		Modified:    doc.Modified,
		Breadcrumbs: breadcrumbs(root, rel),
		Diagrams:    doc.Diagrams,
		Reports:     len(doc.Reports),
	}
}

// breadcrumbs lists the directories above rel and rel itself. Only the
// intermediate documents link anywhere; the current page does not.
func breadcrumbs(root *tree.Node, rel string) []breadcrumb {
	trail := root.Trail(rel)
	if len(trail) < 2 {
		return nil
	}
	trail = trail[1:]
	out := make([]breadcrumb, len(trail))
	for i, node := range trail {
		out[i].Title = node.Title
		if out[i].Title == "" {
			out[i].Title = titleFromPath(node.RelativePath)
		}
		if node.Type == tree.NodeTypeFile && i < len(trail)-1 {
			out[i].Path = node.RelativePath
		}
	}
	return out
}

// titleFromPath turns "guides/getting-started.md" into "Getting Started".
func titleFromPath(p string) string {
	base := strings.TrimSuffix(path.Base(p), path.Ext(p))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	if len(words) == 0 || base == "." || base == "/" {
		return "Untitled Document"
	}
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
