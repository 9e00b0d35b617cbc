package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/euforicio/wikitikz/internal/content/tree"
	"github.com/euforicio/wikitikz/internal/renderer"
	"github.com/euforicio/wikitikz/internal/settings"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

type templateRenderer struct {
	tmpl *template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	tmpl, err := template.New("layout").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &templateRenderer{tmpl: tmpl}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"dict":     dict,
		"urlquery": template.URLQueryEscaper,
		"isActive": strings.EqualFold,
		"plural": func(n int, word string) string {
			if n == 1 {
				return fmt.Sprintf("1 %s", word)
			}
			return fmt.Sprintf("%d %ss", n, word)
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("Jan 2, 2006 3:04 PM")
		},
		"hasMetadata": func(meta renderer.Metadata) bool { return !meta.IsZero() },
	}
}

// dict builds a map from alternating keys and values so recursive templates
// can receive more than one argument.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict needs key/value pairs")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// renderTemplate executes into a buffer first so a template error still
// produces a clean 500 instead of a truncated page.
func (s *Server) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "render template failed", slog.Any("err", err), slog.String("template", name))
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.DebugContext(r.Context(), "write template response", slog.Any("err", err))
	}
}

// layoutViewData feeds the full page shell: navigation, the active page and
// the settings toggle.
type layoutViewData struct { //nolint:govet // grouped for template readability
	Tree          *tree.Node
	ActivePath    string
	Page          pageViewData
	HasDocument   bool
	CustomCSSURLs []string
	DarkModeFirst bool
	Settings      settings.Settings
}

type pageViewData struct {
	Path        string
	Title       string
	HTML        template.HTML
	Metadata    renderer.Metadata
	Modified    time.Time
	Breadcrumbs []breadcrumb
	// Diagrams counts tikz and d2 fences; Reports counts the ones that failed.
	Diagrams int
	Reports  int
	Missing  bool
}

type treeViewData struct {
	Root   *tree.Node
	Active string
}

type breadcrumb struct {
	Title string
	Path  string
}
