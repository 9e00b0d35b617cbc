package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/euforicio/wikitikz/internal/config"
	"github.com/euforicio/wikitikz/internal/content"
	"github.com/euforicio/wikitikz/internal/content/tree"
	"github.com/euforicio/wikitikz/internal/renderer"
	"github.com/euforicio/wikitikz/internal/settings"
	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/tikztest"
)

func TestAPIHandlers(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	t.Run("tree returns root snapshot", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tree", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var resp struct {
			GeneratedAt time.Time  `json:"generatedAt"`
			Root        *tree.Node `json:"root"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Root == nil {
			t.Fatalf("expected root node, got nil")
		}
		if resp.Root.Diagrams != 3 {
			t.Fatalf("expected 3 diagrams in the wiki, got %d", resp.Root.Diagrams)
		}
		found := false
		for _, child := range resp.Root.Children {
			if child.RelativePath == "index.md" {
				found = true
				if child.Metadata == nil || child.Metadata.Title != "Welcome" {
					t.Fatalf("expected metadata title 'Welcome', got %#v", child.Metadata)
				}
				break
			}
		}
		if !found {
			t.Fatalf("expected to find index.md in tree; got %+v", resp.Root.Children)
		}
	})

	t.Run("tree returns HTML fragment on request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tree?current=index.md", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("HX-Trigger") == "" {
			t.Fatalf("expected HX-Trigger header")
		}
		body := rec.Body.String()
		if !strings.Contains(body, `data-tree-path="guides/getting-started.md"`) {
			t.Fatalf("expected tree fragment, got %s", body)
		}
		if !strings.Contains(body, "is-active") {
			t.Fatalf("expected active entry to be marked")
		}
	})

	t.Run("page endpoint renders markdown", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/page/index.md", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d with body %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Path     string        `json:"path"`
			HTML     string        `json:"html"`
			Reports  []diag.Report `json:"reports"`
			Diagrams int           `json:"diagrams"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Path != "index.md" {
			t.Fatalf("expected path index.md, got %s", resp.Path)
		}
		if !strings.Contains(resp.HTML, "<h1 id=\"welcome\">Welcome") {
			t.Fatalf("expected rendered HTML to contain heading, got %q", resp.HTML)
		}
		if resp.Reports == nil || len(resp.Reports) != 0 {
			t.Fatalf("expected an empty reports list, got %#v", resp.Reports)
		}
	})

	t.Run("page endpoint returns raw markdown when requested", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/page/index.md?format=raw", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d with body %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Path string `json:"path"`
			Raw  string `json:"raw"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !strings.HasPrefix(resp.Raw, "---\ntitle: Welcome") {
			t.Fatalf("expected raw markdown, got %q", resp.Raw)
		}
	})

	t.Run("page endpoint returns 404 for missing documents", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/page/nope.md", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("page fragment carries trigger and path header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/page/guides/getting-started.md", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("X-Wikitikz-Path"); got != "guides/getting-started.md" {
			t.Fatalf("unexpected path header %q", got)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `class="page-title">Getting Started<`) {
			t.Fatalf("expected page fragment with title, got %s", body)
		}
		if !strings.Contains(body, `<nav class="breadcrumbs"`) {
			t.Fatalf("expected breadcrumbs in fragment, got %s", body)
		}
	})
}

func TestRootHandlerRedirectsToFirstDocument(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/page/") || !strings.HasSuffix(loc, ".md") {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestPageRouteRendersLayout(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/page/guides/advanced_topics.md", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<html",
		`id="page-region"`,
		`data-active-path="guides/advanced_topics.md"`,
		`data-setting="invertColorsInDarkMode" checked`,
		"Advanced Topics",
		`<pre class="diagram-source"><code class="language-tikz">`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in layout, got %s", want, body)
		}
	}
}

func TestPageRouteRendersMissingDocument(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/page/ghost.md", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<code>ghost.md</code> was not found") {
		t.Fatalf("expected missing notice, got %s", rec.Body.String())
	}
}

func TestEventsHandlerSendsReadyComment(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleEvents(rec, req)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ": ready\n\n") {
		t.Fatalf("expected ready comment in body, got %q", rec.Body.String())
	}
}

func TestEventsHandlerForwardsSettingsChanges(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	pr, pw := io.Pipe()
	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), w: pw}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	go func() {
		srv.handleEvents(rec, req)
		_ = pw.Close()
	}()

	buf := make([]byte, 256)
	n, err := pr.Read(buf)
	if err != nil || !strings.Contains(string(buf[:n]), ": ready") {
		t.Fatalf("expected ready comment, got %q (%v)", buf[:n], err)
	}

	srv.content.SettingsChanged()

	n, err = pr.Read(buf)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if !strings.Contains(string(buf[:n]), `"type":"settingsUpdated"`) {
		t.Fatalf("expected settingsUpdated event, got %q", buf[:n])
	}
	cancel()
	go func() { _, _ = io.Copy(io.Discard, pr) }()
}

func TestSettingsHandlers(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	get := func() settings.Settings {
		t.Helper()
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET settings: %d", rec.Code)
		}
		var got settings.Settings
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode settings: %v", err)
		}
		return got
	}
	put := func(body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body))
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	if !get().InvertColorsInDarkMode {
		t.Fatalf("expected inversion enabled by default")
	}

	if rec := put(`{"invertColorsInDarkMode":false}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT settings: %d %s", rec.Code, rec.Body.String())
	}
	if get().InvertColorsInDarkMode {
		t.Fatalf("expected inversion disabled after PUT")
	}
	data, err := os.ReadFile(srv.settings.Path())
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	if !strings.Contains(string(data), `"invertColorsInDarkMode": false`) {
		t.Fatalf("unexpected settings file %s", data)
	}

	if rec := put(`{"invertColorsInDarkMode":"yes"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong type, got %d", rec.Code)
	}
	if rec := put(`{"unknown":true}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
	if rec := put(`{}`); rec.Code != http.StatusOK || get().InvertColorsInDarkMode {
		t.Fatalf("expected empty PUT to keep settings, got %d", rec.Code)
	}
}

func TestRenderHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{pipeline: true})

	post := func(body string) (*httptest.ResponseRecorder, renderResponse) {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/render", strings.NewReader(body))
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		var resp renderResponse
		if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode render response: %v", err)
			}
		}
		return rec, resp
	}

	t.Run("renders with the document preamble", func(t *testing.T) {
		rec, resp := post(`{"source":"\\node[state] {A};","path":"guides/new.md"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(resp.SVG, "<svg") {
			t.Fatalf("expected svg, got %q", resp.SVG)
		}
		if !strings.Contains(resp.SVG, `\usetikzlibrary{automata, positioning}`) {
			t.Fatalf("expected guides preamble merged into the render, got %q", resp.SVG)
		}
		if resp.Report != nil || resp.Error != "" {
			t.Fatalf("unexpected failure %+v", resp)
		}
	})

	t.Run("failed render returns the report", func(t *testing.T) {
		rec, resp := post(`{"source":"\\BROKEN"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp.Report == nil || resp.Report.Title != diag.DocumentErrorTitle {
			t.Fatalf("expected document error report, got %+v", resp.Report)
		}
		if resp.Error == "" {
			t.Fatalf("expected error message alongside the report")
		}
	})

	t.Run("empty source is rejected", func(t *testing.T) {
		rec, _ := post(`{"source":"  &nbsp; \n"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("escaping path is rejected", func(t *testing.T) {
		rec, _ := post(`{"source":"\\draw (0,0);","path":"../outside.md"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRenderHandlerWithoutPipeline(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/render", strings.NewReader(`{"source":"x"}`))
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPageIncludesDiagramReports(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{
		pipeline: true,
		files: map[string]string{
			"broken.md": "# Broken\n\n```tikz\n\\BROKEN\n```\n\n```tikz\n\\draw (0,0) -- (1,0);\n```\n",
		},
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/page/broken.md", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp pageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Diagrams != 2 {
		t.Fatalf("expected 2 diagrams, got %d", resp.Diagrams)
	}
	if len(resp.Reports) != 1 || resp.Reports[0].Title != diag.DocumentErrorTitle {
		t.Fatalf("expected one document error report, got %+v", resp.Reports)
	}
	if !strings.Contains(resp.HTML, `class="tikz-report"`) || !strings.Contains(resp.HTML, `fill="currentColor"`) {
		t.Fatalf("expected report and inverted diagram in HTML, got %s", resp.HTML)
	}
}

func TestExportHandlerSecurity(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testServerOptions{})

	rejected := []struct {
		name string
		path string
	}{
		{"blocks path traversal with ..", "../etc/passwd"},
		{"blocks path traversal with multiple ..", "../../etc/passwd"},
		{"blocks absolute paths", "/etc/passwd"},
		{"blocks path with .. in middle", "subdir/../../../etc/passwd"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/export?path="+tc.path+"&format=html", nil)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !strings.Contains(resp["error"], "invalid path") {
				t.Errorf("expected 'invalid path' error, got %q", resp["error"])
			}
		})
	}

	t.Run("rejects invalid format", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/export?path=index.md&format=invalid", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "invalid format") {
			t.Errorf("expected 'invalid format' error, got %s", rec.Body.String())
		}
	})

	t.Run("accepts valid path and format", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/export?path=index.md&format=html", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d with body: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
			t.Errorf("expected content-type text/html, got %s", ct)
		}
		disposition := rec.Header().Get("Content-Disposition")
		if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "index.html") {
			t.Errorf("expected attachment named index.html, got %s", disposition)
		}
	})

	t.Run("accepts valid nested path", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/export?path=guides/getting-started.md&format=markdown", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d with body: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/markdown") {
			t.Errorf("expected content-type text/markdown, got %s", ct)
		}
	})

	t.Run("missing document is 404", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/export?path=ghost.md", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("requires path parameter", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/export?format=html", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "path parameter is required") {
			t.Errorf("expected 'path parameter is required' error, got %s", rec.Body.String())
		}
	})
}

func TestCleanWikiPath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"index.md":            "index.md",
		"guides/./a.md":       "guides/a.md",
		"guides/x/../a.md":    "guides/a.md",
		" spaced/page.md ":    "spaced/page.md",
		"notes/..hidden.md":   "notes/..hidden.md",
		"a/b/../../c/page.md": "c/page.md",
	}
	for in, want := range cases {
		got, err := cleanWikiPath(in)
		if err != nil || got != want {
			t.Fatalf("cleanWikiPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"", ".", "..", "../x", "/abs", "a/../../x"} {
		if _, err := cleanWikiPath(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

type testServerOptions struct {
	files    map[string]string
	pipeline bool
}

// testServer wraps Server with the middleware chain used in production.
type testServer struct {
	*Server
	handler http.Handler
}

func (ts *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ts.handler.ServeHTTP(w, r)
}

func newTestServer(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()

	tempRoot := t.TempDir()
	copyDir(t, filepath.Join("..", "..", "testdata", "wiki"), tempRoot)
	for name, body := range opts.files {
		target := filepath.Join(tempRoot, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	store := settings.NewStore(filepath.Join(tempRoot, ".wikitikz", "settings.json"), logger)
	if err := store.Load(); err != nil {
		t.Fatalf("load settings: %v", err)
	}

	var pipeline *tikz.Pipeline
	if opts.pipeline {
		pipeline = tikztest.Pipeline(t, os.DirFS(tempRoot), store.InvertColors)
	}
	renderSvc := renderer.NewService(logger, renderer.Options{Pipeline: pipeline})

	ctx, cancel := context.WithCancel(context.Background())
	contentSvc, err := content.NewService(ctx, tempRoot, renderSvc, logger, content.Options{})
	if err != nil {
		cancel()
		t.Fatalf("content service init failed: %v", err)
	}
	t.Cleanup(func() {
		_ = contentSvc.Close()
		cancel()
	})
	store.OnChange(func(settings.Settings) { contentSvc.SettingsChanged() })

	cfg := config.Default()
	cfg.RootDir = tempRoot
	cfg.AutoOpen = false
	cfg.AssetsDir = filepath.Join("..", "..", "static")

	srv, err := New(cfg, logger, Deps{
		Content:  contentSvc,
		Pipeline: pipeline,
		Settings: store,
	})
	if err != nil {
		t.Fatalf("server init failed: %v", err)
	}
	return &testServer{Server: srv, handler: srv.Handler()}
}

// streamRecorder mirrors every write into a pipe so tests can read SSE
// frames as they are flushed.
type streamRecorder struct {
	*httptest.ResponseRecorder
	w *io.PipeWriter
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	_, _ = r.ResponseRecorder.Write(p)
	return r.w.Write(p)
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	if err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	}); err != nil {
		t.Fatalf("copyDir failed: %v", err)
	}
}
