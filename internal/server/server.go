// Package server provides the HTTP server for the wikitikz web application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/euforicio/wikitikz/internal/config"
	"github.com/euforicio/wikitikz/internal/content"
	"github.com/euforicio/wikitikz/internal/exporter"
	"github.com/euforicio/wikitikz/internal/settings"
	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/static"
)

const shutdownGrace = 5 * time.Second

// Server serves rendered wiki pages, the navigation tree, ad hoc diagram
// renders and the persisted display settings.
type Server struct { //nolint:govet // grouped by concern
	cfg    config.Config
	logger *slog.Logger

	mux        *http.ServeMux
	httpServer *http.Server
	templates  *templateRenderer

	content  *content.Service
	exporter *exporter.Exporter
	pipeline *tikz.Pipeline
	settings *settings.Store

	// customCSSPaths are the resolved global and per-wiki theme files.
	customCSSPaths []string
}

// Deps are the services a Server is built on. Content is required; the rest
// disable their routes when nil.
type Deps struct {
	Content  *content.Service
	Exporter *exporter.Exporter
	Pipeline *tikz.Pipeline
	Settings *settings.Store
}

// New constructs a Server and registers its routes. Call Start to serve.
func New(cfg config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	if deps.Content == nil {
		return nil, errors.New("content service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if deps.Exporter == nil {
		deps.Exporter = exporter.New(nil, exporter.Options{}, logger)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "http"),
		mux:       http.NewServeMux(),
		templates: tmpl,
		content:   deps.Content,
		exporter:  deps.Exporter,
		pipeline:  deps.Pipeline,
		settings:  deps.Settings,
	}
	s.discoverCustomCSS()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	assets := http.StripPrefix("/static/", http.FileServer(s.assetFS()))

	handlers := []struct {
		pattern string
		handler http.Handler
	}{
		{"GET /static/{path...}", assets},
		{"HEAD /static/{path...}", assets},
		{"GET /custom-theme/{index}", http.HandlerFunc(s.handleCustomCSS)},
		{"GET /media/{path...}", http.HandlerFunc(s.handleMedia)},
		{"GET /healthz", http.HandlerFunc(s.handleHealth)},

		{"GET /", http.HandlerFunc(s.handleRoot)},
		{"GET /page/{path...}", http.HandlerFunc(s.handlePageRoute)},

		{"GET /api/tree", http.HandlerFunc(s.handleTree)},
		{"GET /api/page/{path...}", http.HandlerFunc(s.handlePage)},
		{"GET /api/export", http.HandlerFunc(s.handleExport)},
		{"POST /api/render", http.HandlerFunc(s.handleRender)},
		{"GET /api/settings", http.HandlerFunc(s.handleGetSettings)},
		{"PUT /api/settings", http.HandlerFunc(s.handlePutSettings)},
		{"GET /events", http.HandlerFunc(s.handleEvents)},
	}
	for _, h := range handlers {
		s.mux.Handle(h.pattern, h.handler)
	}
}

// assetFS prefers an on-disk assets directory, for frontend work without a
// rebuild, and falls back to the embedded copy.
func (s *Server) assetFS() http.FileSystem {
	dir := strings.TrimSpace(s.cfg.AssetsDir)
	if dir == "" {
		return static.HTTP()
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		s.logger.Debug("serving assets from disk", slog.String("dir", dir))
		return http.Dir(dir)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		s.logger.Warn("assets dir unusable", slog.String("dir", dir), slog.Any("err", err))
	}
	return static.HTTP()
}

// Handler returns the route mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		csrfMiddleware,
		gzipMiddleware(s.logger),
		loggingMiddleware(s.logger, s.cfg.Verbose),
	)
}

// listen binds the configured port. Port 0 picks a free loopback port.
func (s *Server) listen() (net.Listener, string, error) {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.Port == 0 {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcp, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		return nil, "", fmt.Errorf("unexpected listener address %T", ln.Addr())
	}
	return ln, fmt.Sprintf("http://localhost:%d", tcp.Port), nil
}

// Start serves until ctx is canceled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, serverURL, err := s.listen()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Page requests render their diagrams inline.
		WriteTimeout: s.cfg.RenderTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	served := make(chan error, 1)
	go func() { served <- s.httpServer.Serve(ln) }()

	s.logger.Info("listening", slog.String("url", serverURL), slog.String("root", s.content.Root()))
	if _, err := fmt.Fprintf(os.Stdout, "wikitikz server listening on %s\n", serverURL); err != nil {
		s.logger.Warn("announce address failed", slog.Any("err", err))
	}
	if s.cfg.AutoOpen {
		go s.openBrowserWhenReady(ctx, serverURL)
	}

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown failed", slog.Any("err", err))
		return err
	}
	return ctx.Err()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
