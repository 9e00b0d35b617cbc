package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/euforicio/wikitikz/internal/exporter"
)

// handleExport buffers the whole download so a failed export still gets a
// proper status code.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	raw := strings.TrimSpace(query.Get("path"))
	if raw == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse("path parameter is required"))
		return
	}
	rel, err := cleanWikiPath(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "invalid export path attempted", slog.String("path", raw))
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid path"))
		return
	}
	format, err := exporter.ParseFormat(query.Get("format"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid format: "+err.Error()))
		return
	}

	var body bytes.Buffer
	err = s.exporter.ExportPage(ctx, exporter.ExportPageOptions{
		Writer:  &body,
		Format:  format,
		RootDir: s.content.Root(),
		Path:    rel,
	})
	switch {
	case errors.Is(err, os.ErrNotExist):
		respondJSON(w, http.StatusNotFound, errorResponse("document not found"))
		return
	case errors.Is(err, exporter.ErrInvalidPath):
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid path"))
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "export failed",
			slog.Any("err", err), slog.String("path", rel), slog.String("format", string(format)))
		respondJSON(w, http.StatusInternalServerError, errorResponse("export failed"))
		return
	}

	h := w.Header()
	h.Set("Content-Type", format.ContentType())
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(rel)+format.Extension()))
	h.Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := body.WriteTo(w); err != nil {
		s.logger.DebugContext(ctx, "export write interrupted", slog.Any("err", err))
	}
}

// exportFilename reduces a wiki path to a safe download name without
// extension: "guides/My Page.md" becomes "My-Page".
func exportFilename(rel string) string {
	base := path.Base(rel)
	base = strings.TrimSuffix(base, path.Ext(base))
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '-'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	if name == "" || name == "." {
		return "export"
	}
	return name
}
