package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/euforicio/wikitikz/internal/renderer"
	"github.com/euforicio/wikitikz/internal/settings"
	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/engine"
)

//nolint:govet // field order optimized for readability
type pageResponse struct {
	Metadata renderer.Metadata `json:"metadata"`
	Modified time.Time         `json:"modified"`
	Path     string            `json:"path"`
	HTML     string            `json:"html"`
	Reports  []diag.Report     `json:"reports"`
	Diagrams int               `json:"diagrams"`
}

func newPageResponse(path string, doc renderer.Document) pageResponse {
	reports := doc.Reports
	if reports == nil {
		reports = []diag.Report{}
	}
	return pageResponse{
		Path:     path,
		HTML:     doc.HTML,
		Metadata: doc.Metadata,
		Modified: doc.Modified,
		Reports:  reports,
		Diagrams: doc.Diagrams,
	}
}

type renderRequest struct {
	Invert *bool  `json:"invert,omitempty"`
	Source string `json:"source"`
	Path   string `json:"path"`
}

type renderResponse struct {
	Report     *diag.Report `json:"report,omitempty"`
	SVG        string       `json:"svg,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"durationMs"`
	Cached     bool         `json:"cached"`
}

// handleRender renders one tikz block for editor previews. Path selects the
// document whose preamble applies; it defaults to the wiki root.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.pipeline == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse("diagram rendering not configured"))
		return
	}

	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logger.WarnContext(ctx, "decode render payload failed", slog.Any("err", err))
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid JSON payload"))
		return
	}

	docPath := "index.md"
	if req.Path != "" {
		cleaned, err := cleanWikiPath(req.Path)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse("invalid path"))
			return
		}
		docPath = cleaned
	}

	res := s.pipeline.RenderBlock(ctx, tikz.Block{
		Source:  req.Source,
		DocPath: docPath,
		Invert:  req.Invert,
	})

	resp := renderResponse{
		SVG:        res.SVG,
		Report:     res.Report,
		DurationMS: res.Duration.Milliseconds(),
		Cached:     res.Cached,
	}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		switch {
		case errors.Is(res.Err, engine.ErrEmptyDiagram):
			status = http.StatusBadRequest
		case errors.Is(res.Err, engine.ErrRenderFailed):
			// The report carries the actionable part.
		default:
			status = http.StatusInternalServerError
			s.logger.ErrorContext(ctx, "render block failed", slog.Any("err", res.Err), slog.String("path", docPath))
		}
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.currentSettings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.settings == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse("settings not configured"))
		return
	}

	var payload struct {
		InvertColorsInDarkMode *bool `json:"invertColorsInDarkMode"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		s.logger.WarnContext(ctx, "decode settings payload failed", slog.Any("err", err))
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid JSON payload"))
		return
	}

	updated, err := s.settings.Update(func(cur *settings.Settings) {
		if payload.InvertColorsInDarkMode != nil {
			cur.InvertColorsInDarkMode = *payload.InvertColorsInDarkMode
		}
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "save settings failed", slog.Any("err", err), slog.String("file", s.settings.Path()))
		respondJSON(w, http.StatusInternalServerError, errorResponse("failed to save settings"))
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
