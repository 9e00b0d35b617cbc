package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// settingsDirName holds per-user and per-wiki overrides such as custom.css
// and the persisted settings file.
const settingsDirName = ".wikitikz"

// maxCSSSize caps custom theme files served to the browser.
const maxCSSSize = 1 << 20

// discoverCustomCSS searches for custom theme CSS files in global and per-wiki
// locations. Paths are validated once here and again on every request.
func (s *Server) discoverCustomCSS() {
	var cssPaths []string

	if homeDir, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(homeDir, settingsDirName)
		if validCSS := s.validateCSSPath(filepath.Join(dir, "custom.css"), dir); validCSS != "" {
			s.logger.Debug("found global custom CSS", slog.String("path", validCSS))
			cssPaths = append(cssPaths, validCSS)
		}
	}

	if s.cfg.RootDir != "" {
		dir := filepath.Join(s.cfg.RootDir, settingsDirName)
		if validCSS := s.validateCSSPath(filepath.Join(dir, "custom.css"), dir); validCSS != "" {
			s.logger.Debug("found wiki custom CSS", slog.String("path", validCSS))
			cssPaths = append(cssPaths, validCSS)
		}
	}

	s.customCSSPaths = cssPaths
	if len(cssPaths) > 0 {
		s.logger.Info("custom CSS theming enabled", slog.Int("count", len(cssPaths)))
	}
}

// validateCSSPath returns the symlink-resolved absolute path of cssPath when
// it is an existing .css file inside allowedDir, and "" otherwise.
func (s *Server) validateCSSPath(cssPath, allowedDir string) string {
	if !fileExists(cssPath) {
		return ""
	}

	if filepath.Ext(cssPath) != ".css" {
		s.logger.Warn("invalid CSS file extension", slog.String("path", cssPath))
		return ""
	}

	absPath, err := filepath.Abs(cssPath)
	if err != nil {
		s.logger.Warn("failed to resolve CSS path", slog.String("path", cssPath), slog.Any("err", err))
		return ""
	}

	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		s.logger.Warn("failed to resolve symlinks", slog.String("path", absPath), slog.Any("err", err))
		return ""
	}

	absAllowedDir, err := filepath.Abs(allowedDir)
	if err != nil {
		s.logger.Warn("failed to resolve allowed directory", slog.String("dir", allowedDir), slog.Any("err", err))
		return ""
	}
	realAllowedDir, err := filepath.EvalSymlinks(absAllowedDir)
	if err != nil {
		realAllowedDir = absAllowedDir
	}

	if !within(realAllowedDir, realPath) {
		s.logger.Warn("CSS path outside allowed directory",
			slog.String("path", cssPath),
			slog.String("resolved", realPath),
			slog.String("allowed", realAllowedDir))
		return ""
	}

	return realPath
}

func (s *Server) handleCustomCSS(w http.ResponseWriter, r *http.Request) {
	index := 0
	if n, err := fmt.Sscanf(r.PathValue("index"), "%d", &index); err != nil || n != 1 {
		http.Error(w, "Invalid CSS index", http.StatusBadRequest)
		return
	}
	if index < 0 || index >= len(s.customCSSPaths) {
		http.Error(w, "CSS file not found", http.StatusNotFound)
		return
	}

	cssPath := s.customCSSPaths[index]
	if filepath.Ext(cssPath) != ".css" {
		s.logger.Warn("invalid CSS file extension", slog.String("path", cssPath))
		http.Error(w, "Invalid file type", http.StatusForbidden)
		return
	}

	info, err := os.Stat(cssPath)
	if err != nil {
		s.logger.Warn("failed to stat custom CSS", slog.Any("err", err), slog.String("path", cssPath))
		http.Error(w, "CSS file not found", http.StatusNotFound)
		return
	}
	if info.Size() > maxCSSSize {
		s.logger.Warn("CSS file too large", slog.String("path", cssPath), slog.Int64("size", info.Size()))
		http.Error(w, "CSS file too large", http.StatusRequestEntityTooLarge)
		return
	}

	// HTTP dates carry whole seconds.
	modTime := info.ModTime().UTC().Truncate(time.Second)
	if t, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !modTime.After(t) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	content, err := os.ReadFile(cssPath) // #nosec G304 -- validated at discovery
	if err != nil {
		s.logger.Warn("failed to read custom CSS", slog.Any("err", err), slog.String("path", cssPath))
		http.Error(w, "Error reading CSS file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Last-Modified", modTime.Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "public, max-age=60, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to write CSS response", slog.Any("err", err), slog.String("path", cssPath))
	}
}

// handleMedia serves images and other attachments from the wiki root.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawPath, err := parseWildcardPath(r.PathValue("path"))
	if err != nil {
		s.respondPathError(w, err)
		return
	}
	cleanPath, err := cleanWikiPath(rawPath)
	if err != nil {
		s.logger.WarnContext(ctx, "invalid media path attempted", slog.String("path", rawPath))
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	absRoot, err := filepath.Abs(s.content.Root())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve root directory", slog.Any("err", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	absPath := filepath.Join(absRoot, filepath.FromSlash(cleanPath))
	if !within(absRoot, absPath) {
		s.logger.WarnContext(ctx, "media path outside root directory attempted",
			slog.String("path", rawPath),
			slog.String("resolved", absPath))
		http.Error(w, "Invalid path", http.StatusForbidden)
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		s.logger.WarnContext(ctx, "failed to stat media file", slog.Any("err", err), slog.String("path", rawPath))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "Path is a directory", http.StatusBadRequest)
		return
	}

	http.ServeFile(w, r, absPath)
}

func within(root, target string) bool {
	return target == root || strings.HasPrefix(target, root+string(filepath.Separator))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *Server) customCSSURLs() []string {
	urls := make([]string, len(s.customCSSPaths))
	for i := range s.customCSSPaths {
		urls[i] = fmt.Sprintf("/custom-theme/%d", i)
	}
	return urls
}
