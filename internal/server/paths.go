package server

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	errPathRequired        = errors.New("path is required")
	errInvalidPathEncoding = errors.New("invalid path encoding")
	errInvalidPath         = errors.New("invalid path")
)

// parseWildcardPath decodes the {path...} segment of a route.
func parseWildcardPath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errPathRequired
	}
	decoded, err := url.PathUnescape(strings.TrimSpace(raw))
	if err != nil {
		return "", errInvalidPathEncoding
	}
	if decoded = strings.TrimSpace(decoded); decoded == "" {
		return "", errPathRequired
	}
	return decoded, nil
}

// cleanWikiPath normalizes a slash separated path and rejects anything
// that is absolute or climbs out of the wiki root.
func cleanWikiPath(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errPathRequired
	}
	cleaned := path.Clean(filepath.ToSlash(trimmed))
	if cleaned == "." {
		return "", errPathRequired
	}
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) || strings.HasPrefix(cleaned, "/") {
		return "", errInvalidPath
	}
	return cleaned, nil
}

func (s *Server) respondPathError(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
}
