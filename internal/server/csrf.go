package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// csrfExempt lists paths that never change state and may be hit by any origin.
var csrfExempt = []string{"/healthz", "/static/"}

// csrfMiddleware rejects cross-origin writes. Settings updates and ad hoc
// renders are the only mutating routes.
func csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) || exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		source, ok := requestSource(r)
		if !ok || normalizeHost(source) != normalizeHost(targetHost(r)) {
			slog.WarnContext(r.Context(), "cross-origin request rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("source", source))
			http.Error(w, "Forbidden: Invalid origin", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func exempt(path string) bool {
	for _, prefix := range csrfExempt {
		if path == prefix || (strings.HasSuffix(prefix, "/") && strings.HasPrefix(path, prefix)) {
			return true
		}
	}
	return false
}

// requestSource returns the host named by Origin, falling back to Referer.
func requestSource(r *http.Request) (string, bool) {
	raw := r.Header.Get("Origin")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Host, true
}

func targetHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return r.URL.Host
}

// normalizeHost drops the port and folds loopback spellings into "localhost".
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "localhost"
	}
	return host
}
