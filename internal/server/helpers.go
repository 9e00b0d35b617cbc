package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxJSONBody bounds request payloads; tikz sources are small.
const maxJSONBody = 1 << 20

var (
	errEmptyBody    = errors.New("request body is required")
	errTrailingJSON = errors.New("request body must contain a single JSON object")
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", slog.Any("err", err))
	}
}

func errorResponse(message string) map[string]string {
	return map[string]string{"error": message}
}

// decodeJSON strictly decodes exactly one JSON object from the body.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	switch err := dec.Decode(dst); {
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case err != nil:
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errTrailingJSON
	}
	return nil
}

// isFragmentRequest reports whether the client asked for an HTML fragment
// instead of JSON.
func isFragmentRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") != ""
}

// setHXTrigger announces client-side events alongside a fragment response.
func setHXTrigger(w http.ResponseWriter, events map[string]any) {
	if len(events) == 0 {
		return
	}
	payload, err := encodeJSON(events)
	if err != nil {
		slog.Warn("encode trigger header", slog.Any("err", err))
		return
	}
	w.Header().Set("HX-Trigger", payload)
}

func encodeJSON(data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(payload), nil
}
