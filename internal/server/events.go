package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ssePing keeps idle event streams alive through proxies.
const ssePing = 25 * time.Second

// handleEvents streams content events to the browser as server-sent events
// until the client goes away or the content service closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.DebugContext(ctx, "clear sse write deadline", slog.Any("err", err))
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := s.content.Subscribe(ctx)
	send := func(frame string) bool {
		if _, err := fmt.Fprint(w, frame); err != nil {
			return false
		}
		return rc.Flush() == nil
	}
	if !send(": ready\n\n") {
		s.logger.DebugContext(ctx, "event stream not flushable")
		return
	}

	ticker := time.NewTicker(ssePing)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send(": ping\n\n") {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := encodeJSON(evt)
			if err != nil {
				s.logger.WarnContext(ctx, "encode sse event failed", slog.Any("err", err))
				continue
			}
			if !send("data: " + payload + "\n\n") {
				return
			}
		}
	}
}
