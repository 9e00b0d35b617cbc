package server

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"time"
)

// openBrowserWhenReady gives the listener a moment before launching the
// system browser at url.
func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		if err := browserCommand(ctx, url).Start(); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func browserCommand(ctx context.Context, url string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", url)
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.CommandContext(ctx, "xdg-open", url)
	}
}
