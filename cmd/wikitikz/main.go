// Package main provides the wikitikz server application entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/euforicio/wikitikz/internal/bootstrap"
	"github.com/euforicio/wikitikz/internal/buildinfo"
	"github.com/euforicio/wikitikz/internal/config"
	"github.com/euforicio/wikitikz/internal/content"
	"github.com/euforicio/wikitikz/internal/exporter"
	"github.com/euforicio/wikitikz/internal/server"
	"github.com/euforicio/wikitikz/internal/settings"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("wikitikz", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	includeHidden := flags.Bool("hidden", false, "include hidden markdown files in the navigation tree")
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.String("wikitikz"))
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "wikitikz")
	slog.SetDefault(logger)
	logger.Info("starting wikitikz", slog.String("version", buildinfo.Summary()), slog.String("root", cfg.RootDir))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *includeHidden); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		logger.Error("server error", slog.Any("err", err))
		cancel()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, includeHidden bool) error {
	stack, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build render stack: %w", err)
	}
	defer stack.Close()

	contentSvc, err := content.NewService(ctx, cfg.RootDir, stack.Renderer, logger, content.Options{
		IsPreamble: stack.Resolver.IsPreamble,
		OnPreambleChange: func(rel string) {
			logger.Info("preamble changed", slog.String("path", rel))
			stack.Pipeline.Invalidate()
		},
		IncludeHidden: includeHidden,
	})
	if err != nil {
		return fmt.Errorf("content service init: %w", err)
	}
	defer func() {
		if err := contentSvc.Close(); err != nil {
			logger.Error("close content service", slog.Any("err", err))
		}
	}()
	stack.Settings.OnChange(func(s settings.Settings) {
		logger.Info("settings changed", slog.Bool("invertColorsInDarkMode", s.InvertColorsInDarkMode))
		contentSvc.SettingsChanged()
	})

	exp := exporter.New(stack.Renderer, exporter.Options{Pipeline: stack.Pipeline, D2: stack.D2}, logger)

	srv, err := server.New(cfg, logger, server.Deps{
		Content:  contentSvc,
		Exporter: exp,
		Pipeline: stack.Pipeline,
		Settings: stack.Settings,
	})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("err", err))
		}
	}()

	return srv.Start(ctx)
}
