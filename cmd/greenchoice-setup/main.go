package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raterudder/greenchoice/pkg/greenchoice"
	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/server"
	"github.com/raterudder/greenchoice/pkg/storage"

	"github.com/levenlabs/go-lflag"
)

func main() {
	// init packages
	connect := greenchoice.Configured()
	s := storage.Configured()

	// init server
	srv := server.Configured(connect, s)

	// parse flags
	lflag.Configure()

	// lflag sets llog's level, slog and the context loggers follow it
	level := log.ConfigureFromLLog()
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
