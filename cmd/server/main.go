package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-with-coffee/backend/internal/config"
	"content-with-coffee/backend/internal/logging"
	"content-with-coffee/backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("server.init.fail", "error", err)
		os.Exit(1)
	}

	runErr := app.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		logger.Error("server.close.fail", "error", err)
	}
	if runErr != nil {
		logger.Error("server.run.fail", "error", runErr)
		os.Exit(1)
	}
}
