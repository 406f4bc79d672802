package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"devpulse/internal/app"
	"devpulse/internal/config"
	"devpulse/internal/domain"
	"devpulse/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	mode := "run"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "serve":
		err = application.Serve(ctx)
	case "digest":
		err = printDigest(ctx, application)
	default:
		err = application.RunOnce(ctx)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}

func printDigest(ctx context.Context, application *app.Application) error {
	rows, err := application.Digest(ctx, domain.DigestQuery{Limit: 50})
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Printf("%.4f  [%s] %s\n        %s\n", row.Score, row.Kind, row.Title, row.URL)
	}
	return nil
}
