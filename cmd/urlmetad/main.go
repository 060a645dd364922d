// Command urlmetad runs the URL metadata collection service: the HTTP API
// and the background collection worker in one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkarali/urlmeta/internal/app"
	"github.com/dkarali/urlmeta/internal/logging"
)

func main() {
	logger := logging.NewStdoutLogger("urlmetad", logging.ParseLevel(os.Getenv("LOG_LEVEL")))
	cfg := app.FromEnv(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", logging.Field{Key: "error", Value: err.Error()})
		fmt.Fprintf(os.Stderr, "urlmetad: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application exited with error", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
}
