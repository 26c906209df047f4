package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photofinish/internal/cli"
	"photofinish/internal/config"
	"photofinish/internal/logging"
	"photofinish/internal/pipeline"
	"photofinish/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		logger.Warn("job history disabled", "path", cfg.Paths.DatabasePath, "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(ctx, logger, store, cfg)
	defer pipe.Stop()

	rootCmd := cli.NewRootCmd(cfg, logger, store, pipe)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
