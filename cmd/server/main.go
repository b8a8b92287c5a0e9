package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"heroes/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func(ctx context.Context, cfg *config.Config) error { return serve(ctx, cfg, nil) }
	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
