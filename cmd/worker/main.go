package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"marketplace-orders/internal/app"
	"marketplace-orders/internal/config"
)

// worker runs only the outbox dispatcher, for deployments that scale it
// separately from the api (started there with -outbox=false).
func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer a.Close()

	logger.Printf("starting %d outbox workers", cfg.OutboxWorkers)
	if err := a.Dispatcher.Run(ctx); err != nil {
		logger.Printf("dispatcher error: %v", err)
	}
	logger.Printf("worker stopped")
}
