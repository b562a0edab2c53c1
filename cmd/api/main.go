package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marketplace-orders/internal/app"
	"marketplace-orders/internal/config"
	"marketplace-orders/internal/httpserver"

	"golang.org/x/sync/errgroup"
)

func main() {
	runOutbox := flag.Bool("outbox", true, "run outbox workers in this process")
	flag.Parse()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer a.Close()

	srv := httpserver.New(cfg.HTTPAddr, logger, a.HTTP)

	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	g, workCtx := errgroup.WithContext(workCtx)
	if *runOutbox {
		g.Go(func() error { return a.Dispatcher.Run(workCtx) })
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}

	stopWork()
	if err := g.Wait(); err != nil {
		logger.Printf("outbox stopped with error: %v", err)
	}
}
