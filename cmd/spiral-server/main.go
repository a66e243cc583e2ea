// Command spiral-server hosts document evaluation behind a persistent
// HTTP and WebSocket front door: submit, schedule, and watch instead of
// spiralctl's one-shot run.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hybscloud/spiral/internal/httpapi"
	"github.com/hybscloud/spiral/pkg/config"
	"github.com/hybscloud/spiral/pkg/logging"
	"github.com/hybscloud/spiral/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logging.New(cfg.Logging)
	logging.SetDefault(appLogger)

	appLogger.Info("starting spiral-server",
		"port", cfg.Server.Port,
		"max_steps", cfg.Eval.MaxSteps,
		"concurrency", cfg.Eval.Concurrency,
	)

	ctx := context.Background()
	tracerProvider, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		appLogger.Warn("tracing disabled", "error", err)
	} else if tracerProvider != nil {
		appLogger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}
	defer func() {
		if tracerProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("tracer shutdown failed", "error", err)
			}
		}
	}()

	server := httpapi.New(cfg, appLogger, tracerProvider.Tracer())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	runCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(runCtx) }()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Error("server error", "error", err)
			cancel()
			os.Exit(1)
		}
	case sig := <-shutdown:
		appLogger.Info("server shutdown initiated", "signal", sig.String())
		cancel()
		if err := <-errCh; err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
	}

	appLogger.Info("server stopped")
}
