package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/receiving-verifier/internal/bootstrap"
	"github.com/kirillkom/receiving-verifier/internal/config"
	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(bootstrap.WorkerServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewWorker(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	admin := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           adminHandler(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_admin_listening", "port", cfg.WorkerMetricsPort)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_admin_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeVerificationFinalized(ctx, func(handlerCtx context.Context, event domain.FinalizedVerification) error {
		started := time.Now()
		app.Metrics.StartEvent()
		app.Metrics.ObserveEventLag(bootstrap.WorkerServiceName, started.Sub(event.FinalizedAt))

		recordCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		err := app.Audit.Record(recordCtx, event)
		app.Metrics.FinishEvent(bootstrap.WorkerServiceName, time.Since(started), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
