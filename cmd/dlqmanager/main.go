package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/config"
	"example.com/studystreak/internal/observability"
	"example.com/studystreak/internal/outbox"
	"example.com/studystreak/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("invalid logger configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open activity store")
	}
	defer backend.Close()
	if backend.Pool == nil {
		logger.Fatal("dlq manager requires STORAGE_BACKEND=postgres")
	}

	manager := outbox.NewDLQManager(backend.Pool, logger, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("address", cfg.MetricsAddress).Info("dlq manager metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	// SkipIfStillRunning keeps passes from overlapping when one runs long.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.DLQSchedule, func() {
		if _, err := manager.RunOnce(ctx, cfg.DLQBatchSize); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("dlq pass failed")
		}
	}); err != nil {
		logger.WithError(err).WithField("schedule", cfg.DLQSchedule).Fatal("invalid DLQ_SCHEDULE")
	}
	scheduler.Start()

	logger.WithFields(logrus.Fields{
		"schedule":    cfg.DLQSchedule,
		"max_retries": cfg.DLQMaxRetries,
		"base_delay":  cfg.DLQBaseDelay.String(),
	}).Info("dlq manager started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("dlq manager received shutdown signal")

	cancel()
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown error")
	}
}
