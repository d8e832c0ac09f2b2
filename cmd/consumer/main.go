package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/config"
	"example.com/studystreak/internal/consumer"
	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/observability"
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
		logger.Fatal("consumer requires STORAGE_BACKEND=postgres for the event log")
	}

	service := domain.NewService(backend.Store, domain.WithLogger(logger))
	handler := consumer.Chain{
		consumer.NewPersistenceHandler(backend.Pool),
		consumer.NewMilestoneHandler(service, logger),
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("address", cfg.MetricsAddress).Info("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			MaxWait:         time.Second,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger.WithField("topic", topic)))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			logger.WithFields(logrus.Fields{"topic": topic, "group": cfg.ConsumerGroupID}).Info("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).WithField("topic", topic).Error("consumer stopped")
			}
		}()
	}

	<-stop
	logger.Info("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown error")
	}

	wg.Wait()
}
