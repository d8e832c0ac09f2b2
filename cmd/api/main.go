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
	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/api"
	"example.com/studystreak/internal/auth"
	"example.com/studystreak/internal/config"
	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/observability"
	"example.com/studystreak/internal/outbox"
	"example.com/studystreak/internal/persistence"
	httptransport "example.com/studystreak/internal/transport/http"
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
	loc, _ := cfg.Location()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open activity store")
	}
	defer backend.Close()

	var dispatcher *outbox.Dispatcher
	if backend.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logger)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(backend.Pool, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	}

	service := domain.NewService(backend.Store, domain.WithLogger(logger))
	handler := api.NewHandler(service, domain.NewCalendar(loc), api.WithLogger(logger))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(logger),
		httptransport.CORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithFields(logrus.Fields{
			"address":         cfg.HTTPAddress,
			"storage_backend": cfg.StorageBackend,
			"timezone":        loc.String(),
		}).Info("study streak api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
