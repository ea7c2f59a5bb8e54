package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/geolocation-service/internal/adapter/gpsnmea"
	httpadapter "github.com/couchcryptid/geolocation-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geolocation-service/internal/adapter/kafka"
	"github.com/couchcryptid/geolocation-service/internal/config"
	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/geolocation"
	"github.com/couchcryptid/geolocation-service/internal/observability"
	"github.com/couchcryptid/geolocation-service/internal/relay"
)

// logSink stands in for Kafka when KAFKA_ENABLED is false.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Publish(_ context.Context, pos domain.Position) error {
	s.logger.Info("position", "position", pos)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	dev, err := gpsnmea.OpenSerial(cfg.NMEADevice, cfg.NMEABaudRate)
	if err != nil {
		logger.Error("failed to open nmea device", "device", cfg.NMEADevice, "error", err)
		os.Exit(1)
	}
	host := gpsnmea.NewHost(dev, logger,
		gpsnmea.WithUERE(cfg.NMEAUERE),
		gpsnmea.WithHighAccuracyLimit(cfg.HighAccuracyLimit),
	)
	logger.Info("nmea receiver opened", "device", cfg.NMEADevice, "baud_rate", cfg.NMEABaudRate)

	svc := geolocation.New(host.Locator(), logger, metrics,
		geolocation.WithCapability("nmea:"+cfg.NMEADevice))

	var (
		sink   relay.Sink = logSink{logger: logger}
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sink = writer
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	r := relay.New(sink, cfg.PublishRate, logger, metrics)
	opts := cfg.PositionOptions()
	srv := httpadapter.NewServer(cfg.HTTPAddr, r, svc, opts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub := svc.StartWatchContext(ctx, r.OnPosition, r.OnError, &opts)
	if sub == nil {
		logger.Error("failed to start position watch")
		os.Exit(1)
	}
	logger.Info("position watch started", "watch_id", sub.ID())

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start relay.
	go func() {
		if err := r.Run(ctx); err != nil {
			logger.Error("relay error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := sub.Close(); err != nil {
		logger.Error("watch close error", "error", err)
	}
	if err := host.Close(); err != nil {
		logger.Error("nmea host close error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
