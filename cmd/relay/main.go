package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristim67/audio-analysis-platform/internal/alerting"
	"github.com/cristim67/audio-analysis-platform/internal/anomaly"
	"github.com/cristim67/audio-analysis-platform/internal/api"
	"github.com/cristim67/audio-analysis-platform/internal/config"
	"github.com/cristim67/audio-analysis-platform/internal/hub"
	"github.com/cristim67/audio-analysis-platform/internal/logging"
	"github.com/cristim67/audio-analysis-platform/internal/mqtt"
	"github.com/cristim67/audio-analysis-platform/internal/storage"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	staticDir := flag.String("static", "", "override for the static assets directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *staticDir != "" {
		cfg.Server.StaticDir = *staticDir
	}

	logger := logging.New(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.OpenStore(ctx, storage.StoreConfig{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("opening store")
	}

	buffer := storage.NewBuffer(store, cfg.Buffer.RecentSize, cfg.Buffer.FlushThreshold, logger)
	registry := hub.NewHub(logger)

	var egress hub.EventPublisher
	var alertPublisher alerting.AlertPublisher
	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.New(cfg.MQTT, logger)
		if err != nil {
			// Egress is optional; the relay runs without it.
			logger.Warn().Err(err).Msg("MQTT egress disabled")
		} else {
			defer publisher.Close()
			egress = publisher
			alertPublisher = publisher
		}
	}

	detector := anomaly.NewDetector(cfg.Anomaly.Rules)
	alerter := alerting.NewAlerter(registry, alertPublisher, logger)

	relay := hub.NewRelay(registry, buffer, detector, alerter, egress, hub.Options{
		HeartbeatInterval: cfg.Liveness.HeartbeatIntervalDuration(),
		PongWait:          cfg.Liveness.PongWaitDuration(),
		WriteWait:         cfg.Liveness.WriteWaitDuration(),
		MaxMessageSize:    cfg.Server.MaxMessageSize,
		SendBuffer:        cfg.Dashboard.SendBuffer,
		SummaryEvery:      cfg.Audio.SummaryEvery,
		InitialDataCount:  cfg.Dashboard.InitialDataCount,
	}, logger)

	handler := api.NewHandler(relay, buffer, store, cfg.Server.StaticDir, logger)

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		buffer.Run(ctx, cfg.Buffer.FlushIntervalDuration())
	}()

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(handler),
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("telemetry relay listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}

	// Close live sessions, then let the flush loop write out whatever
	// is still pending before the store goes away.
	registry.Shutdown()
	cancel()
	<-flushDone

	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing store")
	}
	logger.Info().Msg("stopped")
}
