package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tuya-scale/config"
	"tuya-scale/internal/application"
	"tuya-scale/internal/domain"
	"tuya-scale/internal/infra/homeassistant"
	"tuya-scale/internal/infra/httpapi"
	"tuya-scale/internal/infra/metrics"
	"tuya-scale/internal/infra/mqtt"
	"tuya-scale/internal/infra/pushover"
	"tuya-scale/internal/infra/tuya"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	check := flag.Bool("check", false, "run one refresh, print the snapshot and exit")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("loading env file", "path", *envPath, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	poller, err := createPoller(cfg, logger)
	if err != nil {
		logger.Error("creating tuya client", "error", err)
		os.Exit(1)
	}

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = &application.NoopNotifier{}
	}

	var publishers []application.SnapshotPublisher
	if !*check {
		publishers, err = createPublishers(cfg, logger)
		if err != nil {
			logger.Error("creating publishers", "error", err)
			os.Exit(1)
		}
	}
	defer closePublishers(publishers)

	coordinator := application.NewCoordinator(
		application.CoordinatorConfig{DeviceID: cfg.Tuya.DeviceID, Interval: cfg.ScanInterval()},
		poller,
		notifier,
		logger,
		publishers...,
	)

	if *check {
		os.Exit(runCheck(ctx, coordinator, logger))
	}

	logger.Info("starting tuya scale poller",
		"device_id", cfg.Tuya.DeviceID,
		"region", cfg.Tuya.Region,
		"scan_interval", cfg.ScanInterval(),
	)

	if err := coordinator.Refresh(ctx); err != nil {
		if errors.Is(err, domain.ErrAuth) {
			logger.Error("invalid credentials, check access id and key", "error", err)
			os.Exit(1)
		}
		logger.Warn("first refresh failed, will retry on schedule", "error", err)
	}

	coordinator.StartPeriodicRefresh(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(coordinator),
	)
	registry.MustRegister(tuya.MetricsCollectors()...)

	server := httpapi.NewServer(cfg.HTTP.Addr, cfg.HTTP.AuthToken, coordinator, registry, logger)
	if err := server.Start(ctx); err != nil {
		logger.Error("starting http api", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		logger.Error("stopping http api", "error", err)
	}
}

func createPoller(cfg *config.Config, logger *slog.Logger) (*tuya.Poller, error) {
	opts := []tuya.Option{
		tuya.WithRequestTimeout(cfg.RequestTimeout()),
		tuya.WithLogger(logger),
	}

	var client *tuya.Client
	if cfg.Tuya.BaseURL != "" {
		client = tuya.NewClientWithURL(cfg.Credentials(), cfg.Tuya.BaseURL, opts...)
	} else {
		var err error
		client, err = tuya.NewClient(cfg.Credentials(), opts...)
		if err != nil {
			return nil, err
		}
	}

	tokens := tuya.NewTokenManager(client, logger)
	pollerCfg := tuya.DefaultPollerConfig()
	pollerCfg.RetryDelay = cfg.RetryDelay()

	return tuya.NewPoller(pollerCfg, tokens, client, tuya.NewNormalizer(time.Local), logger), nil
}

func createPublishers(cfg *config.Config, logger *slog.Logger) ([]application.SnapshotPublisher, error) {
	var publishers []application.SnapshotPublisher

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Retain:      *cfg.MQTT.Retain,
		}, cfg.Tuya.DeviceID, logger)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, pub)
	}

	if cfg.HomeAssistant.Enabled {
		publishers = append(publishers, homeassistant.NewClient(
			cfg.HomeAssistant.BaseURL,
			cfg.HomeAssistant.Token,
			cfg.HomeAssistant.EntityPrefix,
			logger,
		))
	}

	return publishers, nil
}

func closePublishers(publishers []application.SnapshotPublisher) {
	for _, p := range publishers {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func runCheck(ctx context.Context, coordinator *application.Coordinator, logger *slog.Logger) int {
	if err := coordinator.Refresh(ctx); err != nil {
		logger.Error("check failed", "error", err)
		if errors.Is(err, domain.ErrAuth) {
			return 1
		}
		return 2
	}

	snap, _ := coordinator.CurrentSnapshot()
	resp := httpapi.BuildSnapshotResponse(coordinator.DeviceID(), snap, coordinator.Status())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		logger.Error("encoding snapshot", "error", err)
		return 1
	}
	return 0
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
