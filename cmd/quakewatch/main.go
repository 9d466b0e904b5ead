// Command quakewatch polls the Kandilli earthquake feed, keeps a local SQLite
// archive, and serves the refreshed views over a local HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/quake-watch/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-watch/internal/adapter/kafka"
	"github.com/couchcryptid/quake-watch/internal/adapter/kandilli"
	"github.com/couchcryptid/quake-watch/internal/adapter/mapbox"
	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/couchcryptid/quake-watch/internal/pipeline"
	"github.com/couchcryptid/quake-watch/internal/render"
	"github.com/couchcryptid/quake-watch/internal/store"
	"github.com/couchcryptid/quake-watch/internal/views"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logView := views.NewLogView(0)
	base := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger := slog.New(views.NewTeeHandler(base.Handler(), logView, slog.LevelInfo))
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath, logger, metrics)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	settings := config.OpenSettings(cfg.SettingsPath, logger)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	source := kandilli.NewClient(kandilli.Options{
		LiveURL:    cfg.LiveURL,
		ArchiveURL: cfg.ArchiveURL,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.FetchTimeout,
	}, metrics, logger)

	pool := render.NewPool(render.GeoJSONRenderer{}, cfg.RenderWorkers, cfg.RenderQueueSize, logger, metrics)

	selection := views.NewSelectionBus()
	overview := views.NewOverview()
	table := views.NewTable(selection)
	charts := views.NewCharts(nil)
	mapView := views.NewMapView(pool, settings, logger)
	selection.Subscribe(mapView.Focus)

	hub := httpadapter.NewHub(logger)
	alerts := views.NewAlertNotifier(logger, clock)
	alerts.OnAlert(hub.Alert)

	broadcaster := pipeline.NewBroadcaster(logger, metrics, overview, table, charts, mapView, hub)
	var publisher *kafkaadapter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		broadcaster.Subscribe(publisher)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	logger.Info("subscribers registered", "subscribers", broadcaster.Subscribers())

	coord := pipeline.New(
		pipeline.AppContext{Settings: settings, Logger: logger, Clock: clock},
		source,
		pipeline.NewNormalizer(geocoder, logger),
		st,
		broadcaster,
		metrics,
		pipeline.WithNotifier(alerts),
		pipeline.WithRecentLimit(cfg.RecentLimit),
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Coordinator: coord,
		Settings:    settings,
		Overview:    overview,
		Table:       table,
		Charts:      charts,
		Map:         mapView,
		Logs:        logView,
		Alerts:      alerts,
		Hub:         hub,
		Subscribers: broadcaster,
		Clock:       clock,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Show what is already stored before the first network refresh.
	if quakes, err := st.FetchRecent(ctx, cfg.RecentLimit); err != nil {
		logger.Warn("initial load failed", "error", err)
	} else if len(quakes) > 0 {
		broadcaster.Distribute(ctx, quakes)
	}

	// Start refresh loop.
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := coord.Run(ctx); err != nil {
			logger.Error("refresh loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		logger.Warn("refresh cycle still running at shutdown deadline")
	}
	hub.Close()
	pool.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
