// Package main is the entry point for the spikewatch volume-spike engine.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/polyinsider/spikewatch/internal/alert"
	"github.com/polyinsider/spikewatch/internal/broadcast"
	"github.com/polyinsider/spikewatch/internal/config"
	"github.com/polyinsider/spikewatch/internal/ingest"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/polyinsider/spikewatch/internal/notify"
	"github.com/polyinsider/spikewatch/internal/pipeline"
	"github.com/polyinsider/spikewatch/internal/queue"
	"github.com/polyinsider/spikewatch/internal/store"
	"github.com/polyinsider/spikewatch/internal/ui"
)

// catalogTimeout bounds a single catalog page request
const catalogTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file while it runs
	var logOut io.Writer = os.Stdout
	if cfg.EnableTUI {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Error("failed to open log file", "path", cfg.LogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := setupLogger(cfg.LogLevel, logOut)
	slog.SetDefault(logger)

	slog.Info("spikewatch starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"polymarket_ws_url", cfg.PolymarketWSURL,
		"gamma_events_url", cfg.GammaEventsURL,
		"min_buy_usd", cfg.MinBuyUSD,
		"spike_threshold", cfg.SpikeThreshold,
		"time_window", cfg.TimeWindow,
		"max_signal_price", cfg.MaxSignalPrice,
		"min_price", cfg.MinPrice,
		"chunk_size", cfg.ChunkSize,
		"refresh_interval", cfg.RefreshInterval,
		"queue_capacity", cfg.QueueCapacity,
		"use_proxy", cfg.UseProxy,
		"db_path", cfg.DBPath,
		"database_url", cfg.MaskedDatabaseURL(),
		"telegram_token", cfg.MaskedTelegramToken(),
		"http_addr", cfg.HTTPAddr,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Transport: user agents and optional proxies
	agents := ingest.NewRotator(ingest.UserAgents)
	proxies, err := ingest.LoadProxies(cfg.ProxiesFile)
	if err != nil {
		slog.Warn("proxies_unavailable", "error", err)
	}
	if cfg.UseProxy {
		slog.Info("proxies_loaded", "count", len(proxies))
	} else {
		proxies = nil
	}

	catalog := ingest.NewCatalog(ingest.CatalogConfig{
		URL:         cfg.GammaEventsURL,
		PageSize:    cfg.CatalogPageSize,
		Concurrency: cfg.CatalogConcurrency,
		MaxPages:    cfg.CatalogMaxPages,
		MaxRetries:  cfg.CatalogMaxRetries,
	}, ingest.HTTPClients(proxies, catalogTimeout), agents, logger)

	events := queue.New[store.TradeEvent](cfg.QueueCapacity)
	factory := ingest.NewWorkerFactory(events, ingest.WorkerConfig{
		URL:           cfg.PolymarketWSURL,
		ReconnectBase: cfg.ReconnectBase,
		CapExponent:   cfg.ReconnectCapExponent,
		PingInterval:  cfg.PingInterval,
		UserAgents:    agents,
		Proxies:       ingest.NewProxyPool(proxies, cfg.ProxyProbeURL),
		UseProxy:      cfg.UseProxy,
		Logger:        logger,
	})

	tracker := metrics.NewMetricsTracker()

	// Alert sinks
	sinks := []alert.Sink{alert.NewLogSink(logger)}

	signals, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Warn("signal_store_unavailable", "error", err)
	} else {
		defer signals.Close()
		sinks = append(sinks, alert.NewStoreSink(signals))
	}

	var p *pipeline.Pipeline
	var spikes broadcast.SpikeReader
	if signals != nil {
		spikes = signals
	}
	hub := broadcast.NewHub(spikes, func() map[string]any { return p.Health() }, logger)
	sinks = append(sinks, hub)

	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			slog.Warn("telegram_disabled", "error", err)
		} else {
			sinks = append(sinks, tg)
		}
	}

	var app *ui.App
	if cfg.EnableTUI {
		app = ui.NewApp(tracker, cfg.UIRefreshRate, cfg.SpikeThreshold)
		app.SetOnQuit(cancel)
		sinks = append(sinks, app)
	}

	dispatcher := alert.NewDispatcher(sinks, cfg.SinkBuffer, cfg.SinkTimeout, logger)
	p = pipeline.New(cfg, catalog, events, factory, dispatcher, tracker, logger)

	if cfg.HTTPAddr != "" {
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				slog.Error("http_server_error", "error", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	if app != nil {
		slog.Info("starting_tui")
		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
				cancel()
			}
		}()
	}

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("shutdown_signal_received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutdown_requested")
	case err := <-runErr:
		slog.Error("pipeline_failed", "error", err)
		runErr <- err
		exitCode = 1
	}

	cancel()
	if app != nil {
		app.Stop()
	}

	slog.Info("shutting_down", "status", "waiting for pipeline")
	select {
	case <-runErr:
	case <-time.After(30 * time.Second):
		slog.Warn("shutdown_timeout")
	}

	slog.Info("shutdown_complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 level=INFO msg=message key=value
func setupLogger(levelStr string, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	return slog.New(slog.NewTextHandler(out, opts))
}
