package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/msmonitor/internal/alerts"
	"github.com/zsiec/msmonitor/internal/config"
	"github.com/zsiec/msmonitor/internal/logging"
	"github.com/zsiec/msmonitor/internal/supervisor"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	tlh := logging.NewTryLockHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(slog.New(tlh))

	streamsPath := envOr("STREAMS_CONFIG", "config/streams.json")
	settingsPath := envOr("SETTINGS_CONFIG", "config/settings.json")
	statsAddr := envOr("STATS_ADDR", ":8090")

	cfg, err := config.LoadSettings(settingsPath)
	if err != nil {
		slog.Warn("settings load failed, using defaults", "path", settingsPath, "error", err)
	}

	dispatcher := alerts.New(alerts.Config{
		Enabled:     cfg.Webhook.Enabled,
		URL:         cfg.Webhook.URL,
		TimeoutMs:   cfg.Webhook.TimeoutMs,
		CooldownSec: cfg.Webhook.CooldownSec,
	}, slog.Default())

	mgr := supervisor.NewManager(cfg, dispatcher, slog.Default())

	if err := mgr.LoadConfig(streamsPath); err != nil {
		slog.Warn("streams config load failed, starting with empty registry", "path", streamsPath, "error", err)
	}

	slog.Info("tsmonitor starting",
		"version", version,
		"streams", mgr.Size(),
		"stats_addr", statsAddr,
		"webhook_enabled", cfg.Webhook.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	mgr.StartAll()

	statsSrv := &http.Server{
		Addr:    statsAddr,
		Handler: newStatsHandler(mgr),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("stats HTTP server listening", "addr", statsAddr)
		if err := statsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stats server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return statsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		<-ctx.Done()
		mgr.StopAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
