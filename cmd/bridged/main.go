package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/engine-bridge/internal/bridge"
	"github.com/rickgao/engine-bridge/internal/config"
	"github.com/rickgao/engine-bridge/internal/model"
	"github.com/rickgao/engine-bridge/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bridge.example.yaml", "path to config file (empty = environment only)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting bridge",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)
	logger.Info("configuration loaded",
		"http_url", cfg.Engine.HTTPURL,
		"ws_url", cfg.Engine.WSURL,
		"database_probe", cfg.Database.Enabled(),
		"cache_probe", cfg.Redis.Enabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	client, err := bridge.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create bridge", "error", err)
		os.Exit(1)
	}

	// Start the HTTP server early so health is observable during connect
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHandler(client, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}

	go logEvents(ctx, client, logger)

	logger.Info("bridge running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("bridge shutdown incomplete", "error", err)
	}
	server.Shutdown(shutdownCtx)

	logger.Info("bridge stopped")
}

// logEvents logs health alerts and service transitions until ctx ends.
func logEvents(ctx context.Context, client *bridge.Client, logger *slog.Logger) {
	alerts, _ := client.Health().Events().HealthAlert.Subscribe(ctx)
	changes, _ := client.Health().Events().ServiceStatusChanged.Subscribe(ctx)
	maxed, _ := client.ConnectionEvents().MaxReconnectAttemptsReached.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-alerts:
			if !ok {
				return
			}
			logger.Warn("health alert",
				"level", a.Level,
				"status", a.Status.Status,
				"services", a.Status.Services,
			)
		case c, ok := <-changes:
			if !ok {
				return
			}
			logger.Info("service status changed",
				"service", c.Service,
				"from", c.Previous,
				"to", c.Current,
			)
		case ev, ok := <-maxed:
			if !ok {
				return
			}
			logger.Error("giving up on duplex channel, REST fallback only",
				"attempts", ev.Attempts,
			)
		}
	}
}

// createHandler serves health, diagnostics and metrics.
func createHandler(client *bridge.Client, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, ok := client.Health().Latest()
		if !ok {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			status = client.Health().Check(ctx)
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status == model.Unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/debug/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(client.Health().RunDiagnostics(ctx))
	})

	mux.HandleFunc("/debug/router", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.RouterStats())
	})

	mux.Handle(metricsPath, client.Registry().Handler())

	return mux
}
