// streamtest connects to the engine's duplex channel and prints broadcast
// updates and connection events to the console.
// Usage: go run ./cmd/streamtest --config configs/bridge.example.yaml
//
// Optional environment variables:
//
//	ENGINE_WS_URL - duplex endpoint (overrides the config file)
//	ENGINE_TOKEN  - bearer token
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/engine-bridge/internal/bridge"
	"github.com/rickgao/engine-bridge/internal/config"
	"github.com/rickgao/engine-bridge/internal/connection"
	"github.com/rickgao/engine-bridge/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/bridge.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full update JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client, err := bridge.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create bridge", "error", err)
		os.Exit(1)
	}

	// Subscribe before connecting so the first events are not missed
	updates, _ := client.Updates().All.Subscribe(ctx)
	go printUpdates(ctx, updates, *verbose)
	go printConnectionEvents(ctx, client.ConnectionEvents())

	logger.Info("connecting", "ws_url", cfg.Engine.WSURL)
	if err := client.Start(ctx); err != nil {
		logger.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				routerStats := client.RouterStats()
				connStats := client.Connection().Stats()
				logger.Info("stats",
					"state", connStats.State,
					"reconnect_attempts", connStats.ReconnectAttempts,
					"last_seen", connStats.LastSeen,
					"received", routerStats.MessagesReceived,
					"updates", routerStats.UpdatesBroadcast,
					"unknown", routerStats.UnknownMessages,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	client.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printUpdates(ctx context.Context, updates <-chan model.Update, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if verbose {
				data, _ := json.MarshalIndent(u, "", "  ")
				fmt.Printf("[%s] %s\n", u.Type, data)
				continue
			}
			fmt.Printf("[%s] id=%s ts=%s bytes=%d\n", u.Type, u.ID, u.Timestamp, len(u.Payload))
		}
	}
}

func printConnectionEvents(ctx context.Context, ev *connection.Events) {
	connected, _ := ev.Connected.Subscribe(ctx)
	disconnected, _ := ev.Disconnected.Subscribe(ctx)
	errs, _ := ev.Errors.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-connected:
			if !ok {
				return
			}
			fmt.Printf("[CONNECTED] url=%s\n", e.URL)
		case e, ok := <-disconnected:
			if !ok {
				return
			}
			fmt.Printf("[DISCONNECTED] code=%d reason=%q manual=%t\n", e.Code, e.Reason, e.Manual)
		case e, ok := <-errs:
			if !ok {
				return
			}
			fmt.Printf("[ERROR] %v\n", e.Err)
		}
	}
}
