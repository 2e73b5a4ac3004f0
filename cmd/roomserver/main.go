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

	"github.com/cueroom/realtime/internal/admission"
	"github.com/cueroom/realtime/internal/broadcast"
	"github.com/cueroom/realtime/internal/config"
	"github.com/cueroom/realtime/internal/database"
	"github.com/cueroom/realtime/internal/gateway"
	"github.com/cueroom/realtime/internal/metrics"
	"github.com/cueroom/realtime/internal/notify"
	"github.com/cueroom/realtime/internal/persist"
	"github.com/cueroom/realtime/internal/room"
	"github.com/cueroom/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/roomserver.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting roomserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
		"transport", cfg.Server.Transport,
	)

	// Create context with cancellation
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

	// Core services
	registry := room.NewRegistry(logger)
	hub := notify.NewHub(logger)
	broadcaster := broadcast.NewBroadcaster(registry, hub, logger)
	collector := metrics.NewCollector()

	registry.SetNotifier(hub)
	registry.AddObserver(hub)
	registry.AddObserver(broadcaster)

	verifier := admission.NewHMACVerifier(cfg.Auth.Secret)
	limits := admission.Limits{
		ConnectionsPerWindow: cfg.RateLimit.ConnectionsPerMinute,
		MessagesPerWindow:    cfg.RateLimit.MessagesPerMinute,
		EventsPerWindow:      cfg.RateLimit.EventsPerMinute,
		Window:               time.Minute,
	}
	admitter := admission.NewAdmitter(verifier, registry, hub, limits, logger)

	// Optional snapshot store
	var store *persist.Store
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store = persist.NewStore(pool, registry, broadcaster, cfg.Database.FlushInterval, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}

		recovered, err := store.Recover(ctx)
		if err != nil {
			logger.Error("room recovery failed", "error", err)
			os.Exit(1)
		}
		logger.Info("room recovery complete", "rooms", recovered)

		registry.AddObserver(store)
		if err := store.Start(ctx); err != nil {
			logger.Error("failed to start snapshot store", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			store.Stop(shutdownCtx)
		}()
	} else {
		logger.Info("no database configured, running in memory only")
	}

	// Idle room cleanup
	go func() {
		ticker := time.NewTicker(cfg.Rooms.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.CleanupIdle(cfg.Rooms.IdleTimeout); n > 0 {
					logger.Info("cleaned up idle rooms", "count", n)
				}
			}
		}
	}()

	// Websocket gateway
	gw := gateway.NewServer(gateway.Config{
		PingTimeout:  cfg.Server.PingTimeout,
		PingInterval: cfg.Server.PingInterval,
		WriteTimeout: cfg.Server.WriteTimeout,
		Transport:    cfg.Server.Transport,
	}, admitter, registry, broadcaster, hub, collector, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)

	wsServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("starting websocket server", "addr", cfg.Server.Addr)
		if err := wsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("websocket server error", "error", err)
			cancel()
		}
	}()

	// Health and metrics endpoint
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(cfg, registry, admitter, collector),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("roomserver running",
		"instance_id", cfg.Instance.ID,
		"ws_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Server.Addr),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	wsServer.Shutdown(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("roomserver stopped")
}

// createHealthHandler creates the HTTP handler for health checks and the
// metrics snapshot.
func createHealthHandler(cfg *config.ServerConfig, registry *room.Registry, admitter *admission.Admitter, collector *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["rooms"] = map[string]any{
			"count": registry.RoomCount(),
		}
		health.Components["connections"] = map[string]any{
			"count": admitter.ConnectionCount(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.HandleFunc(metricsPath, func(w http.ResponseWriter, r *http.Request) {
		snap := collector.Metrics()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total_messages":     snap.TotalMessages,
			"error_count":        snap.ErrorCount,
			"average_latency_ms": float64(snap.AverageLatency) / float64(time.Millisecond),
		})
	})

	mux.HandleFunc("/debug/rooms", func(w http.ResponseWriter, r *http.Request) {
		rooms := registry.ListRooms()

		// Limit to first 100 for debugging
		limit := 100
		if len(rooms) > limit {
			rooms = rooms[:limit]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   registry.RoomCount(),
			"showing": len(rooms),
			"rooms":   rooms,
		})
	})

	return mux
}
