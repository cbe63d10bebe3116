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

	"github.com/leowzhang/fundwatch/internal/alert"
	"github.com/leowzhang/fundwatch/internal/catalog"
	"github.com/leowzhang/fundwatch/internal/config"
	"github.com/leowzhang/fundwatch/internal/database"
	"github.com/leowzhang/fundwatch/internal/realtime"
	"github.com/leowzhang/fundwatch/internal/record"
	"github.com/leowzhang/fundwatch/internal/transport"
	"github.com/leowzhang/fundwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitord.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitord",
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
		"catalog_url", cfg.Server.CatalogURL,
		"ws_url", cfg.Server.WSURL,
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

	// Create catalog client
	catalogClient := catalog.NewClient(
		cfg.Server.CatalogURL,
		cfg.Server.Token,
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Server.Timeout),
		catalog.WithRetries(cfg.Server.MaxRetries, time.Second),
	)

	// Create WebSocket transport
	wsCfg := transport.DefaultWSConfig()
	wsCfg.URL = cfg.Server.WSURL
	wsCfg.Token = cfg.Server.Token
	wsCfg.PingTimeout = cfg.Realtime.PingTimeout
	wsCfg.WriteTimeout = cfg.Realtime.WriteTimeout
	tr := transport.NewWSTransport(wsCfg, logger)

	// Create realtime session
	sessCfg := realtime.SessionConfig{
		Supervisor: realtime.SupervisorConfig{
			ReconnectBaseDelay: cfg.Realtime.ReconnectBaseDelay,
			MaxAttempts:        cfg.Realtime.MaxReconnectAttempts,
			WatchdogInterval:   cfg.Realtime.WatchdogInterval,
		},
		Thresholds: alert.Thresholds{
			FundWarning:   cfg.Alerts.FundWarning,
			FundError:     cfg.Alerts.FundError,
			MarketWarning: cfg.Alerts.MarketWarning,
			MarketError:   cfg.Alerts.MarketError,
		},
		FeedCapacity: cfg.Alerts.FeedCapacity,
		StreamBuffer: cfg.Realtime.StreamBuffer,
	}
	session := realtime.NewSession(sessCfg, tr, catalogClient, logger)

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	defer session.Shutdown()

	// Register the desired watch set before connecting so the first
	// Connected transition subscribes everything in one pass.
	if len(cfg.Watch.Funds) > 0 {
		session.SubscribeFunds(cfg.Watch.Funds)
	}
	if len(cfg.Watch.Indices) > 0 {
		session.SubscribeMarket(cfg.Watch.Indices)
	}
	if cfg.Watch.Notifications {
		session.SubscribeNotifications()
	}

	// Optional tick recorder
	var recorder *record.Recorder
	if cfg.Recorder.Enabled {
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

		logger.Info("database connected")

		funds, cancelFunds := session.FundUpdateStream()
		market, cancelMarket := session.MarketDataStream()
		recorder = record.NewRecorder(cfg.Recorder, funds, cancelFunds, market, cancelMarket, pool, logger)
		if err := recorder.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	// Health/status server
	healthPort := cfg.Health.Port
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(session, recorder),
	}

	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Establish the push channel
	session.Connect()

	logger.Info("monitord running",
		"health_url", fmt.Sprintf("http://localhost:%d/healthz", healthPort),
		"watched_funds", len(cfg.Watch.Funds),
		"watched_indices", len(cfg.Watch.Indices),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	if recorder != nil {
		recorder.Stop(shutdownCtx)
	}

	logger.Info("monitord stopped")
}

// createHealthHandler creates the HTTP handler for health and status checks.
func createHealthHandler(session *realtime.Session, recorder *record.Recorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		st := session.Status()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if st.Connected {
			health.Components["realtime"] = "connected"
		} else if st.RetriesExhausted {
			health.Status = "unhealthy"
			health.Components["realtime"] = "retries exhausted"
		} else {
			health.Status = "degraded"
			health.Components["realtime"] = "disconnected"
		}

		if recorder != nil {
			stats := recorder.Stats()
			health.Components["recorder"] = map[string]int64{
				"inserts": stats.Inserts,
				"flushes": stats.Flushes,
				"errors":  stats.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		st := session.Status()
		routerStats := session.RouterStats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"connected":            st.Connected,
			"last_update":          st.LastUpdate,
			"active_subscriptions": st.ActiveSubscriptions,
			"message_count":        st.MessageCount,
			"retries_exhausted":    st.RetriesExhausted,
			"unread_notifications": session.UnreadCount(),
			"router": map[string]int64{
				"received":     routerStats.Received,
				"routed":       routerStats.Routed,
				"parse_errors": routerStats.ParseErrors,
			},
		})
	})

	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		notifs := session.Notifications()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":  len(notifs),
			"unread": session.UnreadCount(),
			"items":  notifs,
		})
	})

	return mux
}
