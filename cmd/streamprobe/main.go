// streamprobe connects to the fund push endpoint and streams parsed events to
// the console. Useful for eyeballing live data and reconnect behavior.
//
// Usage: go run ./cmd/streamprobe --config configs/monitord.local.yaml --funds F001,F002 --indices SH000001
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/leowzhang/fundwatch/internal/alert"
	"github.com/leowzhang/fundwatch/internal/config"
	"github.com/leowzhang/fundwatch/internal/model"
	"github.com/leowzhang/fundwatch/internal/realtime"
	"github.com/leowzhang/fundwatch/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/monitord.example.yaml", "path to config file")
	funds := flag.String("funds", "", "comma-separated fund IDs to watch (overrides config)")
	indices := flag.String("indices", "", "comma-separated market indices to watch (overrides config)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	watchFunds := cfg.Watch.Funds
	if *funds != "" {
		watchFunds = splitList(*funds)
	}
	watchIndices := cfg.Watch.Indices
	if *indices != "" {
		watchIndices = splitList(*indices)
	}

	// Create transport and session
	wsCfg := transport.DefaultWSConfig()
	wsCfg.URL = cfg.Server.WSURL
	wsCfg.Token = cfg.Server.Token
	wsCfg.PingTimeout = cfg.Realtime.PingTimeout
	wsCfg.WriteTimeout = cfg.Realtime.WriteTimeout
	tr := transport.NewWSTransport(wsCfg, logger)

	sessCfg := realtime.DefaultSessionConfig()
	sessCfg.Supervisor = realtime.SupervisorConfig{
		ReconnectBaseDelay: cfg.Realtime.ReconnectBaseDelay,
		MaxAttempts:        cfg.Realtime.MaxReconnectAttempts,
		WatchdogInterval:   cfg.Realtime.WatchdogInterval,
	}
	sessCfg.Thresholds = alert.Thresholds{
		FundWarning:   cfg.Alerts.FundWarning,
		FundError:     cfg.Alerts.FundError,
		MarketWarning: cfg.Alerts.MarketWarning,
		MarketError:   cfg.Alerts.MarketError,
	}
	session := realtime.NewSession(sessCfg, tr, nil, logger)

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	defer session.Shutdown()

	session.SubscribeFunds(watchFunds)
	session.SubscribeMarket(watchIndices)
	session.SubscribeNotifications()

	fundCh, cancelFunds := session.FundUpdateStream()
	marketCh, cancelMarket := session.MarketDataStream()
	notifCh, cancelNotifs := session.NotificationStream()
	statusCh, cancelStatus := session.StatusStream()
	defer cancelFunds()
	defer cancelMarket()
	defer cancelNotifs()
	defer cancelStatus()

	// Console printers
	go printFunds(ctx, fundCh, *verbose)
	go printMarket(ctx, marketCh, *verbose)
	go printNotifications(ctx, notifCh, *verbose)
	go printStatus(ctx, statusCh)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := session.Status()
				routerStats := session.RouterStats()
				logger.Info("stats",
					"connected", st.Connected,
					"subscriptions", len(st.ActiveSubscriptions),
					"message_count", st.MessageCount,
					"router_received", routerStats.Received,
					"router_routed", routerStats.Routed,
					"parse_errors", routerStats.ParseErrors,
					"unread", session.UnreadCount(),
				)
			}
		}
	}()

	session.Connect()

	logger.Info("streaming started - press Ctrl+C to stop",
		"funds", watchFunds,
		"indices", watchIndices,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutdown complete")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printFunds(ctx context.Context, ch <-chan model.FundUpdate, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if verbose {
				data, _ := json.MarshalIndent(u, "", "  ")
				fmt.Printf("[FUND] %s\n", data)
			} else {
				fmt.Printf("[FUND] id=%s code=%s nav=%.4f change=%.2f%%\n",
					u.FundID, u.Code, u.NAV, u.DailyChange*100)
			}
		}
	}
}

func printMarket(ctx context.Context, ch <-chan model.MarketIndexUpdate, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if verbose {
				data, _ := json.MarshalIndent(u, "", "  ")
				fmt.Printf("[INDEX] %s\n", data)
			} else {
				fmt.Printf("[INDEX] index=%s value=%.2f change=%.2f%%\n",
					u.Index, u.CurrentValue, u.ChangePercent*100)
			}
		}
	}
}

func printNotifications(ctx context.Context, ch <-chan model.Notification, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if verbose {
				data, _ := json.MarshalIndent(n, "", "  ")
				fmt.Printf("[NOTIFY] %s\n", data)
			} else {
				fmt.Printf("[NOTIFY] level=%s title=%q content=%q\n",
					n.Level, n.Title, n.Content)
			}
		}
	}
}

func printStatus(ctx context.Context, ch <-chan model.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			fmt.Printf("[STATUS] connected=%v subs=%d messages=%d exhausted=%v\n",
				st.Connected, len(st.ActiveSubscriptions), st.MessageCount, st.RetriesExhausted)
		}
	}
}
