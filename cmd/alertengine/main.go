// cmd/alertengine — the inactivity alert engine.
//
// Wiring: WebSocket tick feed → SPSC ring buffer → batcher → monitoring
// engine. Configurations live in Redis, fired alerts in SQLite; metrics
// and health are served over HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stallwatch/config"
	"stallwatch/internal/emit"
	"stallwatch/internal/feed"
	"stallwatch/internal/logger"
	"stallwatch/internal/markethours"
	"stallwatch/internal/metrics"
	"stallwatch/internal/model"
	"stallwatch/internal/monitor"
	"stallwatch/internal/notification"
	"stallwatch/internal/ringbuf"
	redisstore "stallwatch/internal/store/redis"
	sqlitestore "stallwatch/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	slogger := logger.Init("alertengine", logger.ParseLevel(cfg.LogLevel))
	slogger.Info("starting", "user", cfg.UserID, "feed", cfg.FeedURL)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Alert log store (SQLite) ----
	os.MkdirAll("data", 0o755)
	alertStore, err := sqlitestore.New(sqlitestore.StoreConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[alertengine] sqlite init failed: %v", err)
	}
	defer alertStore.Close()
	health.SetSQLiteOK(true)

	// ---- Configuration store (Redis) ----
	configStore, err := redisstore.NewConfigStore(redisstore.ConfigStoreConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[alertengine] redis init failed: %v", err)
	}
	defer configStore.Close()
	health.SetRedisConnected(true)

	health.StartLivenessChecker(ctx, configStore.Client(), alertStore.DB(), 15*time.Second)

	// ---- Notification sinks ----
	var browser notification.Notifier
	if cfg.BrowserWebhookURL != "" {
		hook := notification.NewWebhookNotifier(cfg.BrowserWebhookURL)
		// Browser delivery is permission-gated: the webhook doubles as
		// the permission probe (a reachable endpoint means granted).
		browser = notification.NewPermissionGate(hook, func(ctx context.Context) (bool, error) {
			return hook.Send(ctx, notification.Message{
				Level: notification.AlertInfo,
				Title: "alertengine",
				Body:  "notification permission probe",
			}) == nil, nil
		})
	}

	var email notification.Notifier
	switch {
	case cfg.TelegramBotToken != "" && cfg.TelegramChatID != "":
		email = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case cfg.EmailWebhookURL != "":
		email = notification.NewWebhookNotifier(cfg.EmailWebhookURL)
	}

	emitter := &emit.Emitter{
		Alerts:  alertStore,
		Sound:   notification.NewLogPlayer(),
		Browser: browser,
		Email:   email,
		OnToast: func(msg string) { slogger.Info("toast", "msg", msg) },
		Log:     slogger,
	}

	// ---- Engine ----
	eng := monitor.New(monitor.Options{
		UserID:  cfg.UserID,
		Configs: configStore,
		Alerts:  alertStore,
		Oracle:  markethours.NewOracle(),
		Emitter: emitter,
		Logger:  slogger,
		Metrics: prom,
	})
	if err := eng.LoadConfigs(ctx); err != nil {
		// Non-fatal: the engine runs with an empty config cache until
		// the next successful refresh or UpdateConfiguration call.
		slogger.Error("initial config load failed", "err", err)
	}

	// ---- Feed → ring buffer ----
	ring := ringbuf.New(8192)
	client, err := feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		log.Fatalf("[alertengine] feed config: %v", err)
	}
	client.OnTick = func(tk model.Tick) {
		if !ring.Push(tk) {
			prom.RingOverflow.Inc()
		}
		health.SetLastTickTime(tk.TickTS)
	}
	client.OnConnect = func() { health.SetFeedConnected(true) }
	client.OnReconnect = func() {
		health.SetFeedConnected(false)
		prom.FeedReconnects.Inc()
	}

	go func() {
		if err := client.Start(ctx); err != nil {
			slogger.Error("feed stopped", "err", err)
		}
	}()

	// ---- Batcher: drain the ring into the engine on a fixed cadence ----
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.BatchMillis) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				batch := ring.Drain(0)
				if len(batch) == 0 {
					continue
				}
				bctx := logger.WithBatchID(ctx, logger.GenerateBatchID(time.Now()))
				eng.ProcessBatch(bctx, batch)
			}
		}
	}()

	slogger.Info("running", "market", markethours.StatusString(time.Now()))

	<-sigCh
	slogger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
}
