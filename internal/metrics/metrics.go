// Package metrics exposes Prometheus metrics and a /healthz endpoint
// for the alert engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the alert engine.
type Metrics struct {
	TicksTotal   prometheus.Counter
	BatchesTotal prometheus.Counter

	AlertsFired        *prometheus.CounterVec // labels: exchange
	TimersArmed        prometheus.Counter
	TimersCancelled    prometheus.Counter
	SessionTransitions *prometheus.CounterVec // labels: type=resume|suspend|stale_timer
	StoreErrors        *prometheus.CounterVec // labels: store=alerts|configs

	MonitoredInstruments prometheus.Gauge
	EmitDur              prometheus.Histogram

	RingOverflow   prometheus.Counter
	FeedReconnects prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertengine_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertengine_batches_total",
			Help: "Total tick batches processed",
		}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertengine_alerts_fired_total",
			Help: "Inactivity alerts fired (by exchange)",
		}, []string{"exchange"}),
		TimersArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertengine_timers_armed_total",
			Help: "Inactivity timers armed or rearmed",
		}),
		TimersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertengine_timers_cancelled_total",
			Help: "Inactivity timers cancelled before firing",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertengine_session_transitions_total",
			Help: "Market session transitions observed (by type)",
		}, []string{"type"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertengine_store_errors_total",
			Help: "Storage failures (by store)",
		}, []string{"store"}),
		MonitoredInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertengine_monitored_instruments",
			Help: "Instruments currently holding monitoring state",
		}),
		EmitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertengine_emit_duration_seconds",
			Help:    "Alert emission latency (build + persist + dispatch)",
			Buckets: prometheus.DefBuckets,
		}),
		RingOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertengine_ring_overflow_total",
			Help: "Ticks dropped because the feed ring buffer was full",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertengine_feed_reconnects_total",
			Help: "WebSocket feed reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal, m.BatchesTotal, m.AlertsFired,
		m.TimersArmed, m.TimersCancelled, m.SessionTransitions,
		m.StoreErrors, m.MonitoredInstruments, m.EmitDur,
		m.RingOverflow, m.FeedReconnects,
	)
	return m
}

// HealthStatus tracks dependency liveness for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt      time.Time
	FeedConnected  bool
	LastTickTime   time.Time
	RedisConnected bool
	SQLiteOK       bool
	RedisLatencyMs float64
	SQLiteLatency  float64
	LastCheckAt    time.Time
}

// NewHealthStatus creates a HealthStatus with the start time set.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial probe and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatency = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		FeedConnected  bool    `json:"feed_connected"`
		LastTickTime   string  `json:"last_tick_time"`
		TickAge        string  `json:"tick_age"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		SQLiteOK       bool    `json:"sqlite_ok"`
		SQLiteLatency  float64 `json:"sqlite_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:  h.FeedConnected,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		SQLiteOK:       h.SQLiteOK,
		SQLiteLatency:  h.SQLiteLatency,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
