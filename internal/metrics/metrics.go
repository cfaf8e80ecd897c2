// Package metrics exposes Prometheus metrics and a health endpoint for the
// indicator engine.
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

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	TicksTotal       *prometheus.CounterVec // labels: kind
	InvalidTicks     prometheus.Counter
	UnknownInstTicks prometheus.Counter
	QueueOverflow    prometheus.Counter
	FeedDropped      prometheus.Counter
	WSReconnects     prometheus.Counter

	IndicatorsTotal     prometheus.Counter
	IndicatorComputeDur prometheus.Histogram
	DepthAnalyzed       prometheus.Counter

	ResultsPublished prometheus.Counter
	SQLiteCommitDur  prometheus.Histogram

	SubscribedInstruments prometheus.Gauge
}

// New registers and returns all engine metrics.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Normalized ticks accepted, by kind",
		}, []string{"kind"}),
		InvalidTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_invalid_ticks_total",
			Help: "Raw events rejected by normalization",
		}),
		UnknownInstTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_unknown_instrument_ticks_total",
			Help: "Ticks dropped for unsubscribed instruments",
		}),
		QueueOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_queue_overflow_total",
			Help: "Ticks dropped by the per-instrument queue (drop-newest)",
		}),
		FeedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_feed_dropped_events_total",
			Help: "Raw events dropped because the ingest channel was full",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ws_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),
		IndicatorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_indicators_total",
			Help: "Indicator values computed",
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_indicator_compute_duration_seconds",
			Help:    "Per-tick indicator update latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		DepthAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_depth_snapshots_total",
			Help: "Depth snapshots analyzed",
		}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_results_published_total",
			Help: "Indicator results published to Redis",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SubscribedInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_subscribed_instruments",
			Help: "Currently subscribed instruments",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.InvalidTicks,
		m.UnknownInstTicks,
		m.QueueOverflow,
		m.FeedDropped,
		m.WSReconnects,
		m.IndicatorsTotal,
		m.IndicatorComputeDur,
		m.DepthAnalyzed,
		m.ResultsPublished,
		m.SQLiteCommitDur,
		m.SubscribedInstruments,
	)
	return m
}

// HealthStatus represents the engine health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastTickTime   time.Time
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
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
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
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
				if db != nil {
					h.CheckSQLite(probeCtx, db)
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

	status := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	body := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Serve runs an HTTP server exposing /metrics and /healthz until ctx is done.
func Serve(ctx context.Context, addr string, health *HealthStatus) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[metrics] serving /metrics and /healthz on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[metrics] server error: %v", err)
	}
}
