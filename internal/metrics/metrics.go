package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the line engine.
type Metrics struct {
	BarsTotal     prometheus.Counter
	SignalsTotal  *prometheus.CounterVec // labels: strategy, action
	NodeFaults    prometheus.Counter
	TickDur       prometheus.Histogram
	BatchDur      prometheus.Histogram
	ResolveMinPer *prometheus.GaugeVec // labels: node

	// Live feed metrics
	FeedQueueDepth   *prometheus.GaugeVec   // labels: feed
	FeedQueueHigh    *prometheus.GaugeVec   // labels: feed
	FeedOverflow     *prometheus.CounterVec // labels: feed
	FeedReconnects   prometheus.Counter
	FeedStatusState  *prometheus.GaugeVec // labels: feed; 0=delayed 1=live 2=disconnected
	PendingSpinTotal prometheus.Counter

	// Store metrics
	RedisWriteDur        prometheus.Histogram
	RedisBreakerState    prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips    prometheus.Counter
	RedisBufferedWrites  prometheus.Counter
	SQLiteCommitDur      prometheus.Histogram
	ClickHouseReadDur    prometheus.Histogram
	SnapshotQueriesTotal prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_bars_total",
			Help: "Total bars ticked through the graph",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lineflow_signals_total",
			Help: "Strategy signals emitted (by strategy, action)",
		}, []string{"strategy", "action"}),
		NodeFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_node_faults_total",
			Help: "Computation faults absorbed at node boundaries",
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineflow_tick_duration_seconds",
			Help:    "Full-graph streaming step latency per bar",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		BatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineflow_batch_duration_seconds",
			Help:    "Batch evaluation latency for a whole run",
			Buckets: prometheus.DefBuckets,
		}),
		ResolveMinPer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineflow_resolved_minperiod",
			Help: "Resolved minperiod per top-level node",
		}, []string{"node"}),

		FeedQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineflow_feed_queue_depth",
			Help: "Live feed ring occupancy",
		}, []string{"feed"}),
		FeedQueueHigh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineflow_feed_queue_high_water",
			Help: "Peak live feed ring occupancy since start",
		}, []string{"feed"}),
		FeedOverflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lineflow_feed_overflow_total",
			Help: "Bars dropped against a full live feed ring",
		}, []string{"feed"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_feed_reconnects_total",
			Help: "Venue websocket reconnection attempts",
		}),
		FeedStatusState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineflow_feed_status",
			Help: "Feed delivery status (0=delayed, 1=live, 2=disconnected)",
		}, []string{"feed"}),
		PendingSpinTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_pending_spins_total",
			Help: "Load rounds where every live feed was still pending",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineflow_redis_write_duration_seconds",
			Help:    "Redis result write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lineflow_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_redis_buffered_writes_total",
			Help: "Writes buffered locally while the breaker was open",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineflow_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		ClickHouseReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineflow_clickhouse_read_duration_seconds",
			Help:    "ClickHouse historical read latency",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineflow_snapshot_queries_total",
			Help: "Snapshot range queries served between ticks",
		}),
	}

	prometheus.MustRegister(
		m.BarsTotal,
		m.SignalsTotal,
		m.NodeFaults,
		m.TickDur,
		m.BatchDur,
		m.ResolveMinPer,
		m.FeedQueueDepth,
		m.FeedQueueHigh,
		m.FeedOverflow,
		m.FeedReconnects,
		m.FeedStatusState,
		m.PendingSpinTotal,
		m.RedisWriteDur,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
		m.RedisBufferedWrites,
		m.SQLiteCommitDur,
		m.ClickHouseReadDur,
		m.SnapshotQueriesTotal,
	)

	return m
}

// HealthStatus represents the system health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	GraphResolved  bool      `json:"graph_resolved"`
	StartedAt      time.Time `json:"started_at"`
	LastCheckAt    time.Time `json:"last_check_at"`
	RedisLatencyMs float64   `json:"redis_latency_ms"`
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

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetGraphResolved(v bool) {
	h.mu.Lock()
	h.GraphResolved = v
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

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rdb != nil {
					probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
					h.CheckRedis(probeCtx, rdb)
					cancel()
				}
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
	if !h.GraphResolved {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	out := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		WSConnected    bool    `json:"ws_connected"`
		LastBarTime    string  `json:"last_bar_time"`
		BarAge         string  `json:"bar_age"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		GraphResolved  bool    `json:"graph_resolved"`
	}{
		Status:         status,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:    h.WSConnected,
		LastBarTime:    h.LastBarTime.Format(time.RFC3339),
		BarAge:         barAge,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		GraphResolved:  h.GraphResolved,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(out)
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
