package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lineflow/internal/metrics"
	"lineflow/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: keep roughly a session of 1m bars plus buffer.
	barStreamMaxLen  = 12000
	defaultLatestTTL = 30 * time.Minute
	snapshotTTL      = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes bars, signals, run results and line snapshots to Redis
// for live dashboards and downstream consumers.
type Writer struct {
	client *goredis.Client
	mets   *metrics.Metrics
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// SetMetrics attaches Prometheus collectors.
func (w *Writer) SetMetrics(m *metrics.Metrics) { w.mets = m }

// Run reads bars from barCh and writes them to Redis.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			w.writeBar(ctx, bar)
		}
	}
}

// writeBar performs pipelined writes for one bar: SET latest, XADD to the
// instrument stream with auto-trimming, PUBLISH for real-time subscribers.
func (w *Writer) writeBar(ctx context.Context, bar model.Bar) {
	latestKey := "bar:latest:" + bar.Exchange + ":" + bar.Symbol
	streamKey := barStreamKey(bar.Exchange, bar.Symbol)
	pubsubCh := "pub:bar:" + bar.Exchange + ":" + bar.Symbol
	jsonData := string(bar.JSON())

	start := time.Now()
	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: barStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	if w.mets != nil {
		w.mets.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.Printf("[redis] bar pipeline error for %s: %v", bar.Key(), err)
	}
}

// PublishSignal appends one strategy signal to its stream and publishes it
// for subscribers.
func (w *Writer) PublishSignal(ctx context.Context, sig model.Signal) error {
	jsonData, err := sigJSON(sig)
	if err != nil {
		return err
	}
	streamKey := "signals:" + sig.StrategyName
	pubsubCh := "pub:signal:" + sig.StrategyName

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis signal pipeline: %w", err)
	}
	return nil
}

// WriteResult stores one run result under its run ID and appends it to the
// runs stream for dashboards.
func (w *Writer) WriteResult(r model.RunResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jsonData := string(r.JSON())
	pipe := w.client.Pipeline()
	pipe.Set(ctx, "run:result:"+r.RunID, jsonData, 0)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "runs",
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis result pipeline: %w", err)
	}
	return nil
}

// WriteSignals persists a run's signal record in one pipeline.
func (w *Writer) WriteSignals(runID string, sigs []model.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := w.client.Pipeline()
	for _, s := range sigs {
		jsonData, err := sigJSON(s)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: "run:signals:" + runID,
			Values: map[string]interface{}{"data": jsonData},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signals pipeline: %w", err)
	}
	return nil
}

// WriteSnapshot stores one node's line snapshot for dashboard queries.
func (w *Writer) WriteSnapshot(ctx context.Context, runID, node string, data []byte) error {
	key := "snapshot:" + runID + ":" + node
	if err := w.client.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	if w.mets != nil {
		w.mets.SnapshotQueriesTotal.Inc()
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

func barStreamKey(exchange, symbol string) string {
	return "bars:" + exchange + ":" + symbol
}

func sigJSON(s model.Signal) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal signal: %w", err)
	}
	return string(b), nil
}
