// Package clickhouse provides columnar bar storage for deep history: batch
// ingestion and ordered range reads over a ReplacingMergeTree table.
package clickhouse

import (
	"context"
	"fmt"
	"log"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"lineflow/internal/metrics"
	"lineflow/internal/model"
)

// Config configures the ClickHouse connection.
type Config struct {
	Addr     string // host:port, e.g. "localhost:9000"
	Database string
	Table    string
	User     string
	Password string
}

// Reader reads and ingests bars. Prices are stored as Decimal(18,8) and
// converted to float64 at the line-engine boundary.
type Reader struct {
	conn  clickhouse.Conn
	db    string
	table string
	mets  *metrics.Metrics
}

// NewReader connects, pings and ensures the bar table exists.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.Table == "" {
		cfg.Table = "bars"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	r := &Reader{conn: conn, db: cfg.Database, table: cfg.Table}
	if err := r.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	log.Printf("[clickhouse] connected to %s (%s.%s)", cfg.Addr, cfg.Database, cfg.Table)
	return r, nil
}

// SetMetrics attaches Prometheus collectors.
func (r *Reader) SetMetrics(m *metrics.Metrics) { r.mets = m }

func (r *Reader) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol       String,
			exchange     LowCardinality(String),
			ts_ms        UInt64,
			open         Decimal(18,8),
			high         Decimal(18,8),
			low          Decimal(18,8),
			close        Decimal(18,8),
			volume       Float64,
			openinterest Float64,
			version      UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (exchange, symbol, ts_ms)
		SETTINGS index_granularity = 8192
	`, r.db, r.table)
	if err := r.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("clickhouse schema: %w", err)
	}
	return nil
}

// ReadBars reads bars for one instrument after the given unix timestamp,
// ordered by timestamp ascending.
func (r *Reader) ReadBars(exchange, symbol string, afterTS int64) ([]model.Bar, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Now()
	query := fmt.Sprintf(`
		SELECT symbol, exchange, ts_ms, open, high, low, close, volume, openinterest
		FROM %s.%s FINAL
		WHERE exchange = ? AND symbol = ? AND ts_ms > ?
		ORDER BY ts_ms ASC
	`, r.db, r.table)
	rows, err := r.conn.Query(ctx, query, exchange, symbol, uint64(afterTS)*1000)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b                    model.Bar
			tsMs                 uint64
			open, high, low, cls decimal.Decimal
		)
		if err := rows.Scan(&b.Symbol, &b.Exchange, &tsMs, &open, &high, &low, &cls, &b.Volume, &b.OpenInterest); err != nil {
			return nil, fmt.Errorf("clickhouse scan bars: %w", err)
		}
		b.TS = time.UnixMilli(int64(tsMs)).UTC()
		b.Open = open.InexactFloat64()
		b.High = high.InexactFloat64()
		b.Low = low.InexactFloat64()
		b.Close = cls.InexactFloat64()
		bars = append(bars, b)
	}
	if r.mets != nil {
		r.mets.ClickHouseReadDur.Observe(time.Since(start).Seconds())
	}
	return bars, rows.Err()
}

// InsertBars ingests bars through one native batch. Idempotent: the
// ReplacingMergeTree deduplicates on (exchange, symbol, ts_ms) by version.
func (r *Reader) InsertBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := r.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", r.db, r.table))
	if err != nil {
		return fmt.Errorf("clickhouse prepare batch: %w", err)
	}
	version := uint64(time.Now().UnixNano())
	for _, b := range bars {
		err := batch.Append(
			b.Symbol,
			b.Exchange,
			uint64(b.TS.UnixMilli()),
			decimal.NewFromFloat(b.Open),
			decimal.NewFromFloat(b.High),
			decimal.NewFromFloat(b.Low),
			decimal.NewFromFloat(b.Close),
			b.Volume,
			b.OpenInterest,
			version,
		)
		if err != nil {
			return fmt.Errorf("clickhouse batch append: %w", err)
		}
	}
	return batch.Send()
}

// Count returns the stored row count for one instrument.
func (r *Reader) Count(ctx context.Context, exchange, symbol string) (uint64, error) {
	var n uint64
	query := fmt.Sprintf("SELECT count() FROM %s.%s WHERE exchange = ? AND symbol = ?", r.db, r.table)
	if err := r.conn.QueryRow(ctx, query, exchange, symbol).Scan(&n); err != nil {
		return 0, fmt.Errorf("clickhouse count: %w", err)
	}
	return n, nil
}

// Close closes the connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}
