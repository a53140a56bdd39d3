package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lineflow/internal/metrics"
	"lineflow/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching. It
// persists bars, run results with their signals, and named line snapshots.
type Writer struct {
	db   *sql.DB
	mets *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

// SetMetrics attaches Prometheus collectors.
func (w *Writer) SetMetrics(m *metrics.Metrics) { w.mets = m }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol       TEXT    NOT NULL,
			exchange     TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			open         REAL    NOT NULL,
			high         REAL    NOT NULL,
			low          REAL    NOT NULL,
			close        REAL    NOT NULL,
			volume       REAL,
			openinterest REAL,
			PRIMARY KEY (exchange, symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS run_results (
			run_id     TEXT PRIMARY KEY,
			strategy   TEXT    NOT NULL,
			mode       TEXT    NOT NULL,
			bars       INTEGER NOT NULL,
			signals    INTEGER NOT NULL,
			faults     INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER NOT NULL,
			data       TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_signals (
			run_id   TEXT    NOT NULL,
			seq      INTEGER NOT NULL,
			strategy TEXT    NOT NULL,
			action   TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			price    REAL    NOT NULL,
			reason   TEXT,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS line_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			node       TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", len(batch), time.Since(start))
		}
		if w.mets != nil {
			w.mets.SQLiteCommitDur.Observe(time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars inserts bars synchronously in one transaction, for seeding test
// fixtures and one-shot imports.
func (w *Writer) WriteBars(bars []model.Bar) error {
	return w.insertBatch(bars)
}

// insertBatch inserts a batch of bars in a single transaction.
func (w *Writer) insertBatch(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, exchange, ts, open, high, low, close, volume, openinterest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, b.Exchange, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume, b.OpenInterest)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored bar timestamp for a given instrument.
// Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(exchange, symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars WHERE exchange = ? AND symbol = ?`,
		exchange, symbol,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// WriteResult persists one run result row plus its JSON form.
func (w *Writer) WriteResult(r model.RunResult) error {
	_, err := w.db.Exec(`
		INSERT OR REPLACE INTO run_results (run_id, strategy, mode, bars, signals, faults, started_at, ended_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.Strategy, r.Mode, r.Bars, r.Signals, r.Faults, r.StartedAt.Unix(), r.EndedAt.Unix(), string(r.JSON()))
	if err != nil {
		return fmt.Errorf("sqlite insert result: %w", err)
	}
	return nil
}

// WriteSignals persists the signal record of one run in one transaction.
func (w *Writer) WriteSignals(runID string, sigs []model.Signal) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO run_signals (run_id, seq, strategy, action, symbol, ts, price, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, s := range sigs {
		if _, err := stmt.Exec(runID, i, s.StrategyName, string(s.Action), s.Symbol, s.TS.Unix(), s.Price, s.Reason); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SaveSnapshot persists one node's line snapshot (the RangeSlice form) as
// JSON, pruning old snapshots per node to keep the last 10.
func (w *Writer) SaveSnapshot(runID, node string, snap map[string][]float64) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = w.db.Exec(`INSERT INTO line_snapshots (run_id, node, data) VALUES (?, ?, ?)`, runID, node, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	// Prune old snapshots: keep the last 10 per node.
	_, err = w.db.Exec(`
		DELETE FROM line_snapshots
		WHERE node = ? AND id NOT IN (
			SELECT id FROM line_snapshots WHERE node = ? ORDER BY created_at DESC LIMIT 10
		)`, node, node)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
