package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lineflow/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for replay and snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for a given exchange:symbol after the given unix
// timestamp. Results are ordered by timestamp ascending for correct replay
// order.
func (r *Reader) ReadBars(exchange, symbol string, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, exchange, ts, open, high, low, close, volume, openinterest
		FROM bars
		WHERE exchange = ? AND symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&b.Symbol, &b.Exchange, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OpenInterest); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadResult loads one run result by its ID. Returns nil when absent.
func (r *Reader) ReadResult(runID string) (*model.RunResult, error) {
	var data string
	err := r.db.QueryRow(`SELECT data FROM run_results WHERE run_id = ?`, runID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read result: %w", err)
	}
	var res model.RunResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

// ReadLatestSnapshot loads the most recent line snapshot for a node.
// Returns nil when no snapshot exists.
func (r *Reader) ReadLatestSnapshot(node string) (map[string][]float64, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM line_snapshots
		WHERE node = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, node).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap map[string][]float64
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
