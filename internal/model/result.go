package model

import (
	"encoding/json"
	"time"
)

// RunResult summarizes one backtest run for persistence and dashboards.
type RunResult struct {
	RunID     string    `json:"run_id"` // uuid assigned by the driver
	Strategy  string    `json:"strategy"`
	Mode      string    `json:"mode"` // "stream" or "batch"
	Symbols   []string  `json:"symbols"`
	Bars      int       `json:"bars"`
	Signals   int       `json:"signals"`
	Faults    int       `json:"faults"` // node bodies forced to sentinel
	Realized  float64   `json:"realized_pnl"`
	FinalCash float64   `json:"final_cash"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// JSON returns the JSON-encoded result.
func (r *RunResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// ── Storage Port Interfaces ──
// These decouple the drivers from concrete storage implementations
// (SQLite, ClickHouse, Redis).

// BarReader reads historical bars for replay, ordered by timestamp ascending.
type BarReader interface {
	ReadBars(exchange, symbol string, afterTS int64) ([]Bar, error)
	Close() error
}

// ResultWriter persists run results.
type ResultWriter interface {
	WriteResult(r RunResult) error
	WriteSignals(runID string, sigs []Signal) error
	Close() error
}
