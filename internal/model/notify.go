package model

import "time"

// DataStatus describes the delivery state of a live data feed. Ingestion
// faults surface as a status change, never as an error on the bar path.
type DataStatus int

const (
	StatusDelayed DataStatus = iota // catching up on historical/backfill bars
	StatusLive                      // real-time delivery
	StatusDisconnected              // transport lost, reconnect pending
)

func (s DataStatus) String() string {
	switch s {
	case StatusDelayed:
		return "DELAYED"
	case StatusLive:
		return "LIVE"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Action represents a trading action emitted by a strategy.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionExit Action = "EXIT"
)

// Signal is a trading signal emitted by a strategy on one bar.
type Signal struct {
	StrategyName string    `json:"strategy_name"`
	Action       Action    `json:"action"`
	Symbol       string    `json:"symbol"`
	Exchange     string    `json:"exchange"`
	TS           time.Time `json:"ts"`
	Price        float64   `json:"price"`
	Reason       string    `json:"reason"`
}

// CashInfo is the broker cash/value pair pushed to strategies after each bar.
type CashInfo struct {
	Cash  float64 `json:"cash"`
	Value float64 `json:"value"`
}

// OrderRecord is the minimal order bookkeeping record delivered through the
// strategy notification surface. Matching and commission math live outside
// the engine.
type OrderRecord struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Action Action    `json:"action"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	Status string    `json:"status"`
	TS     time.Time `json:"ts"`
}

// TradeRecord is a closed round-trip delivered through the notification surface.
type TradeRecord struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	PnL    float64   `json:"pnl"`
	Opened time.Time `json:"opened"`
	Closed time.Time `json:"closed"`
}
