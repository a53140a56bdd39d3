package model

import (
	"encoding/json"
	"time"
)

// Bar represents one OHLCV sample for a single instrument at one timestep.
// Prices are float64 end to end: the line engine stores doubles and uses
// NaN as its missing-value sentinel, so there is no integer tick layer here.
type Bar struct {
	Symbol       string    `json:"symbol"`
	Exchange     string    `json:"exchange"`
	TS           time.Time `json:"ts"` // bar open time (UTC)
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	OpenInterest float64   `json:"open_interest"`
}

// Key returns a unique key for this bar's instrument: "exchange:symbol".
func (b *Bar) Key() string {
	return b.Exchange + ":" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	buf, _ := json.Marshal(b)
	return buf
}
