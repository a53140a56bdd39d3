package broker

import (
	"log"
	"sync"
)

// RiskLimits defines the pre-trade risk thresholds.
type RiskLimits struct {
	MaxPositionSize  float64 `json:"max_position_size"`  // max qty per instrument
	MaxDailyLoss     float64 `json:"max_daily_loss"`     // max daily realized loss
	MaxOpenPositions int     `json:"max_open_positions"` // max concurrent positions
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`   // max drawdown percentage (0-100)
}

// DefaultRiskLimits returns conservative defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  100,
		MaxDailyLoss:     5000,
		MaxOpenPositions: 5,
		MaxDrawdownPct:   5.0,
	}
}

// RiskManager validates fills against limits and tracks equity drawdown.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits
	book   *Book

	dailyPnL   float64
	equity     float64
	peakEquity float64
}

// NewRiskManager creates a RiskManager over the given book and starting equity.
func NewRiskManager(limits RiskLimits, book *Book, initialEquity float64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		book:       book,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanTrade reports whether a fill of qty in symbol would violate any
// limit. Returns false with the violated limit's name.
func (rm *RiskManager) CanTrade(symbol string, qty float64) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	pos, open := rm.book.Position(symbol)
	if !open && len(rm.book.Positions()) >= rm.limits.MaxOpenPositions {
		return false, "max open positions reached"
	}

	if abs(pos.Qty+qty) > rm.limits.MaxPositionSize {
		return false, "position size exceeds limit"
	}

	if rm.dailyPnL < -rm.limits.MaxDailyLoss {
		return false, "max daily loss reached"
	}

	if rm.peakEquity > 0 {
		drawdown := (rm.peakEquity - rm.equity) / rm.peakEquity * 100
		if drawdown > rm.limits.MaxDrawdownPct {
			return false, "max drawdown exceeded"
		}
	}

	return true, ""
}

// RecordPnL folds realized P&L into the daily and equity tracking.
func (rm *RiskManager) RecordPnL(pnl float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}

	log.Printf("[risk] daily P&L: %.2f, equity: %.2f, peak: %.2f", rm.dailyPnL, rm.equity, rm.peakEquity)
}

// ResetDaily clears the daily loss counter. Call at session open.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyPnL = 0
}

// Status returns the current risk state for reporting.
func (rm *RiskManager) Status() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	drawdown := 0.0
	if rm.peakEquity > 0 {
		drawdown = (rm.peakEquity - rm.equity) / rm.peakEquity * 100
	}
	return map[string]interface{}{
		"daily_pnl":    rm.dailyPnL,
		"equity":       rm.equity,
		"peak_equity":  rm.peakEquity,
		"drawdown_pct": drawdown,
		"limits":       rm.limits,
	}
}
