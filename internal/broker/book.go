// Package broker simulates order execution against strategy signals.
// It fills signals with configurable slippage, tracks positions and
// P&L, and feeds order/trade records back through the runner's
// notification surface.
package broker

import (
	"sync"
	"time"

	"lineflow/internal/model"
)

// Position is a single open instrument position. Qty is signed:
// positive long, negative short.
type Position struct {
	Symbol    string    `json:"symbol"`
	Qty       float64   `json:"qty"`
	AvgPrice  float64   `json:"avg_price"`
	LastPrice float64   `json:"last_price"`
	OpenedAt  time.Time `json:"opened_at"`

	// realized P&L accumulated on this position since it was opened
	realized float64
}

// UnrealizedPnL returns the open P&L at the last marked price.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Book tracks open positions and realized P&L across fills.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
	realized  float64
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// ApplyFill folds a fill into the book. Returns the cash delta (negative
// for buys) and, when the fill closes a position, the round-trip trade
// record.
func (b *Book) ApplyFill(symbol string, qty, price float64, ts time.Time) (cashDelta float64, closed *model.TradeRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cashDelta = -qty * price

	pos, ok := b.positions[symbol]
	if !ok || pos.Qty == 0 {
		b.positions[symbol] = &Position{
			Symbol:    symbol,
			Qty:       qty,
			AvgPrice:  price,
			LastPrice: price,
			OpenedAt:  ts,
		}
		return cashDelta, nil
	}

	pos.LastPrice = price
	sameSide := (pos.Qty > 0) == (qty > 0)
	if sameSide {
		// Scaling in: blend the average entry price.
		total := pos.Qty + qty
		pos.AvgPrice = (pos.AvgPrice*pos.Qty + price*qty) / total
		pos.Qty = total
		return cashDelta, nil
	}

	// Reducing, closing, or flipping.
	closeQty := qty
	if abs(qty) > abs(pos.Qty) {
		closeQty = -pos.Qty
	}
	pnl := (price - pos.AvgPrice) * -closeQty
	pos.realized += pnl
	b.realized += pnl
	pos.Qty += qty

	if pos.Qty == 0 {
		closed = &model.TradeRecord{
			Symbol: symbol,
			PnL:    pos.realized,
			Opened: pos.OpenedAt,
			Closed: ts,
		}
		delete(b.positions, symbol)
		return cashDelta, closed
	}
	if abs(qty) > abs(closeQty) {
		// Flipped through zero: the remainder opens a fresh position.
		closed = &model.TradeRecord{
			Symbol: symbol,
			PnL:    pos.realized,
			Opened: pos.OpenedAt,
			Closed: ts,
		}
		b.positions[symbol] = &Position{
			Symbol:    symbol,
			Qty:       pos.Qty,
			AvgPrice:  price,
			LastPrice: price,
			OpenedAt:  ts,
		}
	}
	return cashDelta, closed
}

// MarkPrice updates the last traded price for an open position.
func (b *Book) MarkPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.positions[symbol]; ok {
		pos.LastPrice = price
	}
}

// Position returns a copy of the open position for symbol, if any.
func (b *Book) Position(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pos, ok := b.positions[symbol]; ok {
		return *pos, true
	}
	return Position{}, false
}

// Positions returns a snapshot of all open positions.
func (b *Book) Positions() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// RealizedPnL returns the total realized P&L across all closed fills.
func (b *Book) RealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.realized
}

// UnrealizedPnL returns the total open P&L at last marked prices.
func (b *Book) UnrealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// MarketValue returns the marked value of all open positions.
func (b *Book) MarketValue() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		total += p.LastPrice * p.Qty
	}
	return total
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
