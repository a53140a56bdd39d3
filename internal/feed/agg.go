package feed

import (
	"time"

	"lineflow/internal/model"
)

// Aggregator folds a tick stream into fixed-interval bars for one
// instrument. A bar is emitted when the first tick of the next interval
// arrives, so the caller sees only completed bars. Not goroutine-safe:
// run it on the tick source's goroutine.
type Aggregator struct {
	exchange string
	symbol   string
	interval time.Duration
	onBar    func(model.Bar)

	cur  model.Bar
	slot time.Time
	open bool

	// Called when a tick older than the forming bar is dropped.
	OnLateTick func()
}

// NewAggregator creates an aggregator emitting completed bars through onBar.
func NewAggregator(exchange, symbol string, interval time.Duration, onBar func(model.Bar)) *Aggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Aggregator{
		exchange: exchange,
		symbol:   symbol,
		interval: interval,
		onBar:    onBar,
	}
}

// Tick folds one trade into the forming bar. Volume is the venue's
// cumulative session volume; the bar carries the latest value.
func (a *Aggregator) Tick(ts time.Time, price, volume float64) {
	slot := ts.Truncate(a.interval)
	if a.open && slot.Before(a.slot) {
		if a.OnLateTick != nil {
			a.OnLateTick()
		}
		return
	}
	if a.open && slot.After(a.slot) {
		a.Flush()
	}
	if !a.open {
		a.cur = model.Bar{
			Symbol:   a.symbol,
			Exchange: a.exchange,
			TS:       slot,
			Open:     price,
			High:     price,
			Low:      price,
		}
		a.slot = slot
		a.open = true
	}
	if price > a.cur.High {
		a.cur.High = price
	}
	if price < a.cur.Low {
		a.cur.Low = price
	}
	a.cur.Close = price
	a.cur.Volume = volume
}

// Flush emits the forming bar, if any. Call on shutdown so the last
// partial bar is not lost.
func (a *Aggregator) Flush() {
	if !a.open {
		return
	}
	a.onBar(a.cur)
	a.open = false
}
