package feed

import (
	"time"

	"lineflow/internal/model"
)

// Resampler compresses bars into a larger interval, e.g. minute bars
// into 5-minute bars. The compressed bar is emitted when the first bar
// of the next bucket arrives. Incremental and O(1) per input bar.
type Resampler struct {
	interval time.Duration
	onBar    func(model.Bar)

	cur    model.Bar
	bucket time.Time
	open   bool
}

// NewResampler creates a resampler emitting compressed bars through onBar.
func NewResampler(interval time.Duration, onBar func(model.Bar)) *Resampler {
	return &Resampler{interval: interval, onBar: onBar}
}

// Add folds one source bar into the forming compressed bar. Bars older
// than the forming bucket are dropped.
func (r *Resampler) Add(b model.Bar) {
	bucket := b.TS.Truncate(r.interval)
	if r.open && bucket.Before(r.bucket) {
		return
	}
	if r.open && bucket.After(r.bucket) {
		r.Flush()
	}
	if !r.open {
		r.cur = model.Bar{
			Symbol:   b.Symbol,
			Exchange: b.Exchange,
			TS:       bucket,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
		}
		r.bucket = bucket
		r.open = true
	}
	if b.High > r.cur.High {
		r.cur.High = b.High
	}
	if b.Low < r.cur.Low {
		r.cur.Low = b.Low
	}
	r.cur.Close = b.Close
	// Volume is a flow and accumulates; open interest is a level and the
	// latest reading stands.
	r.cur.Volume += b.Volume
	r.cur.OpenInterest = b.OpenInterest
}

// Flush emits the forming bar, if any.
func (r *Resampler) Flush() {
	if !r.open {
		return
	}
	r.onBar(r.cur)
	r.open = false
}

// ResampleBars compresses a bar slice wholesale. The input must be
// ordered by timestamp ascending.
func ResampleBars(bars []model.Bar, interval time.Duration) []model.Bar {
	var out []model.Bar
	rs := NewResampler(interval, func(b model.Bar) { out = append(out, b) })
	for _, b := range bars {
		rs.Add(b)
	}
	rs.Flush()
	return out
}
