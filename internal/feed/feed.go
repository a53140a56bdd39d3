// Package feed provides the data-feed side of the line engine: an OHLCV
// line bundle with the fixed alias set, a tri-state loading protocol that
// distinguishes "no data yet" from "exhausted", and bar sources for
// in-memory slices, CSV files and a live bounded queue.
package feed

import (
	"math"
	"time"

	"lineflow/internal/line"
	"lineflow/internal/model"
)

// State is the tri-state result of a non-blocking load attempt. An empty
// live queue is Pending, not an error; callers loop until Ready or Done.
type State int

const (
	Pending State = iota // no data yet
	Ready                // a bar was available
	Done                 // historical source exhausted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Ready:
		return "READY"
	case Done:
		return "DONE"
	}
	return "UNKNOWN"
}

// Fixed aliases of every feed bundle, in declared order.
var LineNames = []string{"datetime", "open", "high", "low", "close", "volume", "openinterest"}

// Line indices matching LineNames.
const (
	DateTime = iota
	Open
	High
	Low
	Close
	Volume
	OpenInterest
)

// BarSource supplies bars to a feed. Next is non-blocking and returns the
// tri-state load result. Stop requests cooperative shutdown of any backing
// worker; it must be safe to call more than once.
type BarSource interface {
	Next() (model.Bar, State)
	Stop()
}

// Feed is a raw-line bundle bound to a bar source. Its lines use the 0.0
// out-of-range sentinel. The runner peeks the next bar of every feed to
// commit bars in global timestamp order across feeds.
type Feed struct {
	name  string
	lines *line.Bundle
	src   BarSource

	pending    model.Bar
	hasPending bool
	done       bool

	status model.DataStatus
}

// New creates a feed with the fixed OHLCV schema over the given source.
func New(name string, src BarSource) *Feed {
	return &Feed{
		name:   name,
		lines:  line.NewBundle(line.Raw, LineNames, 0),
		src:    src,
		status: model.StatusDelayed,
	}
}

// Name returns the feed's instrument key.
func (f *Feed) Name() string { return f.name }

// Lines returns the feed's bundle.
func (f *Feed) Lines() *line.Bundle { return f.lines }

// Line returns the close buffer, the feed's primary line for consumers.
func (f *Feed) Line() *line.Buffer { return f.lines.At(Close) }

// MinPeriod of a raw feed is 1.
func (f *Feed) MinPeriod() int { return 1 }

// Len returns the number of committed bars.
func (f *Feed) Len() int { return f.lines.Len() }

// Peek fetches the next bar into the lookahead slot without committing it.
func (f *Feed) Peek() (model.Bar, State) {
	if f.hasPending {
		return f.pending, Ready
	}
	if f.done {
		return model.Bar{}, Done
	}
	b, st := f.src.Next()
	switch st {
	case Ready:
		f.pending = b
		f.hasPending = true
		return b, Ready
	case Done:
		f.done = true
		return model.Bar{}, Done
	}
	return model.Bar{}, Pending
}

// Commit pushes the pending bar into the lines: the feed's "new bar". No-op
// without a pending bar.
func (f *Feed) Commit() bool {
	if !f.hasPending {
		return false
	}
	b := f.pending
	f.hasPending = false
	f.lines.Forward(0, 1)
	f.lines.At(DateTime).Set(0, TimeToFloat(b.TS))
	f.lines.At(Open).Set(0, b.Open)
	f.lines.At(High).Set(0, b.High)
	f.lines.At(Low).Set(0, b.Low)
	f.lines.At(Close).Set(0, b.Close)
	f.lines.At(Volume).Set(0, b.Volume)
	f.lines.At(OpenInterest).Set(0, b.OpenInterest)
	return true
}

// Load is the single-feed convenience: peek and, when a bar is available,
// commit it immediately.
func (f *Feed) Load() State {
	_, st := f.Peek()
	if st == Ready {
		f.Commit()
	}
	return st
}

// Datetime returns the raw datetime value at the given ago offset.
func (f *Feed) Datetime(ago int) float64 {
	return f.lines.At(DateTime).Get(ago)
}

// Time returns the bar time at the given ago offset; the zero time when the
// slot is missing.
func (f *Feed) Time(ago int) time.Time {
	v, ok := f.lines.At(DateTime).GetOK(ago)
	if !ok {
		return time.Time{}
	}
	return FloatToTime(v)
}

// Advance moves the cursor over preloaded slots (batch replay).
func (f *Feed) Advance(size int) { f.lines.Advance(size) }

// Backwards undoes the last size bars (resample/replay correction).
func (f *Feed) Backwards(size int) { f.lines.Backwards(size) }

// Home rewinds the cursor keeping stored bars for replay.
func (f *Feed) Home() { f.lines.Home() }

// Reset rewinds the feed to empty.
func (f *Feed) Reset() {
	f.lines.Reset()
	f.hasPending = false
	f.done = false
}

// QBuffer switches the feed's lines to bounded ring storage.
func (f *Feed) QBuffer(minHistory, slack int) { f.lines.QBuffer(minHistory, slack) }

// Done reports whether the source is exhausted and nothing is pending.
func (f *Feed) Done() bool { return f.done && !f.hasPending }

// Status returns the feed's current data status.
func (f *Feed) Status() model.DataStatus { return f.status }

// SetStatus records a data-status transition (set by live sources/runner).
func (f *Feed) SetStatus(s model.DataStatus) { f.status = s }

// Stop forwards cooperative shutdown to the source.
func (f *Feed) Stop() { f.src.Stop() }

// TimeToFloat encodes a timestamp on a datetime line as Unix seconds with a
// fractional part. NaN encodes "no timestamp yet".
func TimeToFloat(t time.Time) float64 {
	if t.IsZero() {
		return math.NaN()
	}
	return float64(t.UnixNano()) / 1e9
}

// FloatToTime decodes a datetime line value; zero time for the sentinel.
func FloatToTime(v float64) time.Time {
	if math.IsNaN(v) {
		return time.Time{}
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
