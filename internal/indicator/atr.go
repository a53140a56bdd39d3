package indicator

import (
	"fmt"
	"math"

	"lineflow/internal/engine"
	"lineflow/internal/feed"
)

// TrueRange computes max(high-low, |high-prevclose|, |low-prevclose|) over
// a feed's bars.
type TrueRange struct {
	engine.Cell
	f *feed.Feed
}

// NewTrueRange creates a TrueRange node over a feed.
func NewTrueRange(owner engine.Owner, f *feed.Feed) *TrueRange {
	t := &TrueRange{f: f}
	t.Init(owner, t, "truerange", []string{"tr"}, 0, f)
	// Needs the previous close.
	t.IncMinPeriod(1)
	return t
}

func (t *TrueRange) Next() {
	h := t.f.Lines().At(feed.High).Get(0)
	l := t.f.Lines().At(feed.Low).Get(0)
	pc := t.f.Lines().At(feed.Close).Get(1)
	t.Line().Set(0, trueRange(h, l, pc))
}

func (t *TrueRange) Once(start, end int) {
	hs := t.f.Lines().At(feed.High)
	ls := t.f.Lines().At(feed.Low)
	cs := t.f.Lines().At(feed.Close)
	out := t.Line()
	for i := start; i < end; i++ {
		out.SetAt(i, trueRange(hs.GetAt(i), ls.GetAt(i), cs.GetAt(i-1)))
	}
}

func trueRange(h, l, pc float64) float64 {
	tr := h - l
	if v := math.Abs(h - pc); v > tr {
		tr = v
	}
	if v := math.Abs(l - pc); v > tr {
		tr = v
	}
	return tr
}

// ATR is Wilder's average true range: an SMMA over the true range. The
// output line is spliced from the owned SMMA through a binding rather than
// re-derived.
type ATR struct {
	engine.Cell
	tr   *TrueRange
	smma *SMMA
}

// NewATR creates an ATR node over a feed with the given period.
func NewATR(owner engine.Owner, f *feed.Feed, period int) *ATR {
	if period < 1 {
		panic(fmt.Sprintf("indicator: ATR period must be >= 1, got %d", period))
	}
	a := &ATR{}
	a.Init(owner, a, "atr", []string{"atr"}, 0, f)
	a.tr = NewTrueRange(a, f)
	a.smma = NewSMMA(a, a.tr, period)
	a.smma.Line().Bind(a.Line())
	a.AddData(a.smma)
	return a
}

// Next is empty: the binding splices the smoothed value in when the owned
// SMMA is stepped.
func (a *ATR) Next() {}

// Once is empty for the same reason; bindings are bulk-synced after the
// sub-node's batch pass.
func (a *ATR) Once(start, end int) {}
