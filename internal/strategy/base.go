// Package strategy provides the strategy base and concrete trading
// strategies built on the line engine.
//
// A strategy is a graph node clocked by the runner rather than by a single
// feed: its datetime line carries one slot per logical timestep of the whole
// run, and its warm-up gates on every indicator hanging off its feeds. The
// base supplies no-op defaults for the lifecycle and notification surface so
// concrete strategies override only what they use.
package strategy

import (
	"time"

	"lineflow/internal/engine"
	"lineflow/internal/feed"
	"lineflow/internal/model"
)

// Base is the embeddable strategy foundation. Concrete strategies call
// InitStrategy from their constructor, create their indicators with
// themselves as owner, and implement Next.
type Base struct {
	engine.Cell

	feeds   []*feed.Feed
	signals []model.Signal
	sink    func(model.Signal)
}

// InitStrategy wires the strategy node: runner-driven clock, a single
// datetime line, and the feeds it trades on.
func (b *Base) InitStrategy(owner engine.Owner, impl engine.Node, name string, feeds ...*feed.Feed) {
	srcs := make([]engine.Source, len(feeds))
	for i, f := range feeds {
		srcs[i] = f
	}
	b.Init(owner, impl, name, []string{"datetime"}, 0, srcs...)
	b.SetManualClock()
	b.feeds = feeds
}

// Feed returns the i-th feed the strategy trades on.
func (b *Base) Feed(i int) *feed.Feed { return b.feeds[i] }

// Time returns the strategy timestamp ago bars back.
func (b *Base) Time(ago int) time.Time {
	return feed.FloatToTime(b.Lines().At(0).Get(ago))
}

// Once is a no-op: a strategy's lines are filled by the runner during batch
// preload, and its per-bar work runs through the replay dispatch. Having a
// batch body keeps the strategy out of the force-sequential set.
func (b *Base) Once(start, end int) {}

// Start and Stop bracket a run. Defaults do nothing.
func (b *Base) Start() {}
func (b *Base) Stop()  {}

// Notification surface defaults.
func (b *Base) NotifyData(feedIdx int, status model.DataStatus) {}
func (b *Base) NotifyCash(info model.CashInfo)                  {}
func (b *Base) NotifyOrder(o model.OrderRecord)                 {}
func (b *Base) NotifyTrade(t model.TradeRecord)                 {}

// SetSignalSink installs a callback invoked for every emitted signal, in
// addition to the in-memory record.
func (b *Base) SetSignalSink(fn func(model.Signal)) { b.sink = fn }

// Signals returns every signal emitted so far, in emission order.
func (b *Base) Signals() []model.Signal { return b.signals }

// Emit records a signal on the current bar and forwards it to the sink.
func (b *Base) Emit(name string, action model.Action, f *feed.Feed, price float64, reason string) {
	sig := model.Signal{
		StrategyName: name,
		Action:       action,
		Symbol:       f.Name(),
		TS:           b.Time(0),
		Price:        price,
		Reason:       reason,
	}
	b.signals = append(b.signals, sig)
	if b.sink != nil {
		b.sink(sig)
	}
}

// ResetAll clears the signal record along with the line state.
func (b *Base) ResetAll() {
	b.Cell.ResetAll()
	b.signals = b.signals[:0]
}
