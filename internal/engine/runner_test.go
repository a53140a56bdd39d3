package engine

import (
	"context"
	"testing"
	"time"

	"lineflow/internal/feed"
	"lineflow/internal/model"
)

func tsBars(t0 time.Time, offsets []int, base float64) []model.Bar {
	bars := make([]model.Bar, len(offsets))
	for i, off := range offsets {
		c := base + float64(i)
		bars[i] = model.Bar{
			Exchange: "NSE", Symbol: "TEST",
			TS:   t0.Add(time.Duration(off) * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return bars
}

func TestRunnerMultiFeedUnionOrder(t *testing.T) {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	// A has bars at minutes 0,1,2; B at minutes 1,3. The run advances
	// through the sorted union {0,1,2,3}, committing shared timestamps
	// on the same step.
	fa := feed.New("NSE:A", feed.NewSliceSource(tsBars(t0, []int{0, 1, 2}, 100)))
	fb := feed.New("NSE:B", feed.NewSliceSource(tsBars(t0, []int{1, 3}, 200)))

	r := NewRunner()
	r.AddFeed(fa)
	r.AddFeed(fb)
	s := newStubStrategy(r, fa)

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if fa.Len() != 3 || fb.Len() != 2 {
		t.Errorf("feed lens = %d, %d; want 3, 2", fa.Len(), fb.Len())
	}
	if len(s.stamps) != 4 {
		t.Fatalf("strategy steps = %d, want 4 (union of distinct timestamps)", len(s.stamps))
	}
	wantTS := []time.Time{
		t0,
		t0.Add(1 * time.Minute),
		t0.Add(2 * time.Minute),
		t0.Add(3 * time.Minute),
	}
	for i, want := range wantTS {
		if got := feed.FloatToTime(s.stamps[i]); !got.Equal(want) {
			t.Errorf("step %d timestamp = %v, want %v", i, got, want)
		}
	}
	if s.starts != 1 || s.stops != 1 {
		t.Errorf("lifecycle: %d starts, %d stops", s.starts, s.stops)
	}
}

func TestRunnerSlowFeedHoldsLastBar(t *testing.T) {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	fa := feed.New("NSE:A", feed.NewSliceSource(tsBars(t0, []int{0, 1}, 100)))
	fb := feed.New("NSE:B", feed.NewSliceSource(tsBars(t0, []int{0}, 200)))

	r := NewRunner()
	r.AddFeed(fa)
	r.AddFeed(fb)
	so := newStreamOnly(r, fb)
	newStubStrategy(r, fa)

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// B never advanced past its only bar, so nodes clocked by it produce
	// exactly one value while the run takes two steps.
	if so.Len() != 1 {
		t.Errorf("slow-clocked node Len = %d, want 1", so.Len())
	}
	if got := so.Line().Get(0); got != 200 {
		t.Errorf("slow-clocked value = %v, want 200", got)
	}
}

func TestRunnerBatchMatchesStreaming(t *testing.T) {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	mk := func() (*Runner, *feed.Feed, *windowSum, *stubStrategy) {
		f := feed.New("NSE:TEST", feed.NewSliceSource(tsBars(t0, []int{0, 1, 2, 3, 4}, 1)))
		r := NewRunner()
		r.AddFeed(f)
		ws := newWindowSum(r, f, 3)
		s := newStubStrategy(r, f)
		s.watch = ws
		return r, f, ws, s
	}

	rs, _, wss, ss := mk()
	if err := rs.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	rb, _, wsb, sb := mk()
	if err := rb.RunBatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got, want := collect(wsb), collect(wss); !sameSeries(got, want) {
		t.Errorf("batch node output %v, streaming %v", got, want)
	}
	if !sameSeries(sb.seen, ss.seen) {
		t.Errorf("strategy-observed values: batch %v, streaming %v", sb.seen, ss.seen)
	}
	if !sameSeries(sb.stamps, ss.stamps) {
		t.Errorf("strategy timestamps: batch %v, streaming %v", sb.stamps, ss.stamps)
	}
}

func TestRunnerBatchFallsBackWhenSequential(t *testing.T) {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	f := feed.New("NSE:TEST", feed.NewSliceSource(tsBars(t0, []int{0, 1, 2}, 10)))
	r := NewRunner()
	r.AddFeed(f)
	so := newStreamOnly(r, f)
	s := newStubStrategy(r, f)
	s.watch = so

	if err := r.RunBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, want := collect(so), []float64{10, 11, 12}; !sameSeries(got, want) {
		t.Errorf("fallback output = %v, want %v", got, want)
	}
	if len(s.seen) != 3 {
		t.Errorf("strategy steps = %d, want 3", len(s.seen))
	}
}

func TestRunnerRequiresFeeds(t *testing.T) {
	r := NewRunner()
	if err := r.Run(context.Background()); err == nil {
		t.Error("run without feeds should fail")
	}
}

func TestRunnerDeliversOrdersAndTrades(t *testing.T) {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	f := feed.New("NSE:TEST", feed.NewSliceSource(tsBars(t0, []int{0}, 10)))
	r := NewRunner()
	r.AddFeed(f)
	s := newStubStrategy(r, f)

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.DeliverOrder(model.OrderRecord{ID: "X-1", Symbol: "TEST"})
	r.DeliverTrade(model.TradeRecord{ID: "X-1", Symbol: "TEST", PnL: 12.5})
	r.Stop()

	if len(s.orders) != 1 || s.orders[0].ID != "X-1" {
		t.Errorf("orders = %+v", s.orders)
	}
	if len(s.trades) != 1 || s.trades[0].PnL != 12.5 {
		t.Errorf("trades = %+v", s.trades)
	}
}
