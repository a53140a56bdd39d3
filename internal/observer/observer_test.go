package observer

import (
	"context"
	"testing"
	"time"

	"lineflow/internal/engine"
	"lineflow/internal/feed"
	"lineflow/internal/model"
	"lineflow/internal/strategy"
)

func testBars(n int) []model.Bar {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{
			Exchange: "NSE", Symbol: "TEST",
			TS:   t0.Add(time.Duration(i) * time.Minute),
			Open: c, High: c + 2, Low: c - 1, Close: c, Volume: 1,
		}
	}
	return bars
}

func TestTimelineEchoesStrategyClock(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(testBars(4)))
	r := engine.NewRunner()
	r.AddFeed(f)
	s := strategy.NewSMACross(r, f, strategy.SMACrossConfig{FastPeriod: 2, SlowPeriod: 3})
	tl := NewTimeline(r, s)

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if tl.Len() != 4 {
		t.Fatalf("timeline Len = %d, want 4", tl.Len())
	}
	for i := 0; i < 4; i++ {
		if got, want := tl.Line().GetAt(i), s.Lines().At(0).GetAt(i); got != want {
			t.Errorf("timeline[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestTradeSpread(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(testBars(3)))
	r := engine.NewRunner()
	r.AddFeed(f)
	strategy.NewSMACross(r, f, strategy.SMACrossConfig{FastPeriod: 2, SlowPeriod: 3})
	sp := NewTradeSpread(r, f)

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// High-Low is 3 on every generated bar.
	for i := 0; i < sp.Len(); i++ {
		if got := sp.Line().GetAt(i); got != 3 {
			t.Errorf("spread[%d] = %v, want 3", i, got)
		}
	}
}
