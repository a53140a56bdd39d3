package strategy

import (
	"context"
	"testing"
	"time"

	"lineflow/internal/engine"
	"lineflow/internal/feed"
	"lineflow/internal/model"
)

func closeBars(closes ...float64) []model.Bar {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Exchange: "NSE", Symbol: "RELIANCE",
			TS:   t0.Add(time.Duration(i) * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return bars
}

// crossSeries produces a clean golden cross then a death cross for
// SMA(2)/SMA(3): a rally in bars 4-6 and a slide from bar 7.
var crossSeries = []float64{10, 10, 10, 10, 14, 18, 22, 10, 6, 2}

func TestSMACrossSignals(t *testing.T) {
	f := feed.New("NSE:RELIANCE", feed.NewSliceSource(closeBars(crossSeries...)))
	r := engine.NewRunner()
	r.AddFeed(f)
	s := NewSMACross(r, f, SMACrossConfig{FastPeriod: 2, SlowPeriod: 3})

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	sigs := s.Signals()
	if len(sigs) != 2 {
		t.Fatalf("signals = %d (%+v), want 2", len(sigs), sigs)
	}
	if sigs[0].Action != model.ActionBuy {
		t.Errorf("first signal = %v, want BUY", sigs[0].Action)
	}
	if sigs[1].Action != model.ActionSell {
		t.Errorf("second signal = %v, want SELL", sigs[1].Action)
	}
	if sigs[0].Symbol != "NSE:RELIANCE" {
		t.Errorf("symbol = %q", sigs[0].Symbol)
	}
	if !sigs[0].TS.Before(sigs[1].TS) {
		t.Errorf("signal timestamps out of order: %v, %v", sigs[0].TS, sigs[1].TS)
	}
}

func TestSMACrossSignalSink(t *testing.T) {
	f := feed.New("NSE:RELIANCE", feed.NewSliceSource(closeBars(crossSeries...)))
	r := engine.NewRunner()
	r.AddFeed(f)
	s := NewSMACross(r, f, SMACrossConfig{FastPeriod: 2, SlowPeriod: 3})

	var sunk []model.Signal
	s.SetSignalSink(func(sig model.Signal) { sunk = append(sunk, sig) })

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sunk) != len(s.Signals()) {
		t.Errorf("sink received %d signals, record has %d", len(sunk), len(s.Signals()))
	}
}

func TestSMACrossBatchMatchesStreaming(t *testing.T) {
	run := func(batchMode bool) []model.Signal {
		f := feed.New("NSE:RELIANCE", feed.NewSliceSource(closeBars(crossSeries...)))
		r := engine.NewRunner()
		r.AddFeed(f)
		s := NewSMACross(r, f, SMACrossConfig{FastPeriod: 2, SlowPeriod: 3})
		var err error
		if batchMode {
			err = r.RunBatch(context.Background())
		} else {
			err = r.Run(context.Background())
		}
		if err != nil {
			t.Fatal(err)
		}
		return s.Signals()
	}

	streamed := run(false)
	batched := run(true)

	if len(streamed) != len(batched) {
		t.Fatalf("streaming emitted %d signals, batch %d", len(streamed), len(batched))
	}
	for i := range streamed {
		if streamed[i].Action != batched[i].Action || !streamed[i].TS.Equal(batched[i].TS) {
			t.Errorf("signal %d differs: %+v vs %+v", i, streamed[i], batched[i])
		}
		if streamed[i].Price != batched[i].Price {
			t.Errorf("signal %d price differs: %v vs %v", i, streamed[i].Price, batched[i].Price)
		}
	}
}

func TestSMACrossWarmupGating(t *testing.T) {
	f := feed.New("NSE:RELIANCE", feed.NewSliceSource(closeBars(crossSeries...)))
	r := engine.NewRunner()
	r.AddFeed(f)
	s := NewSMACross(r, f, SMACrossConfig{FastPeriod: 2, SlowPeriod: 3})

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()
	// CrossOver over SMA(3) needs 4 bars; the strategy gates on the
	// slowest consumer of its feed.
	if s.MinPeriod() != 4 {
		t.Errorf("strategy MinPeriod = %d, want 4", s.MinPeriod())
	}
}

func TestSMACrossRSIFilter(t *testing.T) {
	// A strongly rising series keeps RSI pinned at 100, so the golden
	// cross is filtered out and no buy is emitted.
	rising := []float64{10, 10, 10, 10, 14, 18, 22, 26, 30, 34}
	f := feed.New("NSE:RELIANCE", feed.NewSliceSource(closeBars(rising...)))
	r := engine.NewRunner()
	r.AddFeed(f)
	s := NewSMACross(r, f, SMACrossConfig{FastPeriod: 2, SlowPeriod: 3, RSIPeriod: 2})

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, sig := range s.Signals() {
		if sig.Action == model.ActionBuy {
			t.Errorf("overbought buy should have been filtered: %+v", sig)
		}
	}
}
