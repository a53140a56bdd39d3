package feed

import (
	"testing"
	"time"

	"lineflow/internal/model"
)

func minuteBar(minute int, o, h, l, c, v float64) model.Bar {
	return model.Bar{
		Symbol:   "NIFTY50",
		Exchange: "NSE",
		TS:       time.Date(2026, 2, 2, 9, 15+minute, 0, 0, time.UTC),
		Open:     o, High: h, Low: l, Close: c, Volume: v,
	}
}

func TestResampleBarsCompresses(t *testing.T) {
	bars := []model.Bar{
		minuteBar(0, 100, 105, 99, 104, 10),
		minuteBar(1, 104, 110, 103, 108, 20),
		minuteBar(2, 108, 109, 101, 102, 30),
		minuteBar(3, 102, 103, 100, 101, 40),
		minuteBar(4, 101, 106, 101, 105, 50),
		minuteBar(5, 105, 107, 104, 106, 60), // second 5m bucket
	}

	out := ResampleBars(bars, 5*time.Minute)
	if len(out) != 2 {
		t.Fatalf("got %d bars, want 2", len(out))
	}

	first := out[0]
	if first.Open != 100 || first.High != 110 || first.Low != 99 || first.Close != 105 {
		t.Errorf("first bar OHLC = %v/%v/%v/%v", first.Open, first.High, first.Low, first.Close)
	}
	if first.Volume != 150 {
		t.Errorf("first bar volume = %v, want 150 (summed)", first.Volume)
	}
	if !first.TS.Equal(time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)) {
		t.Errorf("first bar TS = %v", first.TS)
	}

	second := out[1]
	if second.Open != 105 || second.Close != 106 {
		t.Errorf("second bar O/C = %v/%v", second.Open, second.Close)
	}
}

func TestResamplerDropsLateBars(t *testing.T) {
	var out []model.Bar
	rs := NewResampler(5*time.Minute, func(b model.Bar) { out = append(out, b) })

	rs.Add(minuteBar(6, 100, 100, 100, 100, 1))
	rs.Add(minuteBar(2, 999, 999, 999, 999, 1)) // older bucket, dropped
	rs.Flush()

	if len(out) != 1 {
		t.Fatalf("got %d bars, want 1", len(out))
	}
	if out[0].High == 999 {
		t.Error("late bar leaked into the forming bucket")
	}
}

func TestAggregatorBuildsBars(t *testing.T) {
	var bars []model.Bar
	agg := NewAggregator("NSE", "RELIANCE", time.Minute, func(b model.Bar) { bars = append(bars, b) })

	base := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	agg.Tick(base.Add(1*time.Second), 100, 10)
	agg.Tick(base.Add(20*time.Second), 103, 25)
	agg.Tick(base.Add(40*time.Second), 98, 40)
	// First tick of the next minute closes the bar.
	agg.Tick(base.Add(61*time.Second), 99, 55)

	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	b := bars[0]
	if b.Open != 100 || b.High != 103 || b.Low != 98 || b.Close != 98 {
		t.Errorf("OHLC = %v/%v/%v/%v", b.Open, b.High, b.Low, b.Close)
	}
	if !b.TS.Equal(base) {
		t.Errorf("TS = %v, want %v", b.TS, base)
	}

	agg.Flush()
	if len(bars) != 2 {
		t.Fatalf("flush should emit the forming bar, got %d", len(bars))
	}
	if bars[1].Open != 99 {
		t.Errorf("second bar open = %v, want 99", bars[1].Open)
	}
}

func TestAggregatorLateTick(t *testing.T) {
	late := 0
	agg := NewAggregator("NSE", "RELIANCE", time.Minute, func(model.Bar) {})
	agg.OnLateTick = func() { late++ }

	base := time.Date(2026, 2, 2, 9, 16, 0, 0, time.UTC)
	agg.Tick(base, 100, 1)
	agg.Tick(base.Add(-2*time.Minute), 90, 1)

	if late != 1 {
		t.Errorf("late ticks = %d, want 1", late)
	}
}
