package broker

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)

func TestBookOpenAndScale(t *testing.T) {
	b := NewBook()

	delta, closed := b.ApplyFill("RELIANCE", 10, 100, t0)
	if delta != -1000 {
		t.Errorf("cash delta = %v, want -1000", delta)
	}
	if closed != nil {
		t.Error("opening fill should not close a trade")
	}

	// Scale in at a higher price: avg blends to 110.
	b.ApplyFill("RELIANCE", 10, 120, t0.Add(time.Minute))
	pos, ok := b.Position("RELIANCE")
	if !ok {
		t.Fatal("position missing")
	}
	if pos.Qty != 20 || pos.AvgPrice != 110 {
		t.Errorf("qty=%v avg=%v, want 20, 110", pos.Qty, pos.AvgPrice)
	}
}

func TestBookCloseRealizesPnL(t *testing.T) {
	b := NewBook()
	b.ApplyFill("TCS", 5, 100, t0)
	delta, closed := b.ApplyFill("TCS", -5, 110, t0.Add(time.Hour))

	if delta != 550 {
		t.Errorf("cash delta = %v, want 550", delta)
	}
	if closed == nil {
		t.Fatal("closing fill should produce a trade record")
	}
	if closed.PnL != 50 {
		t.Errorf("trade PnL = %v, want 50", closed.PnL)
	}
	if closed.Opened != t0 {
		t.Errorf("trade opened = %v, want %v", closed.Opened, t0)
	}
	if _, ok := b.Position("TCS"); ok {
		t.Error("position should be gone after close")
	}
	if b.RealizedPnL() != 50 {
		t.Errorf("book realized = %v, want 50", b.RealizedPnL())
	}
}

func TestBookFlipThroughZero(t *testing.T) {
	b := NewBook()
	b.ApplyFill("INFY", 5, 100, t0)
	// Sell 8: closes the 5 long at +50, opens a 3 short at 110.
	_, closed := b.ApplyFill("INFY", -8, 110, t0.Add(time.Minute))

	if closed == nil || closed.PnL != 50 {
		t.Fatalf("flip should close the long with PnL 50, got %+v", closed)
	}
	pos, ok := b.Position("INFY")
	if !ok {
		t.Fatal("flip should leave a short open")
	}
	if pos.Qty != -3 || pos.AvgPrice != 110 {
		t.Errorf("qty=%v avg=%v, want -3, 110", pos.Qty, pos.AvgPrice)
	}
}

func TestBookShortPnL(t *testing.T) {
	b := NewBook()
	b.ApplyFill("SBIN", -10, 200, t0)
	b.MarkPrice("SBIN", 190)
	if got := b.UnrealizedPnL(); got != 100 {
		t.Errorf("short unrealized = %v, want 100", got)
	}

	_, closed := b.ApplyFill("SBIN", 10, 190, t0.Add(time.Hour))
	if closed == nil || closed.PnL != 100 {
		t.Fatalf("covering the short should realize 100, got %+v", closed)
	}
}

func TestBookMarketValue(t *testing.T) {
	b := NewBook()
	b.ApplyFill("A", 2, 10, t0)
	b.ApplyFill("B", -1, 50, t0)
	b.MarkPrice("A", 12)
	if got := b.MarketValue(); math.Abs(got-(24-50)) > 1e-9 {
		t.Errorf("market value = %v, want -26", got)
	}
}
