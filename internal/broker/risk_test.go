package broker

import (
	"testing"
	"time"
)

func riskBook(t *testing.T, symbols ...string) *Book {
	t.Helper()
	b := NewBook()
	ts := time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC)
	for _, s := range symbols {
		b.ApplyFill(s, 1, 100, ts)
	}
	return b
}

func TestRiskPositionSizeLimit(t *testing.T) {
	b := riskBook(t, "A")
	rm := NewRiskManager(RiskLimits{MaxPositionSize: 5, MaxDailyLoss: 1000, MaxOpenPositions: 10, MaxDrawdownPct: 50}, b, 10000)

	if ok, _ := rm.CanTrade("A", 4); !ok {
		t.Error("within position limit should pass")
	}
	ok, reason := rm.CanTrade("A", 5)
	if ok {
		t.Error("exceeding position limit should fail")
	}
	if reason == "" {
		t.Error("rejection should name the limit")
	}
}

func TestRiskOpenPositionsLimit(t *testing.T) {
	b := riskBook(t, "A", "B")
	rm := NewRiskManager(RiskLimits{MaxPositionSize: 100, MaxDailyLoss: 1000, MaxOpenPositions: 2, MaxDrawdownPct: 50}, b, 10000)

	// Adding to an existing position is fine, a third instrument is not.
	if ok, _ := rm.CanTrade("A", 1); !ok {
		t.Error("scaling an open position should pass")
	}
	if ok, _ := rm.CanTrade("C", 1); ok {
		t.Error("opening beyond the position count should fail")
	}
}

func TestRiskDailyLossHalts(t *testing.T) {
	b := riskBook(t)
	rm := NewRiskManager(RiskLimits{MaxPositionSize: 100, MaxDailyLoss: 500, MaxOpenPositions: 5, MaxDrawdownPct: 90}, b, 100000)

	rm.RecordPnL(-600)
	if ok, reason := rm.CanTrade("A", 1); ok {
		t.Error("past the daily loss limit trading should halt")
	} else if reason != "max daily loss reached" {
		t.Errorf("reason = %q", reason)
	}

	rm.ResetDaily()
	if ok, _ := rm.CanTrade("A", 1); !ok {
		t.Error("ResetDaily should re-enable trading")
	}
}

func TestRiskDrawdownHalts(t *testing.T) {
	b := riskBook(t)
	rm := NewRiskManager(RiskLimits{MaxPositionSize: 100, MaxDailyLoss: 1e9, MaxOpenPositions: 5, MaxDrawdownPct: 5}, b, 10000)

	// 6% drawdown from peak.
	rm.RecordPnL(-600)
	if ok, reason := rm.CanTrade("A", 1); ok {
		t.Error("drawdown past the limit should halt trading")
	} else if reason != "max drawdown exceeded" {
		t.Errorf("reason = %q", reason)
	}

	st := rm.Status()
	if dd := st["drawdown_pct"].(float64); dd < 5.9 || dd > 6.1 {
		t.Errorf("drawdown_pct = %v, want ~6", dd)
	}
}
