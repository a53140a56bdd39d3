package broker

import (
	"path/filepath"
	"testing"
	"time"

	"lineflow/internal/model"
)

func TestJournalRoundTrip(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "fills.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	ts := time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC)
	for i, action := range []model.Action{model.ActionBuy, model.ActionSell} {
		err := j.RecordFill(Fill{
			OrderID: "PAPER-" + string(rune('1'+i)),
			Signal: model.Signal{
				StrategyName: "sma_cross",
				Action:       action,
				Symbol:       "NSE:RELIANCE",
				Reason:       "test",
			},
			FillPrice: 1000 + float64(i),
			FillQty:   1,
			FilledAt:  ts.Add(time.Duration(i) * time.Minute),
			Slippage:  0.5,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rows, err := j.Fills(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Newest first.
	if rows[0].Action != "SELL" || rows[1].Action != "BUY" {
		t.Errorf("order = %s, %s", rows[0].Action, rows[1].Action)
	}
	if rows[0].Price != 1001 || rows[0].Slippage != 0.5 {
		t.Errorf("row = %+v", rows[0])
	}
	if rows[1].Strategy != "sma_cross" || rows[1].Symbol != "NSE:RELIANCE" {
		t.Errorf("row = %+v", rows[1])
	}
}

func TestJournalLimit(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "fills.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		if err := j.RecordFill(Fill{
			OrderID:   "PAPER-1",
			Signal:    model.Signal{StrategyName: "s", Action: model.ActionBuy, Symbol: "X"},
			FillPrice: 1,
			FillQty:   1,
			FilledAt:  time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := j.Fills(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
}
