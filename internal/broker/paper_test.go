package broker

import (
	"math"
	"testing"
	"time"

	"lineflow/internal/model"
)

func sig(action model.Action, price float64) model.Signal {
	return model.Signal{
		StrategyName: "smacross",
		Action:       action,
		Symbol:       "RELIANCE",
		TS:           time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC),
		Price:        price,
		Reason:       "test",
	}
}

func TestPaperFillAppliesSlippage(t *testing.T) {
	p := NewPaper(PaperConfig{StartCash: 10000, OrderQty: 1, SlippageBps: 10})

	var order model.OrderRecord
	p.OnOrder = func(o model.OrderRecord) { order = o }

	p.HandleSignal(sig(model.ActionBuy, 1000))

	fills := p.Fills()
	if len(fills) != 1 {
		t.Fatalf("got %d fills, want 1", len(fills))
	}
	// 10 bps of 1000 = 1.0, buys fill higher.
	if math.Abs(fills[0].FillPrice-1001) > 1e-9 {
		t.Errorf("fill price = %v, want 1001", fills[0].FillPrice)
	}
	if order.Status != "FILLED" || order.Size != 1 {
		t.Errorf("order record = %+v", order)
	}

	cash := p.Cash()
	if math.Abs(cash.Cash-(10000-1001)) > 1e-9 {
		t.Errorf("cash = %v, want 8999", cash.Cash)
	}
	// Book is marked at the fill price, so value round-trips to start cash.
	if math.Abs(cash.Value-10000) > 1e-9 {
		t.Errorf("value = %v, want 10000", cash.Value)
	}
}

func TestPaperRoundTripNotifiesTrade(t *testing.T) {
	p := NewPaper(PaperConfig{StartCash: 10000, OrderQty: 2, SlippageBps: 0})

	var trades []model.TradeRecord
	p.OnTrade = func(tr model.TradeRecord) { trades = append(trades, tr) }

	p.HandleSignal(sig(model.ActionBuy, 100))
	p.HandleSignal(sig(model.ActionSell, 110))

	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].PnL != 20 {
		t.Errorf("trade PnL = %v, want 20", trades[0].PnL)
	}
	if p.Book().RealizedPnL() != 20 {
		t.Errorf("realized = %v, want 20", p.Book().RealizedPnL())
	}
}

func TestPaperExitFlattens(t *testing.T) {
	p := NewPaper(PaperConfig{StartCash: 10000, OrderQty: 3, SlippageBps: 0})

	p.HandleSignal(sig(model.ActionBuy, 100))
	p.HandleSignal(sig(model.ActionExit, 105))

	if _, open := p.Book().Position("RELIANCE"); open {
		t.Error("exit should flatten the position")
	}
	if got := p.Book().RealizedPnL(); got != 15 {
		t.Errorf("realized = %v, want 15", got)
	}

	// Exit with no open position is a no-op.
	before := len(p.Fills())
	p.HandleSignal(sig(model.ActionExit, 105))
	if len(p.Fills()) != before {
		t.Error("exit without a position should not fill")
	}
}
