package broker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"lineflow/internal/model"
)

// Fill is a simulated order fill.
type Fill struct {
	OrderID   string       `json:"order_id"`
	Signal    model.Signal `json:"signal"`
	FillPrice float64      `json:"fill_price"`
	FillQty   float64      `json:"fill_qty"`
	FilledAt  time.Time    `json:"filled_at"`
	Slippage  float64      `json:"slippage"`
}

// PaperConfig controls the fill simulation.
type PaperConfig struct {
	StartCash   float64 // opening cash balance
	OrderQty    float64 // fixed quantity per signal
	SlippageBps float64 // simulated slippage in basis points
}

// DefaultPaperConfig returns the simulation defaults: 1,000,000 cash,
// 1 unit per order, 5 bps slippage.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{StartCash: 1_000_000, OrderQty: 1, SlippageBps: 5}
}

// PaperBroker fills strategy signals without touching a real venue.
// It implements the runner's CashProvider so strategies see the
// simulated balance through their cash notifications.
type PaperBroker struct {
	cfg  PaperConfig
	book *Book

	mu       sync.RWMutex
	cash     float64
	fills    []Fill
	orderSeq int64

	journal *Journal
	risk    *RiskManager

	// delivered synchronously after each fill, between ticks
	OnOrder func(model.OrderRecord)
	OnTrade func(model.TradeRecord)
}

// NewPaper creates a paper broker with the given simulation config.
func NewPaper(cfg PaperConfig) *PaperBroker {
	if cfg.OrderQty <= 0 {
		cfg.OrderQty = 1
	}
	return &PaperBroker{
		cfg:  cfg,
		book: NewBook(),
		cash: cfg.StartCash,
	}
}

// SetJournal attaches a persistent fill journal.
func (p *PaperBroker) SetJournal(j *Journal) { p.journal = j }

// SetRisk attaches a pre-trade risk manager. Fills that violate a
// limit are rejected instead of applied.
func (p *PaperBroker) SetRisk(rm *RiskManager) { p.risk = rm }

// Book exposes the position book for reporting.
func (p *PaperBroker) Book() *Book { return p.book }

// Cash implements engine.CashProvider.
func (p *PaperBroker) Cash() model.CashInfo {
	p.mu.RLock()
	cash := p.cash
	p.mu.RUnlock()
	return model.CashInfo{Cash: cash, Value: cash + p.book.MarketValue()}
}

// Fills returns a snapshot of all fills so far.
func (p *PaperBroker) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// HandleSignal fills one strategy signal. Wire it as the strategy's
// signal sink; it runs synchronously on the engine tick.
func (p *PaperBroker) HandleSignal(sig model.Signal) {
	qty := p.cfg.OrderQty
	switch sig.Action {
	case model.ActionSell:
		qty = -qty
	case model.ActionExit:
		pos, ok := p.book.Position(sig.Symbol)
		if !ok {
			return
		}
		qty = -pos.Qty
	}

	if p.risk != nil {
		if ok, why := p.risk.CanTrade(sig.Symbol, qty); !ok {
			log.Printf("[paper] rejected %s %s qty=%.2f: %s", sig.Action, sig.Symbol, qty, why)
			if p.OnOrder != nil {
				p.OnOrder(model.OrderRecord{
					Symbol: sig.Symbol,
					Action: sig.Action,
					Price:  sig.Price,
					Size:   qty,
					Status: "REJECTED",
					TS:     sig.TS,
				})
			}
			return
		}
	}

	fillPrice := sig.Price
	slippage := 0.0
	if fillPrice > 0 && p.cfg.SlippageBps > 0 {
		slippage = fillPrice * p.cfg.SlippageBps / 10000
		if qty > 0 {
			fillPrice += slippage // buy higher
		} else {
			fillPrice -= slippage // sell lower
		}
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.mu.Unlock()

	cashDelta, closed := p.book.ApplyFill(sig.Symbol, qty, fillPrice, sig.TS)

	fill := Fill{
		OrderID:   orderID,
		Signal:    sig,
		FillPrice: fillPrice,
		FillQty:   qty,
		FilledAt:  sig.TS,
		Slippage:  slippage,
	}

	p.mu.Lock()
	p.cash += cashDelta
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s qty=%.2f price=%.2f (slip=%.4f) order=%s reason=%s",
		sig.Action, sig.StrategyName, sig.Symbol, qty, fillPrice, slippage, orderID, sig.Reason)

	if p.journal != nil {
		if err := p.journal.RecordFill(fill); err != nil {
			log.Printf("[paper] journal write failed: %v", err)
		}
	}

	if p.OnOrder != nil {
		p.OnOrder(model.OrderRecord{
			ID:     orderID,
			Symbol: sig.Symbol,
			Action: sig.Action,
			Price:  fillPrice,
			Size:   qty,
			Status: "FILLED",
			TS:     sig.TS,
		})
	}
	if closed != nil {
		closed.ID = orderID
		if p.risk != nil {
			p.risk.RecordPnL(closed.PnL)
		}
		if p.OnTrade != nil {
			p.OnTrade(*closed)
		}
	}
}

// Mark updates the book's last price for a symbol from the latest bar.
func (p *PaperBroker) Mark(symbol string, price float64) {
	p.book.MarkPrice(symbol, price)
}
