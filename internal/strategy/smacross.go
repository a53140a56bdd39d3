package strategy

import (
	"log"

	"lineflow/internal/engine"
	"lineflow/internal/feed"
	"lineflow/internal/indicator"
	"lineflow/internal/model"
)

// SMACross is a simple SMA crossover strategy.
//
// Buy signal: fast SMA crosses above slow SMA (golden cross)
// Sell signal: fast SMA crosses below slow SMA (death cross)
//
// Optional RSI filter prevents buying when overbought (>70)
// or selling when oversold (<30).
type SMACross struct {
	Base

	data  *feed.Feed
	cross *indicator.CrossOver
	rsi   *indicator.RSI
}

// SMACrossConfig holds the strategy parameters. FastPeriod < SlowPeriod
// (e.g. 9 and 21); RSIPeriod of 0 disables the filter.
type SMACrossConfig struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
}

// NewSMACross creates the strategy and its indicator sub-graph over the
// feed's close line.
func NewSMACross(owner engine.Owner, data *feed.Feed, cfg SMACrossConfig) *SMACross {
	s := &SMACross{data: data}
	s.InitStrategy(owner, s, "sma_cross", data)

	fast := indicator.NewSMA(s, data, cfg.FastPeriod)
	slow := indicator.NewSMA(s, data, cfg.SlowPeriod)
	s.cross = indicator.NewCrossOver(s, fast, slow)
	if cfg.RSIPeriod > 0 {
		s.rsi = indicator.NewRSI(s, data, cfg.RSIPeriod)
	}
	return s
}

func (s *SMACross) Start() {
	log.Printf("[strategy] %s: started", s.Name())
}

func (s *SMACross) Stop() {
	log.Printf("[strategy] %s: stopped, %d signals emitted", s.Name(), len(s.Signals()))
}

func (s *SMACross) Next() {
	price := s.data.Line().Get(0)
	switch s.cross.Line().Get(0) {
	case 1:
		if s.rsi != nil && s.rsi.Line().Get(0) > 70 {
			log.Printf("[strategy] %s: golden cross filtered by RSI %.1f > 70", s.Name(), s.rsi.Line().Get(0))
			return
		}
		s.Emit(s.Name(), model.ActionBuy, s.data, price, "SMA golden cross (fast > slow)")
	case -1:
		if s.rsi != nil && s.rsi.Line().Get(0) < 30 {
			log.Printf("[strategy] %s: death cross filtered by RSI %.1f < 30", s.Name(), s.rsi.Line().Get(0))
			return
		}
		s.Emit(s.Name(), model.ActionSell, s.data, price, "SMA death cross (fast < slow)")
	}
}
