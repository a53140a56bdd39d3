package indicator

import (
	"fmt"

	"lineflow/internal/engine"
)

// MACD computes the moving average convergence/divergence: the difference
// of a fast and slow EMA, a signal EMA over that difference, and their
// histogram. The whole computation lives in owned sub-nodes whose outputs
// are spliced into this node's lines through bindings.
type MACD struct {
	engine.Cell
	diff   *engine.Binary
	signal *EMA
	histo  *engine.Binary
}

// NewMACD creates a MACD node over src. Typical periods are 12, 26, 9.
func NewMACD(owner engine.Owner, src engine.Source, fast, slow, signal int) *MACD {
	if fast < 1 || slow < 1 || signal < 1 {
		panic(fmt.Sprintf("indicator: MACD periods must be >= 1, got %d/%d/%d", fast, slow, signal))
	}
	if fast >= slow {
		panic(fmt.Sprintf("indicator: MACD fast period %d must be below slow %d", fast, slow))
	}
	m := &MACD{}
	m.Init(owner, m, "macd", []string{"macd", "signal", "hist"}, 0, src)

	emaFast := NewEMA(m, src, fast)
	emaSlow := NewEMA(m, src, slow)
	m.diff = engine.Sub(m, engine.Term(emaFast), engine.Term(emaSlow))
	m.signal = NewEMA(m, m.diff, signal)
	m.histo = engine.Sub(m, engine.Term(m.diff), engine.Term(m.signal))

	m.diff.Line().Bind(m.Lines().At(0))
	m.signal.Line().Bind(m.Lines().At(1))
	m.histo.Line().Bind(m.Lines().At(2))
	m.AddData(m.histo)
	return m
}

// Next is empty: all three lines arrive through bindings from the owned
// sub-graph.
func (m *MACD) Next() {}

// Once is empty for the same reason.
func (m *MACD) Once(start, end int) {}
