package indicator

import (
	"lineflow/internal/engine"
)

// CrossOver emits +1 when a crosses above b, -1 when a crosses below,
// and 0 otherwise. It needs one bar of history on both inputs.
type CrossOver struct {
	engine.Cell
	a, b engine.Source
}

func NewCrossOver(owner engine.Owner, a, b engine.Source) *CrossOver {
	c := &CrossOver{a: a, b: b}
	c.Init(owner, c, "crossover", []string{"cross"}, 0, a, b)
	c.IncMinPeriod(1)
	return c
}

func (c *CrossOver) Next() {
	la, lb := c.a.Line(), c.b.Line()
	c.Line().Set(0, crossValue(la.Get(1), lb.Get(1), la.Get(0), lb.Get(0)))
}

func (c *CrossOver) Once(start, end int) {
	la, lb := c.a.Line(), c.b.Line()
	out := c.Line()
	for i := start; i < end; i++ {
		out.SetAt(i, crossValue(la.GetAt(i-1), lb.GetAt(i-1), la.GetAt(i), lb.GetAt(i)))
	}
}

func crossValue(prevA, prevB, curA, curB float64) float64 {
	switch {
	case prevA <= prevB && curA > curB:
		return 1
	case prevA >= prevB && curA < curB:
		return -1
	default:
		return 0
	}
}
