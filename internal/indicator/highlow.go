package indicator

import (
	"fmt"
	"math"

	"lineflow/internal/engine"
)

// Highest is the rolling window maximum.
type Highest struct {
	engine.Cell
	src    engine.Source
	period int
}

// NewHighest creates a rolling-max node over src.
func NewHighest(owner engine.Owner, src engine.Source, period int) *Highest {
	if period < 1 {
		panic(fmt.Sprintf("indicator: Highest period must be >= 1, got %d", period))
	}
	h := &Highest{src: src, period: period}
	h.Init(owner, h, "highest", []string{"highest"}, 0, src)
	h.AddMinPeriod(period)
	return h
}

func (h *Highest) Next() {
	in := h.src.Line()
	best := math.Inf(-1)
	for i := 0; i < h.period; i++ {
		if v := in.Get(i); v > best {
			best = v
		}
	}
	h.Line().Set(0, best)
}

func (h *Highest) Once(start, end int) {
	in, out := h.src.Line(), h.Line()
	for i := start; i < end; i++ {
		best := math.Inf(-1)
		for j := i - h.period + 1; j <= i; j++ {
			if v := in.GetAt(j); v > best {
				best = v
			}
		}
		out.SetAt(i, best)
	}
}

// Lowest is the rolling window minimum.
type Lowest struct {
	engine.Cell
	src    engine.Source
	period int
}

// NewLowest creates a rolling-min node over src.
func NewLowest(owner engine.Owner, src engine.Source, period int) *Lowest {
	if period < 1 {
		panic(fmt.Sprintf("indicator: Lowest period must be >= 1, got %d", period))
	}
	l := &Lowest{src: src, period: period}
	l.Init(owner, l, "lowest", []string{"lowest"}, 0, src)
	l.AddMinPeriod(period)
	return l
}

func (l *Lowest) Next() {
	in := l.src.Line()
	best := math.Inf(1)
	for i := 0; i < l.period; i++ {
		if v := in.Get(i); v < best {
			best = v
		}
	}
	l.Line().Set(0, best)
}

func (l *Lowest) Once(start, end int) {
	in, out := l.src.Line(), l.Line()
	for i := start; i < end; i++ {
		best := math.Inf(1)
		for j := i - l.period + 1; j <= i; j++ {
			if v := in.GetAt(j); v < best {
				best = v
			}
		}
		out.SetAt(i, best)
	}
}
