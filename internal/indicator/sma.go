// Package indicator provides technical indicators built on the line engine.
//
// Every indicator is a LineIterator node: it declares its output schema,
// its period requirement, and both execution bodies — Next for streaming
// and Once for vectorized batch — which must produce identical values.
// Constructors panic on invalid parameters; wiring mistakes are
// configuration errors caught before the first tick.
package indicator

import (
	"fmt"

	"lineflow/internal/engine"
)

// SMA is the simple moving average over a rolling window.
type SMA struct {
	engine.Cell
	src    engine.Source
	period int
}

// NewSMA creates an SMA node over src with the given period.
func NewSMA(owner engine.Owner, src engine.Source, period int) *SMA {
	if period < 1 {
		panic(fmt.Sprintf("indicator: SMA period must be >= 1, got %d", period))
	}
	s := &SMA{src: src, period: period}
	s.Init(owner, s, "sma", []string{"sma"}, 0, src)
	s.AddMinPeriod(period)
	return s
}

func (s *SMA) Period() int { return s.period }

func (s *SMA) Next() {
	in := s.src.Line()
	sum := 0.0
	for i := 0; i < s.period; i++ {
		sum += in.Get(i)
	}
	s.Line().Set(0, sum/float64(s.period))
}

func (s *SMA) Once(start, end int) {
	in, out := s.src.Line(), s.Line()
	if start >= end {
		return
	}
	sum := 0.0
	for i := start - s.period + 1; i <= start; i++ {
		sum += in.GetAt(i)
	}
	out.SetAt(start, sum/float64(s.period))
	for i := start + 1; i < end; i++ {
		sum += in.GetAt(i) - in.GetAt(i-s.period)
		out.SetAt(i, sum/float64(s.period))
	}
}
