package indicator

import (
	"fmt"

	"lineflow/internal/engine"
)

// SMMA is the smoothed (Wilder) moving average: seeded with a simple
// average, then prev*(period-1)/period + value/period.
type SMMA struct {
	engine.Cell
	src    engine.Source
	period int
}

// NewSMMA creates an SMMA node over src with the given period.
func NewSMMA(owner engine.Owner, src engine.Source, period int) *SMMA {
	if period < 1 {
		panic(fmt.Sprintf("indicator: SMMA period must be >= 1, got %d", period))
	}
	s := &SMMA{src: src, period: period}
	s.Init(owner, s, "smma", []string{"smma"}, 0, src)
	s.AddMinPeriod(period)
	return s
}

func (s *SMMA) Period() int { return s.period }

func (s *SMMA) NextStart() {
	in := s.src.Line()
	sum := 0.0
	for i := 0; i < s.period; i++ {
		sum += in.Get(i)
	}
	s.Line().Set(0, sum/float64(s.period))
}

func (s *SMMA) Next() {
	p := float64(s.period)
	prev := s.Line().Get(1)
	s.Line().Set(0, (prev*(p-1)+s.src.Line().Get(0))/p)
}

func (s *SMMA) OnceStart(start, end int) {
	in, out := s.src.Line(), s.Line()
	for i := start; i < end; i++ {
		sum := 0.0
		for j := i - s.period + 1; j <= i; j++ {
			sum += in.GetAt(j)
		}
		out.SetAt(i, sum/float64(s.period))
	}
}

func (s *SMMA) Once(start, end int) {
	in, out := s.src.Line(), s.Line()
	p := float64(s.period)
	prev := out.GetAt(start - 1)
	for i := start; i < end; i++ {
		prev = (prev*(p-1) + in.GetAt(i)) / p
		out.SetAt(i, prev)
	}
}
