package indicator

import (
	"fmt"
	"math"

	"lineflow/internal/engine"
)

// StdDev is the population standard deviation over a rolling window.
type StdDev struct {
	engine.Cell
	src    engine.Source
	period int
}

// NewStdDev creates a StdDev node over src with the given period.
func NewStdDev(owner engine.Owner, src engine.Source, period int) *StdDev {
	if period < 1 {
		panic(fmt.Sprintf("indicator: StdDev period must be >= 1, got %d", period))
	}
	s := &StdDev{src: src, period: period}
	s.Init(owner, s, "stddev", []string{"stddev"}, 0, src)
	s.AddMinPeriod(period)
	return s
}

func (s *StdDev) Period() int { return s.period }

func (s *StdDev) Next() {
	in := s.src.Line()
	var sum, sumsq float64
	for i := 0; i < s.period; i++ {
		v := in.Get(i)
		sum += v
		sumsq += v * v
	}
	s.Line().Set(0, stddev(sum, sumsq, s.period))
}

func (s *StdDev) Once(start, end int) {
	in, out := s.src.Line(), s.Line()
	for i := start; i < end; i++ {
		var sum, sumsq float64
		for j := i - s.period + 1; j <= i; j++ {
			v := in.GetAt(j)
			sum += v
			sumsq += v * v
		}
		out.SetAt(i, stddev(sum, sumsq, s.period))
	}
}

func stddev(sum, sumsq float64, period int) float64 {
	p := float64(period)
	mean := sum / p
	variance := sumsq/p - mean*mean
	if variance < 0 {
		// float noise on a constant window
		variance = 0
	}
	return math.Sqrt(variance)
}
