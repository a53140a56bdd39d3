package indicator

import (
	"fmt"

	"lineflow/internal/engine"
)

// EMA is the exponential moving average, seeded with a simple average of
// the first period values and smoothed with multiplier 2/(period+1).
type EMA struct {
	engine.Cell
	src    engine.Source
	period int
	alpha  float64
}

// NewEMA creates an EMA node over src with the given period.
func NewEMA(owner engine.Owner, src engine.Source, period int) *EMA {
	if period < 1 {
		panic(fmt.Sprintf("indicator: EMA period must be >= 1, got %d", period))
	}
	e := &EMA{src: src, period: period, alpha: 2.0 / float64(period+1)}
	e.Init(owner, e, "ema", []string{"ema"}, 0, src)
	e.AddMinPeriod(period)
	return e
}

func (e *EMA) Period() int { return e.period }

// NextStart seeds the first value with an SMA over the window.
func (e *EMA) NextStart() {
	in := e.src.Line()
	sum := 0.0
	for i := 0; i < e.period; i++ {
		sum += in.Get(i)
	}
	e.Line().Set(0, sum/float64(e.period))
}

func (e *EMA) Next() {
	prev := e.Line().Get(1)
	e.Line().Set(0, prev+e.alpha*(e.src.Line().Get(0)-prev))
}

// OnceStart writes the SMA seed at the first valid slot.
func (e *EMA) OnceStart(start, end int) {
	in, out := e.src.Line(), e.Line()
	for i := start; i < end; i++ {
		sum := 0.0
		for j := i - e.period + 1; j <= i; j++ {
			sum += in.GetAt(j)
		}
		out.SetAt(i, sum/float64(e.period))
	}
}

func (e *EMA) Once(start, end int) {
	in, out := e.src.Line(), e.Line()
	prev := out.GetAt(start - 1)
	for i := start; i < end; i++ {
		prev += e.alpha * (in.GetAt(i) - prev)
		out.SetAt(i, prev)
	}
}
