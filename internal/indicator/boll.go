package indicator

import (
	"fmt"

	"lineflow/internal/engine"
)

// Bollinger computes Bollinger bands: an SMA middle band with top/bottom
// offset by devfactor standard deviations. The middle and deviation come
// from owned sub-nodes, stepped before this node each bar.
type Bollinger struct {
	engine.Cell
	mid       *SMA
	dev       *StdDev
	devfactor float64
}

// NewBollinger creates a Bollinger node over src.
func NewBollinger(owner engine.Owner, src engine.Source, period int, devfactor float64) *Bollinger {
	if period < 1 {
		panic(fmt.Sprintf("indicator: Bollinger period must be >= 1, got %d", period))
	}
	b := &Bollinger{devfactor: devfactor}
	b.Init(owner, b, "boll", []string{"mid", "top", "bot"}, 0, src)
	b.mid = NewSMA(b, src, period)
	b.dev = NewStdDev(b, src, period)
	b.AddData(b.mid)
	b.AddData(b.dev)
	return b
}

func (b *Bollinger) Next() {
	mid := b.mid.Line().Get(0)
	off := b.devfactor * b.dev.Line().Get(0)
	b.Lines().At(0).Set(0, mid)
	b.Lines().At(1).Set(0, mid+off)
	b.Lines().At(2).Set(0, mid-off)
}

func (b *Bollinger) Once(start, end int) {
	midIn, devIn := b.mid.Line(), b.dev.Line()
	midOut, topOut, botOut := b.Lines().At(0), b.Lines().At(1), b.Lines().At(2)
	for i := start; i < end; i++ {
		mid := midIn.GetAt(i)
		off := b.devfactor * devIn.GetAt(i)
		midOut.SetAt(i, mid)
		topOut.SetAt(i, mid+off)
		botOut.SetAt(i, mid-off)
	}
}
