package indicator

import (
	"fmt"

	"lineflow/internal/engine"
)

// RSI is Wilder's relative strength index. The running average gain and
// loss are kept on scratch lines (extras of the bundle), so rewinding and
// replaying the node reproduces identical values — no hidden struct state.
type RSI struct {
	engine.Cell
	src    engine.Source
	period int
}

// scratch line slots after the declared output
const (
	rsiAvgGain = 1
	rsiAvgLoss = 2
)

// NewRSI creates an RSI node over src with the given period.
func NewRSI(owner engine.Owner, src engine.Source, period int) *RSI {
	if period < 1 {
		panic(fmt.Sprintf("indicator: RSI period must be >= 1, got %d", period))
	}
	r := &RSI{src: src, period: period}
	r.Init(owner, r, "rsi", []string{"rsi"}, 2, src)
	// One bar for the first diff plus period bars for the seed average.
	r.AddMinPeriod(period + 1)
	return r
}

func (r *RSI) Period() int { return r.period }

// NextStart seeds the averages over the first period diffs.
func (r *RSI) NextStart() {
	in := r.src.Line()
	var gains, losses float64
	for i := 0; i < r.period; i++ {
		d := in.Get(i) - in.Get(i+1)
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	r.write(gains/float64(r.period), losses/float64(r.period))
}

func (r *RSI) Next() {
	in := r.src.Line()
	d := in.Get(0) - in.Get(1)
	var gain, loss float64
	if d > 0 {
		gain = d
	} else {
		loss = -d
	}
	p := float64(r.period)
	ag := (r.Lines().At(rsiAvgGain).Get(1)*(p-1) + gain) / p
	al := (r.Lines().At(rsiAvgLoss).Get(1)*(p-1) + loss) / p
	r.write(ag, al)
}

func (r *RSI) write(ag, al float64) {
	r.Lines().At(rsiAvgGain).Set(0, ag)
	r.Lines().At(rsiAvgLoss).Set(0, al)
	r.Line().Set(0, rsiValue(ag, al))
}

func (r *RSI) OnceStart(start, end int) {
	in := r.src.Line()
	for i := start; i < end; i++ {
		var gains, losses float64
		for j := i - r.period + 1; j <= i; j++ {
			d := in.GetAt(j) - in.GetAt(j-1)
			if d > 0 {
				gains += d
			} else {
				losses -= d
			}
		}
		r.writeAt(i, gains/float64(r.period), losses/float64(r.period))
	}
}

func (r *RSI) Once(start, end int) {
	in := r.src.Line()
	p := float64(r.period)
	ag := r.Lines().At(rsiAvgGain).GetAt(start - 1)
	al := r.Lines().At(rsiAvgLoss).GetAt(start - 1)
	for i := start; i < end; i++ {
		d := in.GetAt(i) - in.GetAt(i-1)
		var gain, loss float64
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		ag = (ag*(p-1) + gain) / p
		al = (al*(p-1) + loss) / p
		r.writeAt(i, ag, al)
	}
}

func (r *RSI) writeAt(i int, ag, al float64) {
	r.Lines().At(rsiAvgGain).SetAt(i, ag)
	r.Lines().At(rsiAvgLoss).SetAt(i, al)
	r.Line().SetAt(i, rsiValue(ag, al))
}

func rsiValue(ag, al float64) float64 {
	if al == 0 {
		if ag == 0 {
			return 50
		}
		return 100
	}
	rs := ag / al
	return 100 - 100/(1+rs)
}
