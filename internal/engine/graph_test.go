package engine

import (
	"math"
	"testing"

	"lineflow/internal/feed"
	"lineflow/internal/model"
)

// windowSum is a minimal period-bearing node for resolver tests: the rolling
// sum over the last period input values.
type windowSum struct {
	Cell
	src    Source
	period int
}

func newWindowSum(owner Owner, src Source, period int) *windowSum {
	n := &windowSum{src: src, period: period}
	n.Init(owner, n, "winsum", []string{"sum"}, 0, src)
	n.AddMinPeriod(period)
	return n
}

func (n *windowSum) Next() {
	in := n.src.Line()
	sum := 0.0
	for i := 0; i < n.period; i++ {
		sum += in.Get(i)
	}
	n.Line().Set(0, sum)
}

func (n *windowSum) Once(start, end int) {
	in, out := n.src.Line(), n.Line()
	for i := start; i < end; i++ {
		sum := 0.0
		for j := i - n.period + 1; j <= i; j++ {
			sum += in.GetAt(j)
		}
		out.SetAt(i, sum)
	}
}

// streamOnly has no batch body, so it is implicitly force-sequential.
type streamOnly struct {
	Cell
	src Source
}

func newStreamOnly(owner Owner, src Source) *streamOnly {
	n := &streamOnly{src: src}
	n.Init(owner, n, "streamonly", []string{"out"}, 0, src)
	return n
}

func (n *streamOnly) Next() {
	n.Line().Set(0, n.src.Line().Get(0))
}

// flaky panics whenever its input equals the poison value.
type flaky struct {
	Cell
	src    Source
	poison float64
}

func newFlaky(owner Owner, src Source, poison float64) *flaky {
	n := &flaky{src: src, poison: poison}
	n.Init(owner, n, "flaky", []string{"out"}, 0, src)
	return n
}

func (n *flaky) Next() {
	v := n.src.Line().Get(0)
	if v == n.poison {
		panic("poison bar")
	}
	n.Line().Set(0, v)
}

func (n *flaky) Once(start, end int) {
	for i := start; i < end; i++ {
		v := n.src.Line().GetAt(i)
		if v == n.poison {
			panic("poison bar")
		}
		n.Line().SetAt(i, v)
	}
}

func TestResolveChainsMinPeriod(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(nil))
	g := NewGraph()
	ws1 := newWindowSum(g, f, 3)
	ws2 := newWindowSum(g, ws1, 3)

	if err := g.Resolve(); err != nil {
		t.Fatal(err)
	}
	if ws1.MinPeriod() != 3 {
		t.Errorf("ws1 MinPeriod = %d, want 3", ws1.MinPeriod())
	}
	// Chained windows compound: 3 bars of input, each needing 3 raw bars.
	if ws2.MinPeriod() != 5 {
		t.Errorf("ws2 MinPeriod = %d, want 5", ws2.MinPeriod())
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(nil))
	g := NewGraph()
	ws := newWindowSum(g, f, 4)

	for i := 0; i < 3; i++ {
		if err := g.Resolve(); err != nil {
			t.Fatal(err)
		}
	}
	if ws.MinPeriod() != 4 {
		t.Errorf("MinPeriod = %d after repeated resolves, want 4", ws.MinPeriod())
	}
}

func TestResolveFailsWithoutData(t *testing.T) {
	g := NewGraph()
	o := &streamOnly{}
	o.Init(g, o, "orphan", []string{"out"}, 0)

	if err := g.Resolve(); err == nil {
		t.Error("node with no data and no clock should fail resolution")
	}
}

func TestSequentialBubblesUp(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(nil))
	g := NewGraph()
	so := newStreamOnly(g, f)
	ws := newWindowSum(g, so, 2)

	if err := g.Resolve(); err != nil {
		t.Fatal(err)
	}
	if !so.Sequential() {
		t.Error("node without a batch body should be sequential")
	}
	if !ws.Sequential() {
		t.Error("sequential flag should bubble up through consumers")
	}
	if !g.Sequential() {
		t.Error("graph should report sequential")
	}
}

func TestBoundedBufferForcesSequential(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(nil))
	g := NewGraph()
	ws := newWindowSum(g, f, 3)
	ws.Lines().QBuffer(3, 0)

	if err := g.Resolve(); err != nil {
		t.Fatal(err)
	}
	if !ws.Sequential() {
		t.Error("bounded node should be sequential")
	}
}

func TestFaultAbsorption(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(closeBars(1, 2, 3)))
	g := NewGraph()
	fl := newFlaky(g, f, 2)

	stream(t, g, f)

	if fl.Faults() != 1 {
		t.Fatalf("Faults = %d, want 1", fl.Faults())
	}
	if g.Faults() != 1 {
		t.Errorf("graph Faults = %d, want 1", g.Faults())
	}
	got := collect(fl)
	want := []float64{1, math.NaN(), 3}
	if !sameSeries(got, want) {
		t.Errorf("output = %v, want %v; a fault must not abort the run", got, want)
	}
}

func TestStrategyGatesOnFeedConsumers(t *testing.T) {
	f := feed.New("NSE:TEST", feed.NewSliceSource(nil))
	g := NewGraph()
	newWindowSum(g, f, 7)
	s := newStubStrategy(g, f)

	if err := g.Resolve(); err != nil {
		t.Fatal(err)
	}
	// The strategy waits for the slowest consumer of its feeds.
	if s.MinPeriod() != 7 {
		t.Errorf("strategy MinPeriod = %d, want 7", s.MinPeriod())
	}
	if g.GateFor(f) != 7 {
		t.Errorf("GateFor = %d, want 7", g.GateFor(f))
	}
}

func TestResetAndReplayReproduces(t *testing.T) {
	src := feed.NewSliceSource(closeBars(5, 3, 8, 8, 1, 9, 4))
	f := feed.New("NSE:TEST", src)
	g := NewGraph()
	ws := newWindowSum(g, f, 3)
	d := NewDelay(g, ws, 2)

	stream(t, g, f)
	firstWS := collect(ws)
	firstD := collect(d)

	g.ResetAll()
	f.Reset()
	src.Rewind()
	stream(t, g, f)

	if got := collect(ws); !sameSeries(got, firstWS) {
		t.Errorf("replayed winsum = %v, first run = %v", got, firstWS)
	}
	if got := collect(d); !sameSeries(got, firstD) {
		t.Errorf("replayed delay = %v, first run = %v", got, firstD)
	}
	if got, want := f.Line().Len(), 7; got != want {
		t.Errorf("replayed feed len = %d, want %d", got, want)
	}
}

// stubStrategy is the minimal runner-clocked strategy for engine tests: it
// records the values of an optional watched node per bar.
type stubStrategy struct {
	Cell
	watch  Source
	seen   []float64
	stamps []float64

	starts, stops int
	orders        []model.OrderRecord
	trades        []model.TradeRecord
}

func newStubStrategy(owner Owner, f *feed.Feed) *stubStrategy {
	s := &stubStrategy{}
	s.Init(owner, s, "stub", []string{"datetime"}, 0, f)
	s.SetManualClock()
	return s
}

func (s *stubStrategy) Next() {
	s.stamps = append(s.stamps, s.Lines().At(0).Get(0))
	if s.watch != nil {
		s.seen = append(s.seen, s.watch.Line().Get(0))
	}
}

func (s *stubStrategy) Once(start, end int) {}

func (s *stubStrategy) Start() { s.starts++ }
func (s *stubStrategy) Stop()  { s.stops++ }

func (s *stubStrategy) NotifyData(feedIdx int, status model.DataStatus) {}
func (s *stubStrategy) NotifyCash(info model.CashInfo)                  {}
func (s *stubStrategy) NotifyOrder(o model.OrderRecord)                 { s.orders = append(s.orders, o) }
func (s *stubStrategy) NotifyTrade(tr model.TradeRecord)                { s.trades = append(s.trades, tr) }
