package engine

import (
	"log"

	"lineflow/internal/line"
)

// Cell is the embeddable LineIterator base. It owns the node's output
// bundle, its upstream data references, and its owned sub-nodes, and it
// implements the full streaming and batch protocols around the concrete
// type's Next/Once bodies.
//
// Construction is explicit: the concrete constructor calls Init with its
// owner (which registers the node) and the sources it reads. No call-stack
// introspection, no retroactive patching — clock and minperiod are resolved
// exactly once at graph finalization.
type Cell struct {
	name     string
	lines    *line.Bundle
	datas    []Source
	children []Node

	clock       ClockRef
	manualClock bool // runner forwards this node (strategies)
	feedGated   bool // minperiod gates on every consumer of its feeds

	lag       int // warm-up bars introduced by this node on top of its inputs
	declared  int // absolute minperiod floor, independent of inputs
	minperiod int // resolved value, valid after the resolve pass
	resolved  bool

	seq    bool // force-sequential: this node cannot be vectorized
	faults int

	impl       Runnable
	oncer      Oncer
	preNexter  PreNexter
	nextStart  NextStarter
	preOncer   PreOncer
	onceStart  OnceStarter
	notifyTick func() // runner hook, delivered after dispatch
}

// Init wires the cell: registers the node with its owner, builds the output
// bundle from the declared schema, records the upstream sources and caches
// the concrete type's protocol hooks. A node without an Once body is
// implicitly force-sequential.
func (c *Cell) Init(owner Owner, impl Node, name string, schema []string, extra int, datas ...Source) {
	c.name = name
	c.lines = line.NewBundle(line.Derived, schema, extra)
	c.datas = datas
	c.minperiod = 1
	c.impl = impl
	c.oncer, _ = impl.(Oncer)
	c.preNexter, _ = impl.(PreNexter)
	c.nextStart, _ = impl.(NextStarter)
	c.preOncer, _ = impl.(PreOncer)
	c.onceStart, _ = impl.(OnceStarter)
	c.seq = c.oncer == nil
	if owner != nil {
		owner.Register(impl)
	}
}

// Register adds a sub-node created within this node's scope. Children are
// stepped before their owner, in creation order.
func (c *Cell) Register(n Node) {
	c.children = append(c.children, n)
}

// AddData appends an upstream source after Init, for composite nodes whose
// internal sub-graph feeds their outputs. Must happen before resolution.
func (c *Cell) AddData(src Source) {
	c.datas = append(c.datas, src)
}

// AddMinPeriod declares a period requirement: the node needs period bars of
// its input before its output is valid, adding period-1 bars of lag.
func (c *Cell) AddMinPeriod(period int) {
	c.IncMinPeriod(period - 1)
}

// IncMinPeriod adds bars of internally introduced lag directly.
func (c *Cell) IncMinPeriod(bars int) {
	if bars > 0 {
		c.lag += bars
	}
}

// SetMinPeriod declares an absolute minperiod floor.
func (c *Cell) SetMinPeriod(p int) {
	if p > c.declared {
		c.declared = p
	}
}

// ForceSequential marks the node as not vectorizable. The flag bubbles up
// through every ancestor during resolution and disables batch mode for the
// whole run.
func (c *Cell) ForceSequential() { c.seq = true }

// SetManualClock detaches the node from data-driven forwarding; the runner
// forwards its lines explicitly on any feed growth, and the node's warm-up
// gates on every consumer of its feeds (strategies).
func (c *Cell) SetManualClock() {
	c.manualClock = true
	c.feedGated = true
}

// SetNotify installs the runner's post-dispatch hook.
func (c *Cell) SetNotify(fn func()) { c.notifyTick = fn }

// Name returns the node name used in logs and snapshot tables.
func (c *Cell) Name() string { return c.name }

// Lines returns the node's output bundle.
func (c *Cell) Lines() *line.Bundle { return c.lines }

// Line returns the primary output buffer.
func (c *Cell) Line() *line.Buffer { return c.lines.At(0) }

// Len returns the number of bars produced.
func (c *Cell) Len() int { return c.lines.Len() }

// Datas returns the upstream sources.
func (c *Cell) Datas() []Source { return c.datas }

// Children returns the owned sub-nodes.
func (c *Cell) Children() []Node { return c.children }

// Clock returns the resolved driving clock.
func (c *Cell) Clock() ClockRef { return c.clock }

// MinPeriod returns the resolved warm-up length. Before resolution it
// returns the node's own contribution only.
func (c *Cell) MinPeriod() int { return c.minperiod }

// Sequential reports whether this node or any descendant is
// force-sequential. Valid after resolution.
func (c *Cell) Sequential() bool { return c.seq }

// Faults returns the number of computation faults absorbed at this node.
func (c *Cell) Faults() int { return c.faults }

// QBuffer switches the node's bundle to bounded ring storage sized by its
// resolved minperiod plus slack. Irreversible; forces streaming execution.
func (c *Cell) QBuffer(slack int) {
	c.lines.QBuffer(c.minperiod, slack)
	c.seq = true
}

// ── streaming track ──

// Tick performs one streaming step. Owned sub-nodes are stepped first in
// dependency (creation) order; the node forwards its lines when its clock
// produced a new bar and then dispatches by warm-up state.
func (c *Cell) Tick() {
	if !c.manualClock && !c.clock.Zero() {
		if c.clock.Len() > c.lines.Len() {
			c.lines.Forward(c.lines.At(0).Sentinel(), 1)
		} else {
			// Clock did not advance: slower feed, nothing to do.
			for _, ch := range c.children {
				ch.Tick()
			}
			return
		}
	}
	for _, ch := range c.children {
		ch.Tick()
	}
	c.dispatch()
	if c.notifyTick != nil {
		c.notifyTick()
	}
}

// dispatch routes one bar to prenext/nextstart/next by warm-up state, with
// fault absorption at the node boundary.
func (c *Cell) dispatch() {
	l := c.lines.Len()
	switch {
	case l < c.minperiod:
		if c.preNexter != nil {
			c.safeCall(c.preNexter.PreNext)
		}
	case l == c.minperiod:
		if c.nextStart != nil {
			c.safeCall(c.nextStart.NextStart)
		} else {
			c.safeCall(c.impl.Next)
		}
	default:
		c.safeCall(c.impl.Next)
	}
}

// safeCall runs one node body, forcing outputs to the sentinel when the
// body panics so one bad bar cannot abort the run.
func (c *Cell) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.faults++
			for i := 0; i < c.lines.FullSize(); i++ {
				b := c.lines.At(i)
				b.Set(0, b.Sentinel())
			}
			log.Printf("[engine] %s: fault at bar %d absorbed: %v", c.name, c.lines.Len(), r)
		}
	}()
	fn()
}

// ── batch track ──

// RunOnce performs batch evaluation over the node's full clock range:
// children first, then preonce over the warm-up range, oncestart exactly
// once, and once vectorized over the remainder. Bindings are synced in bulk
// afterwards.
func (c *Cell) RunOnce() {
	if !c.clock.Zero() {
		if need := c.clock.BufLen(); need > c.lines.BufLen() {
			c.lines.Forward(c.lines.At(0).Sentinel(), need-c.lines.BufLen())
		}
	}
	for _, ch := range c.children {
		ch.RunOnce()
	}
	end := c.lines.BufLen()
	mp := c.minperiod
	c.safeOnce(func() {
		if c.preOncer != nil {
			pre := mp - 1
			if pre > end {
				pre = end
			}
			c.preOncer.PreOnce(0, pre)
		}
		if end < mp {
			return
		}
		if c.onceStart != nil {
			c.onceStart.OnceStart(mp-1, mp)
		} else if c.oncer != nil {
			c.oncer.Once(mp-1, mp)
		}
		if c.oncer != nil {
			c.oncer.Once(mp, end)
		}
	})
	c.lines.SyncBindings(0, end)
}

// safeOnce absorbs a fault in a batch body, leaving the outputs at their
// sentinel fill.
func (c *Cell) safeOnce(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.faults++
			log.Printf("[engine] %s: batch fault absorbed: %v", c.name, r)
		}
	}()
	fn()
}

// Replay advances cursors over slots already computed by RunOnce without
// recomputing. With dispatch set, the streaming dispatch also runs, which
// is how strategies emit per-bar side effects in batch mode.
func (c *Cell) Replay(dispatch bool) {
	for _, ch := range c.children {
		ch.Replay(false)
	}
	if !c.manualClock && !c.clock.Zero() {
		if c.clock.Len() > c.lines.Len() {
			c.lines.Advance(1)
		} else if !dispatch {
			return
		}
	}
	if dispatch {
		c.dispatch()
		if c.notifyTick != nil {
			c.notifyTick()
		}
	}
}

// HomeAll rewinds this node and every owned sub-node keeping stored values.
func (c *Cell) HomeAll() {
	for _, ch := range c.children {
		ch.HomeAll()
	}
	c.lines.Home()
}

// ResetAll rewinds this node and every owned sub-node to empty, so the same
// graph can re-run over fresh data.
func (c *Cell) ResetAll() {
	for _, ch := range c.children {
		ch.ResetAll()
	}
	c.lines.Reset()
	c.faults = 0
}

// ── resolution ──

// resolve computes the node's clock and minperiod exactly once, bottom-up:
// children first, then minperiod = max over direct inputs plus this node's
// own lag, floored by any declared absolute minperiod. The sequential flag
// and bounded storage bubble up.
func (c *Cell) resolve(r *resolver) {
	if c.resolved {
		return
	}
	c.resolved = true
	for _, ch := range c.children {
		ch.resolve(r)
		if ch.Sequential() {
			c.seq = true
		}
	}
	base := 1
	for _, d := range c.datas {
		if n, ok := d.(Node); ok {
			n.resolve(r)
			if n.Sequential() {
				c.seq = true
			}
		}
		if mp := d.MinPeriod(); mp > base {
			base = mp
		}
	}
	if c.lines.Bounded() {
		c.seq = true
	}
	c.minperiod = base + c.lag
	if c.declared > c.minperiod {
		c.minperiod = c.declared
	}
	if c.clock.Zero() && !c.manualClock {
		if len(c.datas) == 0 {
			r.fail(c.name, "node has no data and no clock")
			return
		}
		c.clock = clockOf(c.datas[0])
	}
	if c.feedGated {
		// Strategy-level gating: take the maximum minperiod any consumer
		// imposes on each of this node's feeds.
		for _, d := range c.datas {
			if g := r.gate(d); g > c.minperiod {
				c.minperiod = g
			}
		}
	}
	// Attribute this node's demand to the raw feed lines it ultimately
	// reads, for strategy-level gating.
	for _, d := range c.datas {
		r.attribute(d, c.minperiod)
	}
}
