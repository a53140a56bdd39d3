package engine

import (
	"fmt"
	"math"
)

// Derived operator nodes: one-output LineIterators with no sub-nodes,
// computing a pure function of their input value(s) at the current bar or a
// fixed offset. They are the building blocks arithmetic expressions on
// lines reduce to.

// ── Delay & Lookahead ──

// Delay outputs its source k bars late: out[i] = in[i-k], sentinel outside
// range. k must be positive.
type Delay struct {
	Cell
	src Source
	k   int
}

// NewDelay creates a delay node. Construction panics on k < 1; invalid
// wiring is a configuration error, caught before the first tick.
func NewDelay(owner Owner, src Source, k int) *Delay {
	if k < 1 {
		panic(fmt.Sprintf("engine: Delay requires k >= 1, got %d", k))
	}
	d := &Delay{src: src, k: k}
	d.Init(owner, d, "delay", []string{"delay"}, 0, src)
	d.IncMinPeriod(k - 1)
	return d
}

func (d *Delay) Next() {
	if v, ok := d.src.Line().GetOK(d.k); ok {
		d.Line().Set(0, v)
	} else {
		d.Line().Set(0, math.NaN())
	}
}

func (d *Delay) Once(start, end int) {
	in, out := d.src.Line(), d.Line()
	for i := start; i < end; i++ {
		if v, ok := in.GetAtOK(i - d.k); ok {
			out.SetAt(i, v)
		} else {
			out.SetAt(i, math.NaN())
		}
	}
}

// Lookahead is the forward shift: out[i] = in[i+k] for k >= 1. Over a
// source with extended future slots it reads them directly; over a plain
// source each arriving bar is backfilled k slots behind, the trailing k
// bars stay at the sentinel, and the node forces sequential execution.
// It adds no warm-up.
type Lookahead struct {
	Cell
	src Source
	k   int
}

// NewLookahead creates a forward-shift node. Panics on k < 1.
func NewLookahead(owner Owner, src Source, k int) *Lookahead {
	if k < 1 {
		panic(fmt.Sprintf("engine: Lookahead requires k >= 1, got %d", k))
	}
	f := &Lookahead{src: src, k: k}
	f.Init(owner, f, "lookahead", []string{"lookahead"}, 0, src)
	// Without pre-extended future slots on the source, bar i's value only
	// becomes known k bars later and is written back retroactively. Batch
	// replay cannot reproduce that read order for downstream consumers, so
	// the node pins the graph to streaming.
	if src.Line().Extension() < k {
		f.ForceSequential()
	}
	return f
}

func (f *Lookahead) Next() {
	in, out := f.src.Line(), f.Line()
	if v, ok := in.GetOK(-f.k); ok {
		out.Set(0, v)
		return
	}
	// Future slot not populated: the current bar is the forward value for
	// the bar k steps back. Backfill it and leave the head at the sentinel
	// until its own forward value arrives.
	out.Set(0, math.NaN())
	if v, ok := in.GetOK(0); ok {
		out.Set(f.k, v)
	}
}

func (f *Lookahead) Once(start, end int) {
	in, out := f.src.Line(), f.Line()
	for i := start; i < end; i++ {
		if v, ok := in.GetAtOK(i + f.k); ok {
			out.SetAt(i, v)
		} else {
			out.SetAt(i, math.NaN())
		}
	}
}

// Shift builds the derived node matching the call-style offset convention
// used on data lines: negative = past (a Delay), positive = lookahead.
func Shift(owner Owner, src Source, ago int) Node {
	switch {
	case ago < 0:
		return NewDelay(owner, src, -ago)
	case ago > 0:
		return NewLookahead(owner, src, ago)
	default:
		panic("engine: Shift requires a non-zero offset")
	}
}

// ── operands ──

// Operand is one side of a binary operation: a line source or a scalar
// broadcast as a constant.
type Operand interface {
	cur() float64
	at(i int) float64
	src() Source // nil for scalars
}

type lineOperand struct{ s Source }

func (o lineOperand) cur() float64     { return o.s.Line().Get(0) }
func (o lineOperand) at(i int) float64 { return o.s.Line().GetAt(i) }
func (o lineOperand) src() Source      { return o.s }

type scalarOperand struct{ v float64 }

func (o scalarOperand) cur() float64     { return o.v }
func (o scalarOperand) at(int) float64   { return o.v }
func (o scalarOperand) src() Source      { return nil }

// Term wraps a line source as an operand.
func Term(s Source) Operand { return lineOperand{s: s} }

// Const wraps a scalar as a broadcast operand.
func Const(v float64) Operand { return scalarOperand{v: v} }

// ── Binary ──

// BinOp is a pure two-argument function combined per bar.
type BinOp func(a, b float64) float64

// Binary combines two operands elementwise. Its minperiod is the maximum of
// the operand minperiods; no lag is introduced.
type Binary struct {
	Cell
	a, b    Operand
	op      BinOp
	reverse bool
}

// NewBinary creates a binary operator node. At least one operand must be a
// line; combining two constants is a configuration error and panics.
func NewBinary(owner Owner, name string, op BinOp, a, b Operand, reverse bool) *Binary {
	n := &Binary{a: a, b: b, op: op, reverse: reverse}
	var datas []Source
	if s := a.src(); s != nil {
		datas = append(datas, s)
	}
	if s := b.src(); s != nil {
		datas = append(datas, s)
	}
	if len(datas) == 0 {
		panic("engine: binary op needs at least one line operand")
	}
	n.Init(owner, n, name, []string{name}, 0, datas...)
	return n
}

func (n *Binary) apply(a, b float64) float64 {
	if n.reverse {
		return n.op(b, a)
	}
	return n.op(a, b)
}

func (n *Binary) Next() {
	n.Line().Set(0, n.apply(n.a.cur(), n.b.cur()))
}

func (n *Binary) Once(start, end int) {
	out := n.Line()
	for i := start; i < end; i++ {
		out.SetAt(i, n.apply(n.a.at(i), n.b.at(i)))
	}
}

// Common binary constructors.

func Add(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "add", func(x, y float64) float64 { return x + y }, a, b, false)
}

func Sub(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "sub", func(x, y float64) float64 { return x - y }, a, b, false)
}

func Mul(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "mul", func(x, y float64) float64 { return x * y }, a, b, false)
}

func Div(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "div", func(x, y float64) float64 { return x / y }, a, b, false)
}

func Min(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "min", math.Min, a, b, false)
}

func Max(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "max", math.Max, a, b, false)
}

func Gt(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "gt", cmp(func(x, y float64) bool { return x > y }), a, b, false)
}

func Lt(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "lt", cmp(func(x, y float64) bool { return x < y }), a, b, false)
}

func And(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "and", func(x, y float64) float64 {
		return boolVal(x != 0 && y != 0)
	}, a, b, false)
}

func Or(owner Owner, a, b Operand) *Binary {
	return NewBinary(owner, "or", func(x, y float64) float64 {
		return boolVal(x != 0 || y != 0)
	}, a, b, false)
}

func cmp(f func(a, b float64) bool) BinOp {
	return func(a, b float64) float64 { return boolVal(f(a, b)) }
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ── Unary ──

// UnOp is a pure one-argument function applied per bar.
type UnOp func(v float64) float64

// Unary applies op to a single input elementwise.
type Unary struct {
	Cell
	in Source
	op UnOp
}

// NewUnary creates a unary operator node.
func NewUnary(owner Owner, name string, op UnOp, in Source) *Unary {
	n := &Unary{in: in, op: op}
	n.Init(owner, n, name, []string{name}, 0, in)
	return n
}

func (n *Unary) Next() {
	n.Line().Set(0, n.op(n.in.Line().Get(0)))
}

func (n *Unary) Once(start, end int) {
	in, out := n.in.Line(), n.Line()
	for i := start; i < end; i++ {
		out.SetAt(i, n.op(in.GetAt(i)))
	}
}

// Common unary constructors.

func Abs(owner Owner, in Source) *Unary  { return NewUnary(owner, "abs", math.Abs, in) }
func Neg(owner Owner, in Source) *Unary  { return NewUnary(owner, "neg", func(v float64) float64 { return -v }, in) }
func Sqrt(owner Owner, in Source) *Unary { return NewUnary(owner, "sqrt", math.Sqrt, in) }
func Log(owner Owner, in Source) *Unary  { return NewUnary(owner, "log", math.Log, in) }
