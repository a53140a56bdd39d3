package engine

import "lineflow/internal/line"

// ClockRef is the resolved driving clock of a node: either a raw line buffer
// (a feed line) or another node. It is a small sum type with a uniform
// length view; exactly one variant is set, or neither for nodes the runner
// advances manually (strategies).
type ClockRef struct {
	buf  *line.Buffer
	node Node
}

// LineClock wraps a raw buffer as a clock.
func LineClock(b *line.Buffer) ClockRef { return ClockRef{buf: b} }

// NodeClock wraps a node as a clock.
func NodeClock(n Node) ClockRef { return ClockRef{node: n} }

// Zero reports whether no clock is set.
func (c ClockRef) Zero() bool { return c.buf == nil && c.node == nil }

// Len returns the clock's committed bar count.
func (c ClockRef) Len() int {
	switch {
	case c.buf != nil:
		return c.buf.Len()
	case c.node != nil:
		return c.node.Len()
	}
	return 0
}

// BufLen returns the clock's total allocated slot count, the range batch
// execution covers.
func (c ClockRef) BufLen() int {
	switch {
	case c.buf != nil:
		return c.buf.BufLen()
	case c.node != nil:
		return c.node.Lines().BufLen()
	}
	return 0
}

// clockOf derives the clock for a data source: nodes drive through their
// own clock chain, anything else is a raw line.
func clockOf(src Source) ClockRef {
	if n, ok := src.(Node); ok {
		return NodeClock(n)
	}
	return LineClock(src.Line())
}
