package engine

import (
	"errors"
	"fmt"
	"strings"

	"lineflow/internal/line"
)

// Graph is the root construction context of a node graph: the owner for
// top-level nodes and the entry point of the one-shot clock/minperiod
// resolve pass. The runner embeds one; tests can drive one directly.
type Graph struct {
	roots []Node
	res   *resolver
}

// NewGraph creates an empty graph.
func NewGraph() *Graph { return &Graph{} }

// Register adds a top-level node. Registration order is dependency order:
// a node must be registered (constructed) after everything it reads.
func (g *Graph) Register(n Node) {
	g.roots = append(g.roots, n)
}

// Roots returns the registered top-level nodes.
func (g *Graph) Roots() []Node { return g.roots }

// Resolve runs the clock/minperiod pass exactly once over the whole graph.
// A misconfigured graph (a node with no data and no clock) fails here, at
// construction time, never mid-run. Idempotent.
func (g *Graph) Resolve() error {
	if g.res != nil {
		return g.res.err()
	}
	g.res = newResolver()
	// Strategies gate on every consumer of their feeds, so they resolve
	// after all data-driven nodes have attributed their demands; observers
	// read strategies and resolve last.
	for _, n := range g.roots {
		if _, isStrat := n.(Strategy); isStrat {
			continue
		}
		if _, isObs := n.(Observing); isObs {
			continue
		}
		n.resolve(g.res)
	}
	for _, n := range g.roots {
		if _, ok := n.(Strategy); ok {
			n.resolve(g.res)
		}
	}
	for _, n := range g.roots {
		if _, ok := n.(Observing); ok {
			n.resolve(g.res)
		}
	}
	return g.res.err()
}

// Sequential reports whether any registered node is force-sequential,
// which rules out batch execution for the run.
func (g *Graph) Sequential() bool {
	for _, n := range g.roots {
		if n.Sequential() {
			return true
		}
	}
	return false
}

// GateFor returns the maximum minperiod any consumer imposes on the given
// source's underlying feed lines. Valid after Resolve.
func (g *Graph) GateFor(src Source) int {
	if g.res == nil {
		return 1
	}
	return g.res.gate(src)
}

// TickAll performs one streaming step on every root in dependency order.
func (g *Graph) TickAll() {
	for _, n := range g.roots {
		n.Tick()
	}
}

// RunOnceAll performs batch evaluation on every root in dependency order.
func (g *Graph) RunOnceAll() {
	for _, n := range g.roots {
		n.RunOnce()
	}
}

// HomeAll rewinds every root keeping stored values.
func (g *Graph) HomeAll() {
	for _, n := range g.roots {
		n.HomeAll()
	}
}

// ResetAll rewinds every root to empty.
func (g *Graph) ResetAll() {
	for _, n := range g.roots {
		n.ResetAll()
	}
}

// Faults sums the computation faults absorbed across the graph.
func (g *Graph) Faults() int {
	total := 0
	var walk func(n Node)
	walk = func(n Node) {
		total += n.Faults()
		for _, ch := range n.Children() {
			walk(ch)
		}
	}
	for _, n := range g.roots {
		walk(n)
	}
	return total
}

// resolver carries the state of the one-shot resolve pass: the per-feed
// demand table and any configuration errors.
type resolver struct {
	feedMin map[*line.Buffer]int
	fails   []string
}

func newResolver() *resolver {
	return &resolver{feedMin: make(map[*line.Buffer]int)}
}

// attribute records that a consumer with the given minperiod ultimately
// reads the feed lines under src, tracing through intermediate nodes.
func (r *resolver) attribute(src Source, mp int) {
	if n, ok := src.(Node); ok {
		for _, d := range n.Datas() {
			r.attribute(d, mp)
		}
		return
	}
	b := src.Line()
	if mp > r.feedMin[b] {
		r.feedMin[b] = mp
	}
}

// gate returns the maximum demand recorded against the feed lines under src.
func (r *resolver) gate(src Source) int {
	if n, ok := src.(Node); ok {
		g := 1
		for _, d := range n.Datas() {
			if dg := r.gate(d); dg > g {
				g = dg
			}
		}
		return g
	}
	if g, ok := r.feedMin[src.Line()]; ok {
		return g
	}
	return 1
}

func (r *resolver) fail(name, msg string) {
	r.fails = append(r.fails, fmt.Sprintf("%s: %s", name, msg))
}

func (r *resolver) err() error {
	if len(r.fails) == 0 {
		return nil
	}
	return errors.New("graph resolve: " + strings.Join(r.fails, "; "))
}
