// Package observer provides passive graph nodes stepped after every strategy
// each bar. Observers record run-level series (timelines, spreads) without
// emitting signals.
package observer

import (
	"lineflow/internal/engine"
	"lineflow/internal/feed"
)

// Base marks an embedding node as an observer: the runner steps it after the
// strategies and the graph resolves it last.
type Base struct {
	engine.Cell
}

// Observes marks the node for observer scheduling.
func (b *Base) Observes() {}

// Timeline echoes a strategy's datetime line, one slot per logical timestep
// of the run. Its clock is the strategy itself, so it grows even on bars
// where only a slower feed advanced.
type Timeline struct {
	Base
	strat engine.Node
}

func NewTimeline(owner engine.Owner, strat engine.Node) *Timeline {
	t := &Timeline{strat: strat}
	t.Init(owner, t, "timeline", []string{"datetime"}, 0, strat)
	return t
}

func (t *Timeline) Next() {
	t.Line().Set(0, t.strat.Lines().At(0).Get(0))
}

func (t *Timeline) Once(start, end int) {
	dt, out := t.strat.Lines().At(0), t.Line()
	for i := start; i < end; i++ {
		out.SetAt(i, dt.GetAt(i))
	}
}

// TradeSpread records the high-low range of each bar of one feed.
type TradeSpread struct {
	Base
	data *feed.Feed
}

func NewTradeSpread(owner engine.Owner, data *feed.Feed) *TradeSpread {
	s := &TradeSpread{data: data}
	s.Init(owner, s, "tradespread", []string{"spread"}, 0, data)
	return s
}

func (s *TradeSpread) Next() {
	l := s.data.Lines()
	s.Line().Set(0, l.At(feed.High).Get(0)-l.At(feed.Low).Get(0))
}

func (s *TradeSpread) Once(start, end int) {
	hi, lo := s.data.Lines().At(feed.High), s.data.Lines().At(feed.Low)
	out := s.Line()
	for i := start; i < end; i++ {
		out.SetAt(i, hi.GetAt(i)-lo.GetAt(i))
	}
}
