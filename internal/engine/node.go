// Package engine implements the dependency-graph execution core: derived
// operator nodes, the LineIterator protocol with its dual streaming/batch
// execution tracks, the clock/minperiod resolver, and the runner that drives
// a graph over one or more data feeds.
package engine

import (
	"lineflow/internal/line"
	"lineflow/internal/model"
)

// Source is a readable line stream: a feed, an indicator output, or a
// derived operator. Feeds satisfy it structurally without importing this
// package.
type Source interface {
	// Line returns the primary output buffer.
	Line() *line.Buffer

	// MinPeriod returns the resolved warm-up length (1 for raw feeds).
	MinPeriod() int

	// Len returns the number of bars produced so far.
	Len() int
}

// Runnable is the streaming body every node implements. The batch body is
// optional (Oncer); a node without one is implicitly force-sequential.
type Runnable interface {
	Next()
}

// Oncer is the vectorized batch body, semantically equivalent to calling
// Next bar by bar over the same range.
type Oncer interface {
	Once(start, end int)
}

// Optional streaming hooks, asserted once at Init.
type (
	// PreNexter runs during warm-up (len < minperiod). Default: no-op,
	// outputs stay at the sentinel.
	PreNexter interface{ PreNext() }

	// NextStarter runs exactly once when len == minperiod. Default:
	// delegate to Next.
	NextStarter interface{ NextStart() }
)

// Optional batch hooks, mirroring the streaming ones.
type (
	PreOncer    interface{ PreOnce(start, end int) }
	OnceStarter interface{ OnceStart(start, end int) }
)

// Node is the graph-facing contract of every LineIterator: derived
// operators, indicators, observers and strategies. Cell implements
// everything except the computational bodies.
type Node interface {
	Runnable
	Source

	Lines() *line.Bundle
	Name() string

	// Datas returns the upstream sources referenced (shared, not owned).
	Datas() []Source

	// Children returns the owned sub-nodes in creation order; they are
	// stepped before their owner.
	Children() []Node

	// Sequential reports whether this node or any descendant cannot be
	// vectorized, which disables batch mode for the whole run.
	Sequential() bool

	// Faults returns how many computation faults were absorbed at this
	// node's boundary.
	Faults() int

	// Tick performs one streaming protocol step: children first, forward
	// on clock growth, then prenext/nextstart/next dispatch.
	Tick()

	// RunOnce performs the batch protocol over the node's full clock
	// range: children first, then preonce/oncestart/once.
	RunOnce()

	// Replay advances cursors over already-computed slots without
	// recomputing; dispatch additionally runs the streaming dispatch
	// (used for strategies, which emit side effects per bar).
	Replay(dispatch bool)

	// HomeAll rewinds the node and its children keeping stored values.
	HomeAll()

	// ResetAll rewinds the node and its children to empty.
	ResetAll()

	resolve(r *resolver)
}

// Strategy is the runner-facing contract of a strategy node. The base
// implementation in internal/strategy provides no-op defaults for the
// notification surface.
type Strategy interface {
	Node

	Start()
	Stop()

	// Notification surface, delivered synchronously after each tick.
	NotifyData(feedIdx int, status model.DataStatus)
	NotifyCash(info model.CashInfo)
	NotifyOrder(o model.OrderRecord)
	NotifyTrade(t model.TradeRecord)
}

// Observing marks observer nodes: stepped after every strategy each bar,
// resolved last.
type Observing interface {
	Node
	Observes()
}

// Owner registers nodes created within its construction scope. Graph is the
// root owner; every Cell is an owner for the sub-nodes it creates.
type Owner interface {
	Register(n Node)
}
