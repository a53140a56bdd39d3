package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"lineflow/internal/feed"
	"lineflow/internal/metrics"
	"lineflow/internal/model"
)

// CashProvider is the broker-side collaborator supplying cash/value for the
// strategy notification surface. Optional.
type CashProvider interface {
	Cash() model.CashInfo
}

// Runner is the execution driver: it owns the graph, synchronizes the data
// feeds, and drives either the bar-by-bar streaming loop or the one-shot
// batch evaluation. Single-threaded and synchronous: one logical timestep at
// a time, node order fixed by construction.
type Runner struct {
	graph *Graph
	feeds []*feed.Feed

	plain      []Node
	strategies []Strategy
	observers  []Node

	mets *metrics.Metrics
	cash CashProvider
	poll time.Duration

	lastStatus []model.DataStatus
	started    bool
	faultsSeen int

	// recorded feed-commit pattern of a batch preload, replayed for the
	// strategies' per-bar side effects
	steps []runStep
}

type runStep struct {
	committed []bool
	ts        float64
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{
		graph: NewGraph(),
		poll:  10 * time.Millisecond,
	}
}

// Graph returns the underlying construction context; node constructors take
// it (or any node) as their owner.
func (r *Runner) Graph() *Graph { return r.graph }

// Register implements Owner by delegating to the graph.
func (r *Runner) Register(n Node) { r.graph.Register(n) }

// AddFeed registers a data feed. Feed order is notification order.
func (r *Runner) AddFeed(f *feed.Feed) *feed.Feed {
	r.feeds = append(r.feeds, f)
	r.lastStatus = append(r.lastStatus, f.Status())
	return f
}

// Feeds returns the registered feeds.
func (r *Runner) Feeds() []*feed.Feed { return r.feeds }

// SetMetrics attaches Prometheus collectors.
func (r *Runner) SetMetrics(m *metrics.Metrics) { r.mets = m }

// SetCashProvider attaches the broker-side cash collaborator.
func (r *Runner) SetCashProvider(p CashProvider) { r.cash = p }

// SetPoll adjusts the live pending-wait interval.
func (r *Runner) SetPoll(d time.Duration) { r.poll = d }

// Start resolves the graph (exactly once) and starts the strategies. The
// driver contract is Start once, then Run or RunBatch, then Stop once.
func (r *Runner) Start() error {
	if r.started {
		return nil
	}
	if len(r.feeds) == 0 {
		return fmt.Errorf("runner: no data feeds registered")
	}
	if err := r.graph.Resolve(); err != nil {
		return err
	}
	r.classify()
	if r.mets != nil {
		for _, n := range r.graph.Roots() {
			r.mets.ResolveMinPer.WithLabelValues(n.Name()).Set(float64(n.MinPeriod()))
		}
	}
	for _, s := range r.strategies {
		s.Start()
	}
	r.started = true
	return nil
}

// Stop stops the strategies and the feed sources. Idempotent from the
// driver's point of view: called once at the end of a run.
func (r *Runner) Stop() {
	for _, s := range r.strategies {
		s.Stop()
	}
	for _, f := range r.feeds {
		f.Stop()
	}
	if r.mets != nil {
		if n := r.graph.Faults(); n > r.faultsSeen {
			r.mets.NodeFaults.Add(float64(n - r.faultsSeen))
			r.faultsSeen = n
		}
	}
	r.started = false
}

func (r *Runner) classify() {
	r.plain = r.plain[:0]
	r.strategies = r.strategies[:0]
	r.observers = r.observers[:0]
	for _, n := range r.graph.Roots() {
		switch t := n.(type) {
		case Strategy:
			r.strategies = append(r.strategies, t)
		case Observing:
			r.observers = append(r.observers, n)
		default:
			r.plain = append(r.plain, n)
		}
	}
}

// ── streaming ──

// Run drives the streaming loop: synchronize feeds in global timestamp
// order, tick the graph once per new bar, deliver notifications, until all
// feeds are exhausted or the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	defer r.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		grew, alive := r.loadRound()
		if !alive {
			return nil
		}
		if !grew {
			// Every live feed still pending: wait, don't error.
			if r.mets != nil {
				r.mets.PendingSpinTotal.Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.poll):
			}
			continue
		}
		r.stepStreaming()
	}
}

// loadRound peeks every feed and commits exactly the feeds whose next bar
// carries the earliest pending timestamp, so that a multi-feed run advances
// through the sorted union of distinct timestamps. grew is false when no
// feed produced a bar this round; alive is false when every source is Done.
func (r *Runner) loadRound() (grew, alive bool) {
	var (
		minTS    time.Time
		anyReady bool
	)
	for _, f := range r.feeds {
		b, st := f.Peek()
		switch st {
		case feed.Ready:
			if !anyReady || b.TS.Before(minTS) {
				minTS = b.TS
				anyReady = true
			}
			alive = true
		case feed.Pending:
			alive = true
		}
	}
	if !anyReady {
		return false, alive
	}
	for _, f := range r.feeds {
		if b, st := f.Peek(); st == feed.Ready && b.TS.Equal(minTS) {
			f.Commit()
		}
	}
	return true, true
}

// stepStreaming ticks the whole graph for one new bar.
func (r *Runner) stepStreaming() {
	started := time.Now()
	ts := r.maxDatetime()
	for _, n := range r.plain {
		n.Tick()
	}
	for _, s := range r.strategies {
		s.Lines().Forward(math.NaN(), 1)
		s.Lines().At(0).Set(0, ts)
		s.Tick()
	}
	for _, o := range r.observers {
		o.Tick()
	}
	r.deliverStatus()
	r.deliverCash()
	if r.mets != nil {
		r.mets.BarsTotal.Inc()
		r.mets.TickDur.Observe(time.Since(started).Seconds())
	}
}

// maxDatetime returns the strategy timestamp for the current bar: the
// maximum datetime across feeds that have data, NaN (the sentinel) when no
// feed has produced a bar yet.
func (r *Runner) maxDatetime() float64 {
	ts := math.NaN()
	for _, f := range r.feeds {
		if f.Len() == 0 {
			continue
		}
		v := f.Datetime(0)
		if math.IsNaN(ts) || v > ts {
			ts = v
		}
	}
	return ts
}

func (r *Runner) deliverStatus() {
	for i, f := range r.feeds {
		st := f.Status()
		if st == r.lastStatus[i] {
			continue
		}
		r.lastStatus[i] = st
		if r.mets != nil {
			r.mets.FeedStatusState.WithLabelValues(f.Name()).Set(float64(st))
		}
		for _, s := range r.strategies {
			s.NotifyData(i, st)
		}
	}
}

func (r *Runner) deliverCash() {
	if r.cash == nil {
		return
	}
	info := r.cash.Cash()
	for _, s := range r.strategies {
		s.NotifyCash(info)
	}
}

// DeliverOrder forwards an order record from the broker collaborator to
// every strategy, synchronously between ticks.
func (r *Runner) DeliverOrder(o model.OrderRecord) {
	for _, s := range r.strategies {
		s.NotifyOrder(o)
	}
}

// DeliverTrade forwards a closed trade record to every strategy.
func (r *Runner) DeliverTrade(t model.TradeRecord) {
	for _, s := range r.strategies {
		s.NotifyTrade(t)
	}
}

// ── batch ──

// RunBatch preloads every feed, evaluates the whole graph vectorized, then
// replays the recorded timeline so strategies emit their per-bar side
// effects over the already-computed lines. Falls back to streaming when any
// node is force-sequential or any buffer is bounded.
func (r *Runner) RunBatch(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	if !r.batchable() {
		log.Printf("[runner] batch disabled (sequential node or bounded buffer), streaming instead")
		defer r.Stop()
		return r.runStartedStreaming(ctx)
	}
	defer r.Stop()
	started := time.Now()

	if err := r.preload(ctx); err != nil {
		return err
	}
	total := len(r.steps)
	for _, s := range r.strategies {
		s.Lines().Forward(math.NaN(), total)
		dt := s.Lines().At(0)
		for i, st := range r.steps {
			dt.SetAt(i, st.ts)
		}
	}
	for _, n := range r.plain {
		n.RunOnce()
	}
	for _, s := range r.strategies {
		s.RunOnce()
	}
	for _, o := range r.observers {
		o.RunOnce()
	}

	// Replay for per-bar strategy dispatch over the computed arrays.
	for _, f := range r.feeds {
		f.Home()
	}
	for _, n := range r.graph.Roots() {
		n.HomeAll()
	}
	for _, st := range r.steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for i, f := range r.feeds {
			if st.committed[i] {
				f.Advance(1)
			}
		}
		for _, n := range r.plain {
			n.Replay(false)
		}
		for _, s := range r.strategies {
			s.Lines().Advance(1)
			s.Replay(true)
		}
		for _, o := range r.observers {
			o.Replay(false)
		}
		r.deliverCash()
		if r.mets != nil {
			r.mets.BarsTotal.Inc()
		}
	}
	if r.mets != nil {
		r.mets.BatchDur.Observe(time.Since(started).Seconds())
	}
	return nil
}

// runStartedStreaming is Run without the Start/Stop bracket, for the batch
// fallback path.
func (r *Runner) runStartedStreaming(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		grew, alive := r.loadRound()
		if !alive {
			return nil
		}
		if !grew {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.poll):
			}
			continue
		}
		r.stepStreaming()
	}
}

func (r *Runner) batchable() bool {
	if r.graph.Sequential() {
		return false
	}
	for _, f := range r.feeds {
		if f.Lines().Bounded() {
			return false
		}
	}
	return true
}

// preload commits every historical bar in global timestamp order without
// ticking, recording the per-step commit pattern and strategy timestamp.
func (r *Runner) preload(ctx context.Context) error {
	r.steps = r.steps[:0]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var (
			minTS    time.Time
			anyReady bool
		)
		for _, f := range r.feeds {
			b, st := f.Peek()
			if st == feed.Pending {
				return fmt.Errorf("runner: batch requires historical feeds, %s is live", f.Name())
			}
			if st == feed.Ready && (!anyReady || b.TS.Before(minTS)) {
				minTS = b.TS
				anyReady = true
			}
		}
		if !anyReady {
			return nil
		}
		committed := make([]bool, len(r.feeds))
		for i, f := range r.feeds {
			if b, st := f.Peek(); st == feed.Ready && b.TS.Equal(minTS) {
				f.Commit()
				committed[i] = true
			}
		}
		r.steps = append(r.steps, runStep{committed: committed, ts: r.maxDatetime()})
	}
}
