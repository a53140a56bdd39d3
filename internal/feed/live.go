package feed

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"lineflow/internal/model"
	"lineflow/internal/ringbuf"
)

// LiveSource bridges an ingestion worker and the engine through a bounded
// SPSC ring: the worker pushes parsed bars, the engine's load step performs
// a non-blocking dequeue. An empty ring is Pending, not an error. Shutdown
// is cooperative: a stop flag plus a bounded join timeout, since a single
// bar computation never blocks.
type LiveSource struct {
	ring *ringbuf.Ring

	stopped  atomic.Bool
	closed   atomic.Bool // worker finished, drain then Done
	workerWG sync.WaitGroup

	joinTimeout time.Duration

	// OnStatus is invoked from the worker side on delivery-state changes
	// (Delayed/Live/Disconnected). Ingestion faults surface here, never on
	// the per-bar path.
	OnStatus func(model.DataStatus)
}

// NewLiveSource creates a live source with a ring of at least capacity bars.
func NewLiveSource(capacity int) *LiveSource {
	return &LiveSource{
		ring:        ringbuf.New(capacity),
		joinTimeout: 5 * time.Second,
	}
}

// Push enqueues a bar from the ingestion worker. Returns false when the
// ring is full and the bar was dropped (counted in Overflow).
func (s *LiveSource) Push(b model.Bar) bool {
	return s.ring.Push(b)
}

// Next performs the non-blocking dequeue: Ready with a bar, Pending when the
// queue is momentarily empty, Done once the worker has finished and the ring
// is drained.
func (s *LiveSource) Next() (model.Bar, State) {
	if b, ok := s.ring.Pop(); ok {
		return b, Ready
	}
	if s.closed.Load() {
		return model.Bar{}, Done
	}
	return model.Bar{}, Pending
}

// Run drives an ingestion worker until Stop. The worker function is called
// repeatedly and returns false to signal the venue is finished. Faults
// inside the worker must be handled by the worker itself (reconnect,
// status notifications); Run only supplies the lifecycle.
func (s *LiveSource) Run(worker func() bool) {
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer s.closed.Store(true)
		for !s.stopped.Load() {
			if !worker() {
				return
			}
		}
	}()
}

// Close marks the stream finished from the producer side; the consumer
// drains the ring and then sees Done.
func (s *LiveSource) Close() { s.closed.Store(true) }

// Stop requests cooperative shutdown and joins the worker with a bounded
// timeout. Safe to call more than once.
func (s *LiveSource) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.joinTimeout):
		log.Printf("[feed] live source: worker join timed out after %s", s.joinTimeout)
	}
	s.closed.Store(true)
}

// Overflow returns how many bars the worker dropped against a full ring.
func (s *LiveSource) Overflow() uint64 { return s.ring.Overflow() }

// Depth returns the current queue depth (metrics).
func (s *LiveSource) Depth() int { return s.ring.Len() }

// HighWater returns the peak queue depth since start (metrics).
func (s *LiveSource) HighWater() int { return s.ring.HighWater() }

// NotifyStatus forwards a delivery-state change to the registered callback.
func (s *LiveSource) NotifyStatus(st model.DataStatus) {
	if s.OnStatus != nil {
		s.OnStatus(st)
	}
}
