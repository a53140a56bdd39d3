// Package line implements the growable numeric series underlying every feed,
// indicator and strategy output: a cursor-addressed buffer of float64 values
// with relative (ago) and absolute (slot) access, optional ring storage for
// memory-bounded runs, and value bindings for splicing computed values into
// other buffers.
package line

import "math"

// Kind selects the out-of-range sentinel policy for a buffer.
type Kind int

const (
	// Derived buffers (indicator/operator outputs) return NaN out of range.
	Derived Kind = iota
	// Raw buffers (feed lines) return 0.0 out of range so lookback math
	// near series boundaries degrades instead of poisoning comparisons.
	Raw
)

// Mode is the storage mode of a buffer.
type Mode int

const (
	Unbounded Mode = iota
	Ring
)

// Buffer is a single growable time series with a movable "now" cursor.
//
// Ago convention: 0 = current bar, positive = past, negative = lookahead into
// slots pre-allocated with Extend. Out-of-range reads return the sentinel for
// the buffer's Kind; they never panic.
//
// Not safe for concurrent use. Snapshot reads are safe between ticks only.
type Buffer struct {
	kind Kind
	mode Mode

	array []float64 // unbounded backing store

	idx      int // cursor: logical slot of "now" (-1 when empty)
	lencount int // logical bars produced
	ext      int // pre-allocated future slots past the cursor
	slen     int // total logical slots allocated so far

	// ring mode
	maxlen int       // retained window size, 0 when unbounded
	ring   []float64 // circular backing store
	rstart int       // physical index of the oldest retained slot
	rcount int       // retained slots, <= maxlen

	bindings []*Buffer
}

// NewBuffer creates an empty unbounded buffer with the given sentinel policy.
func NewBuffer(kind Kind) *Buffer {
	return &Buffer{kind: kind, idx: -1}
}

// Kind returns the buffer's sentinel policy.
func (b *Buffer) Kind() Kind { return b.kind }

// Mode returns the current storage mode.
func (b *Buffer) Mode() Mode { return b.mode }

// Sentinel returns the out-of-range value for this buffer: NaN for derived
// buffers, 0.0 for raw feed buffers.
func (b *Buffer) Sentinel() float64 {
	if b.kind == Raw {
		return 0
	}
	return math.NaN()
}

// Len returns the number of logical bars produced.
func (b *Buffer) Len() int { return b.lencount }

// BufLen returns the total number of slots allocated, including slots ahead
// of the cursor (preloaded or extended).
func (b *Buffer) BufLen() int { return b.slen }

// Extension returns the number of lookahead slots allocated with Extend.
func (b *Buffer) Extension() int { return b.ext }

// LastIndex returns the index of the last committed bar, -1 when empty.
func (b *Buffer) LastIndex() int { return b.lencount - 1 }

// Get returns the value at the given ago offset, or the sentinel when the
// resolved slot does not exist.
func (b *Buffer) Get(ago int) float64 {
	v, ok := b.GetOK(ago)
	if !ok {
		return b.Sentinel()
	}
	return v
}

// GetOK is Get with an explicit in-range flag, for callers that must apply
// their own sentinel (a derived node reading a raw source).
func (b *Buffer) GetOK(ago int) (float64, bool) {
	return b.GetAtOK(b.idx - ago)
}

// GetAt returns the value at absolute slot i, sentinel when out of range.
// Absolute access is the contract for vectorized once bodies.
func (b *Buffer) GetAt(i int) float64 {
	v, ok := b.GetAtOK(i)
	if !ok {
		return b.Sentinel()
	}
	return v
}

// GetAtOK is GetAt with an explicit in-range flag.
func (b *Buffer) GetAtOK(i int) (float64, bool) {
	if i < 0 || i >= b.slen {
		return 0, false
	}
	if b.mode == Unbounded {
		return b.array[i], true
	}
	off := i - (b.slen - b.rcount)
	if off < 0 {
		// Evicted from the ring window: out of contract, degrade to sentinel.
		return 0, false
	}
	return b.ring[(b.rstart+off)%b.maxlen], true
}

// Set writes the value at the given ago offset and propagates it to every
// bound buffer at the same offset. Writes outside the allocated slots are
// dropped silently.
func (b *Buffer) Set(ago int, v float64) {
	b.setSlot(b.idx-ago, v)
	for _, dst := range b.bindings {
		dst.Set(ago, v)
	}
}

// SetAt writes the value at absolute slot i (vectorized once bodies).
// Bindings are not propagated here; batch execution syncs them in bulk with
// SyncBindings after the range is computed.
func (b *Buffer) SetAt(i int, v float64) {
	b.setSlot(i, v)
}

func (b *Buffer) setSlot(i int, v float64) {
	if i < 0 || i >= b.slen {
		return
	}
	if b.mode == Unbounded {
		b.array[i] = v
		return
	}
	off := i - (b.slen - b.rcount)
	if off < 0 {
		return
	}
	b.ring[(b.rstart+off)%b.maxlen] = v
}

// Forward advances the cursor by size bars, appending storage as needed.
// This is the "new bar" operation. Slots that already exist ahead of the
// cursor (preloaded data after Home) are advanced over, not overwritten.
func (b *Buffer) Forward(v float64, size int) {
	for n := 0; n < size; n++ {
		b.idx++
		b.lencount++
		if b.idx >= b.slen {
			b.appendSlot(v)
		}
	}
}

// Advance moves the cursor without touching storage, for buffers whose slots
// were already grown elsewhere (batch replay over preloaded arrays).
func (b *Buffer) Advance(size int) {
	b.idx += size
	b.lencount += size
}

// Backwards undoes size forwards, dropping the trailing slots. Used by
// resample/replay collaborators correcting the last bar.
func (b *Buffer) Backwards(size int) {
	if size > b.lencount {
		size = b.lencount
	}
	b.idx -= size
	b.lencount -= size
	b.truncate(size)
}

// Extend allocates size lookahead slots past the cursor without moving it,
// enabling negative-ago writes.
func (b *Buffer) Extend(v float64, size int) {
	for n := 0; n < size; n++ {
		b.appendSlot(v)
	}
	b.ext += size
}

// Home rewinds the cursor to before the first bar but keeps the stored
// values, so the same data can be replayed with Forward/Advance.
func (b *Buffer) Home() {
	b.idx = -1
	b.lencount = 0
}

// Reset rewinds to a completely empty buffer, dropping all storage.
func (b *Buffer) Reset() {
	b.idx = -1
	b.lencount = 0
	b.ext = 0
	b.slen = 0
	b.array = b.array[:0]
	if b.mode == Ring {
		b.rstart = 0
		b.rcount = 0
	}
}

// QBuffer irreversibly switches the buffer to ring storage retaining the
// most recent max(1, minHistory)+slack slots. Existing values inside the
// window are migrated; evicted slots become out of contract. Batch execution
// is not supported over a bounded buffer.
func (b *Buffer) QBuffer(minHistory, slack int) {
	if b.mode == Ring {
		return
	}
	if minHistory < 1 {
		minHistory = 1
	}
	maxlen := minHistory + slack
	ring := make([]float64, maxlen)
	keep := b.slen
	if keep > maxlen {
		keep = maxlen
	}
	for i := 0; i < keep; i++ {
		ring[i] = b.array[b.slen-keep+i]
	}
	b.mode = Ring
	b.maxlen = maxlen
	b.ring = ring
	b.rstart = 0
	b.rcount = keep
	b.array = nil
}

// Bind registers dst as a binding target: every Set on this buffer is
// mirrored into dst at the same offset.
func (b *Buffer) Bind(dst *Buffer) {
	b.bindings = append(b.bindings, dst)
}

// SyncBindings copies slots [start,end) into every bound buffer. Batch
// execution calls this once per node after the once range is computed.
func (b *Buffer) SyncBindings(start, end int) {
	if len(b.bindings) == 0 {
		return
	}
	for i := start; i < end; i++ {
		v := b.GetAt(i)
		for _, dst := range b.bindings {
			dst.SetAt(i, v)
			dst.SyncBindings(i, i+1)
		}
	}
}

func (b *Buffer) appendSlot(v float64) {
	if b.mode == Unbounded {
		b.array = append(b.array, v)
		b.slen++
		return
	}
	if b.rcount < b.maxlen {
		b.ring[(b.rstart+b.rcount)%b.maxlen] = v
		b.rcount++
	} else {
		b.ring[b.rstart] = v
		b.rstart = (b.rstart + 1) % b.maxlen
	}
	b.slen++
}

func (b *Buffer) truncate(size int) {
	if size > b.slen {
		size = b.slen
	}
	b.slen -= size
	if b.mode == Unbounded {
		b.array = b.array[:b.slen]
		return
	}
	if size > b.rcount {
		size = b.rcount
	}
	b.rcount -= size
}
