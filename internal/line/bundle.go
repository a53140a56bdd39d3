package line

// Bundle is a named, ordered collection of buffers belonging to one entity
// (a feed's OHLCV lines, an indicator's outputs). Bulk operations fan out to
// every member so that all buffers always share one cursor.
type Bundle struct {
	bufs  []*Buffer
	names []string       // declared order, for snapshot tables
	index map[string]int // alias table
	size  int            // declared outputs; extras follow
}

// NewBundle builds a bundle from a declared output schema plus extra unnamed
// scratch buffers. The alias table is fixed at construction.
func NewBundle(kind Kind, names []string, extra int) *Bundle {
	l := &Bundle{
		bufs:  make([]*Buffer, 0, len(names)+extra),
		names: names,
		index: make(map[string]int, len(names)),
		size:  len(names),
	}
	for i, name := range names {
		l.bufs = append(l.bufs, NewBuffer(kind))
		l.index[name] = i
	}
	for i := 0; i < extra; i++ {
		l.bufs = append(l.bufs, NewBuffer(kind))
	}
	return l
}

// Size returns the declared output count.
func (l *Bundle) Size() int { return l.size }

// FullSize returns the total buffer count including scratch extras.
func (l *Bundle) FullSize() int { return len(l.bufs) }

// At returns the i-th buffer (declared outputs first, then extras).
func (l *Bundle) At(i int) *Buffer { return l.bufs[i] }

// ByName returns the buffer registered under the given alias, nil when the
// alias was not declared.
func (l *Bundle) ByName(name string) *Buffer {
	i, ok := l.index[name]
	if !ok {
		return nil
	}
	return l.bufs[i]
}

// Names returns the declared aliases in order.
func (l *Bundle) Names() []string { return l.names }

// Len returns the shared bar count. All members advance in lock-step, so any
// member's count is the bundle's.
func (l *Bundle) Len() int {
	if len(l.bufs) == 0 {
		return 0
	}
	return l.bufs[0].Len()
}

// BufLen returns the shared allocated slot count.
func (l *Bundle) BufLen() int {
	if len(l.bufs) == 0 {
		return 0
	}
	return l.bufs[0].BufLen()
}

// LastIndex returns the index of the last committed bar, -1 when empty.
func (l *Bundle) LastIndex() int { return l.Len() - 1 }

// Forward advances every member by size new bars filled with v.
func (l *Bundle) Forward(v float64, size int) {
	for _, b := range l.bufs {
		b.Forward(v, size)
	}
}

// Advance moves every member's cursor without allocating.
func (l *Bundle) Advance(size int) {
	for _, b := range l.bufs {
		b.Advance(size)
	}
}

// Backwards undoes size forwards on every member.
func (l *Bundle) Backwards(size int) {
	for _, b := range l.bufs {
		b.Backwards(size)
	}
}

// Extend allocates size lookahead slots on every member.
func (l *Bundle) Extend(v float64, size int) {
	for _, b := range l.bufs {
		b.Extend(v, size)
	}
}

// Home rewinds every member keeping stored values.
func (l *Bundle) Home() {
	for _, b := range l.bufs {
		b.Home()
	}
}

// Reset rewinds every member to empty.
func (l *Bundle) Reset() {
	for _, b := range l.bufs {
		b.Reset()
	}
}

// QBuffer switches every member to ring storage. Irreversible.
func (l *Bundle) QBuffer(minHistory, slack int) {
	for _, b := range l.bufs {
		b.QBuffer(minHistory, slack)
	}
}

// Bounded reports whether any member uses ring storage.
func (l *Bundle) Bounded() bool {
	for _, b := range l.bufs {
		if b.Mode() == Ring {
			return true
		}
	}
	return false
}

// SyncBindings flushes slots [start,end) of every member into its bound
// buffers.
func (l *Bundle) SyncBindings(start, end int) {
	for _, b := range l.bufs {
		b.SyncBindings(start, end)
	}
}

// RangeSlice returns a column table of the declared lines over committed
// bars. start/end are absolute bar indices (end exclusive); pass -1 to
// default start to 0 and end to the committed length. back, when positive,
// overrides both to the trailing back bars. Read-only and safe between
// ticks only.
func (l *Bundle) RangeSlice(start, end, back int) map[string][]float64 {
	n := l.Len()
	if end < 0 || end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	if back > 0 {
		end = n
		start = n - back
		if start < 0 {
			start = 0
		}
	}
	if start > end {
		start = end
	}
	out := make(map[string][]float64, l.size)
	for i := 0; i < l.size; i++ {
		col := make([]float64, 0, end-start)
		for j := start; j < end; j++ {
			col = append(col, l.bufs[i].GetAt(j))
		}
		out[l.names[i]] = col
	}
	return out
}
