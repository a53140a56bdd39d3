package feed

import "lineflow/internal/model"

// SliceSource replays a preloaded bar slice: Ready until exhausted, then
// Done. It is the source behind CSV and store-backed historical feeds.
type SliceSource struct {
	bars []model.Bar
	pos  int
}

// NewSliceSource creates a source over bars, which must be ordered by
// timestamp ascending.
func NewSliceSource(bars []model.Bar) *SliceSource {
	return &SliceSource{bars: bars}
}

func (s *SliceSource) Next() (model.Bar, State) {
	if s.pos >= len(s.bars) {
		return model.Bar{}, Done
	}
	b := s.bars[s.pos]
	s.pos++
	return b, Ready
}

// Stop is a no-op for historical slices.
func (s *SliceSource) Stop() {}

// Rewind restarts the slice from the beginning, for re-running the same
// graph over identical input.
func (s *SliceSource) Rewind() { s.pos = 0 }
