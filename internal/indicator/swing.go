package indicator

import (
	"fmt"

	"lineflow/internal/engine"
	"lineflow/internal/feed"
)

// Swing tracks the most recently confirmed swing high and swing low. A
// bar is a swing high when its high exceeds the highs of the `strength`
// bars on either side, and symmetrically for swing lows. Confirmation
// therefore lags by `strength` bars, and the node carries the last
// confirmed levels forward between bars. Because each bar depends on
// the levels carried from the previous one, Swing has no batch pass and
// runs in streaming order even under a batch run.
type Swing struct {
	engine.Cell
	data     *feed.Feed
	strength int

	lastHigh float64
	lastLow  float64
	haveHigh bool
	haveLow  bool
}

func NewSwing(owner engine.Owner, data *feed.Feed, strength int) *Swing {
	if strength < 1 {
		panic(fmt.Sprintf("indicator: Swing strength must be >= 1, got %d", strength))
	}
	s := &Swing{data: data, strength: strength}
	s.Init(owner, s, "swing", []string{"swinghigh", "swinglow"}, 0, data)
	s.AddMinPeriod(2*strength + 1)
	return s
}

func (s *Swing) Next() {
	highs := s.data.Lines().At(feed.High)
	lows := s.data.Lines().At(feed.Low)

	// The candidate pivot sits `strength` bars back.
	ph := highs.Get(s.strength)
	pl := lows.Get(s.strength)

	isHigh, isLow := true, true
	for i := 0; i <= 2*s.strength; i++ {
		if i == s.strength {
			continue
		}
		if highs.Get(i) >= ph {
			isHigh = false
		}
		if lows.Get(i) <= pl {
			isLow = false
		}
	}
	if isHigh {
		s.lastHigh, s.haveHigh = ph, true
	}
	if isLow {
		s.lastLow, s.haveLow = pl, true
	}

	out := s.Lines()
	if s.haveHigh {
		out.At(0).Set(0, s.lastHigh)
	}
	if s.haveLow {
		out.At(1).Set(0, s.lastLow)
	}
}
