package feed

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lineflow/internal/model"
)

func barAt(min int, close float64) model.Bar {
	t0 := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	return model.Bar{
		Exchange: "NSE", Symbol: "TEST",
		TS:   t0.Add(time.Duration(min) * time.Minute),
		Open: close, High: close, Low: close, Close: close, Volume: 10,
	}
}

func TestSliceSourceTriState(t *testing.T) {
	src := NewSliceSource([]model.Bar{barAt(0, 1), barAt(1, 2)})

	if _, st := src.Next(); st != Ready {
		t.Fatalf("first Next = %v, want READY", st)
	}
	if _, st := src.Next(); st != Ready {
		t.Fatalf("second Next = %v, want READY", st)
	}
	if _, st := src.Next(); st != Done {
		t.Fatalf("exhausted Next = %v, want DONE", st)
	}

	src.Rewind()
	if b, st := src.Next(); st != Ready || b.Close != 1 {
		t.Errorf("after Rewind: %v %v", b, st)
	}
}

func TestFeedCommitFillsLines(t *testing.T) {
	f := New("NSE:TEST", NewSliceSource([]model.Bar{barAt(0, 100), barAt(1, 101)}))

	if st := f.Load(); st != Ready {
		t.Fatalf("Load = %v", st)
	}
	if f.Len() != 1 {
		t.Fatalf("Len = %d", f.Len())
	}
	if got := f.Line().Get(0); got != 100 {
		t.Errorf("close = %v, want 100", got)
	}
	if got := f.Lines().At(Volume).Get(0); got != 10 {
		t.Errorf("volume = %v, want 10", got)
	}
	if got := f.Time(0); !got.Equal(barAt(0, 0).TS) {
		t.Errorf("Time(0) = %v", got)
	}

	f.Load()
	f.Load() // exhausts the source
	if !f.Done() {
		t.Error("feed should be done")
	}
}

func TestFeedPeekDoesNotCommit(t *testing.T) {
	f := New("NSE:TEST", NewSliceSource([]model.Bar{barAt(0, 100)}))

	b, st := f.Peek()
	if st != Ready || b.Close != 100 {
		t.Fatalf("Peek = %v %v", b, st)
	}
	if f.Len() != 0 {
		t.Fatalf("Peek must not commit, Len = %d", f.Len())
	}
	// Repeated peeks return the same pending bar without consuming more.
	if b2, _ := f.Peek(); b2.TS != b.TS {
		t.Error("second Peek returned a different bar")
	}
	if !f.Commit() {
		t.Fatal("Commit with a pending bar should succeed")
	}
	if f.Commit() {
		t.Error("Commit without a pending bar should be a no-op")
	}
}

func TestFeedRawSentinel(t *testing.T) {
	f := New("NSE:TEST", NewSliceSource([]model.Bar{barAt(0, 100)}))
	f.Load()
	// Raw lines degrade to 0.0 beyond history, not NaN.
	if got := f.Line().Get(5); got != 0 {
		t.Errorf("out-of-range close = %v, want 0", got)
	}
	if got := f.Time(5); !got.IsZero() {
		t.Errorf("out-of-range Time = %v, want zero", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 2, 2, 9, 15, 30, 500_000_000, time.UTC)
	got := FloatToTime(TimeToFloat(ts))
	if d := got.Sub(ts); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("round trip drift %v", d)
	}
	if !math.IsNaN(TimeToFloat(time.Time{})) {
		t.Error("zero time should encode as NaN")
	}
	if !FloatToTime(math.NaN()).IsZero() {
		t.Error("NaN should decode as the zero time")
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	data := `datetime,open,high,low,close,volume
2026-02-02 09:15:00,100,102,99,101,5000
2026-02-02 09:16:00,101,103,100,102,6000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	bars, err := LoadCSV(path, "RELIANCE", "NSE")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(bars))
	}
	b := bars[0]
	if b.Symbol != "RELIANCE" || b.Exchange != "NSE" {
		t.Errorf("instrument = %s:%s", b.Exchange, b.Symbol)
	}
	if b.Open != 100 || b.High != 102 || b.Low != 99 || b.Close != 101 || b.Volume != 5000 {
		t.Errorf("bar = %+v", b)
	}
	want := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	if !b.TS.Equal(want) {
		t.Errorf("TS = %v, want %v", b.TS, want)
	}
}

func TestLoadCSVCloseOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.csv")
	data := `date,close
2026-02-02,250.5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	bars, err := LoadCSV(path, "X", "NSE")
	if err != nil {
		t.Fatal(err)
	}
	// Missing OHLC columns fall back to the close.
	b := bars[0]
	if b.Open != 250.5 || b.High != 250.5 || b.Low != 250.5 {
		t.Errorf("fallback OHLC = %+v", b)
	}
}

func TestLoadCSVRejectsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("open,high\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCSV(path, "X", "NSE"); err == nil {
		t.Error("CSV without datetime column should fail")
	}
}

func TestParseTimeFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-02-02T09:15:00Z", time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)},
		{"2026-02-02 09:15:00", time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)},
		{"2026-02-02", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)},
		{"1770023700", time.Unix(1770023700, 0).UTC()},
	}
	for _, c := range cases {
		got, err := parseTime(c.in)
		if err != nil {
			t.Errorf("parseTime(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("parseTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := parseTime("not a time"); err == nil {
		t.Error("garbage timestamp should fail")
	}
}

func TestLiveSourceLifecycle(t *testing.T) {
	src := NewLiveSource(4)

	if _, st := src.Next(); st != Pending {
		t.Fatalf("empty live Next = %v, want PENDING", st)
	}
	if !src.Push(barAt(0, 1)) {
		t.Fatal("push into empty ring should succeed")
	}
	if b, st := src.Next(); st != Ready || b.Close != 1 {
		t.Fatalf("Next = %v %v", b, st)
	}

	src.Push(barAt(1, 2))
	src.Close()
	// After Close the ring drains before Done.
	if _, st := src.Next(); st != Ready {
		t.Error("queued bar should drain after Close")
	}
	if _, st := src.Next(); st != Done {
		t.Error("drained closed source should be DONE")
	}
	src.Stop()
	src.Stop() // idempotent
}

func TestLiveSourceOverflow(t *testing.T) {
	src := NewLiveSource(2)
	pushed := 0
	for i := 0; i < 5; i++ {
		if src.Push(barAt(i, float64(i))) {
			pushed++
		}
	}
	if pushed >= 5 {
		t.Fatal("ring should have rejected some pushes")
	}
	if src.Overflow() == 0 {
		t.Error("Overflow should count dropped bars")
	}
	if src.Depth() == 0 {
		t.Error("Depth should report queued bars")
	}
	if got := src.HighWater(); got != 2 {
		t.Errorf("HighWater = %d, want the full ring", got)
	}
}

func TestLiveSourceStatusCallback(t *testing.T) {
	src := NewLiveSource(1)
	var got model.DataStatus
	src.OnStatus = func(st model.DataStatus) { got = st }
	src.NotifyStatus(model.StatusLive)
	if got != model.StatusLive {
		t.Errorf("status = %v, want LIVE", got)
	}
}
