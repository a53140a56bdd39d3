package line

import (
	"math"
	"testing"
)

func TestBundleByName(t *testing.T) {
	l := NewBundle(Raw, []string{"open", "high", "low", "close"}, 1)

	if l.Size() != 4 {
		t.Errorf("Size = %d, want 4", l.Size())
	}
	if l.FullSize() != 5 {
		t.Errorf("FullSize = %d, want 5", l.FullSize())
	}
	if l.ByName("close") != l.At(3) {
		t.Error("ByName(close) should be the fourth buffer")
	}
	if l.ByName("volume") != nil {
		t.Error("undeclared alias should return nil")
	}
	if l.At(4) == nil {
		t.Error("scratch buffer missing")
	}
}

func TestBundleLockStep(t *testing.T) {
	l := NewBundle(Raw, []string{"a", "b"}, 0)
	l.Forward(0, 3)

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	for i := 0; i < l.FullSize(); i++ {
		if l.At(i).Len() != 3 {
			t.Errorf("member %d Len = %d, want 3", i, l.At(i).Len())
		}
	}

	l.Backwards(1)
	if l.Len() != 2 || l.At(1).Len() != 2 {
		t.Error("Backwards should apply to every member")
	}

	l.Home()
	if l.Len() != 0 || l.BufLen() != 2 {
		t.Errorf("after Home: Len=%d BufLen=%d", l.Len(), l.BufLen())
	}
}

func TestBundleBounded(t *testing.T) {
	l := NewBundle(Derived, []string{"x"}, 0)
	if l.Bounded() {
		t.Error("fresh bundle should be unbounded")
	}
	l.QBuffer(5, 0)
	if !l.Bounded() {
		t.Error("bundle should report bounded after QBuffer")
	}
}

func TestBundleRangeSlice(t *testing.T) {
	l := NewBundle(Derived, []string{"fast", "slow"}, 1)
	for i := 1; i <= 5; i++ {
		l.Forward(math.NaN(), 1)
		l.ByName("fast").Set(0, float64(i))
		l.ByName("slow").Set(0, float64(i*10))
		l.At(2).Set(0, -1) // scratch must not leak into the table
	}

	got := l.RangeSlice(1, 4, 0)
	if len(got) != 2 {
		t.Fatalf("columns = %d, want 2", len(got))
	}
	wantFast := []float64{2, 3, 4}
	for i, v := range wantFast {
		if got["fast"][i] != v {
			t.Errorf("fast[%d] = %v, want %v", i, got["fast"][i], v)
		}
		if got["slow"][i] != v*10 {
			t.Errorf("slow[%d] = %v, want %v", i, got["slow"][i], v*10)
		}
	}

	tail := l.RangeSlice(-1, -1, 2)
	if len(tail["fast"]) != 2 || tail["fast"][0] != 4 || tail["fast"][1] != 5 {
		t.Errorf("trailing slice = %v", tail["fast"])
	}

	all := l.RangeSlice(-1, -1, 0)
	if len(all["slow"]) != 5 {
		t.Errorf("full slice length = %d, want 5", len(all["slow"]))
	}

	over := l.RangeSlice(-1, -1, 99)
	if len(over["fast"]) != 5 {
		t.Errorf("oversized back should clamp, got %d", len(over["fast"]))
	}
}
