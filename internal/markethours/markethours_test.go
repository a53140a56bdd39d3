package markethours

import (
	"testing"
	"time"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid session", ist(2026, time.February, 2, 11, 0), true}, // Monday
		{"before open", ist(2026, time.February, 2, 9, 0), false},
		{"at open", ist(2026, time.February, 2, 9, 15), true},
		{"at close", ist(2026, time.February, 2, 15, 30), false},
		{"saturday", ist(2026, time.February, 7, 11, 0), false},
		{"republic day", ist(2026, time.January, 26, 11, 0), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	// Friday after close -> Monday 9:15.
	fri := ist(2026, time.February, 6, 16, 0)
	next := NextOpen(fri)
	want := ist(2026, time.February, 9, 9, 15)
	if !next.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", next, want)
	}
}

func TestNextOpenSameDayBeforeOpen(t *testing.T) {
	early := ist(2026, time.February, 2, 8, 0)
	want := ist(2026, time.February, 2, 9, 15)
	if next := NextOpen(early); !next.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", next, want)
	}
}

func TestTimeUntilClose(t *testing.T) {
	at := ist(2026, time.February, 2, 15, 0)
	if d := TimeUntilClose(at); d != 30*time.Minute {
		t.Errorf("TimeUntilClose = %v, want 30m", d)
	}
	after := ist(2026, time.February, 2, 16, 0)
	if d := TimeUntilClose(after); d != 0 {
		t.Errorf("TimeUntilClose after close = %v, want 0", d)
	}
}
