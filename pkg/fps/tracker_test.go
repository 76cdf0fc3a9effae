package fps

import (
	"math"
	"testing"
	"time"
)

func TestTracker_HoldsUntilBoundary(t *testing.T) {
	start := time.Unix(0, 0)
	tr := New(start)

	for i := 1; i <= 10; i++ {
		tr.Tick()
		if got := tr.Snapshot(start.Add(time.Duration(i) * 90 * time.Millisecond)); got != 0 {
			t.Fatalf("tick %d: got %.2f before first boundary, want 0", i, got)
		}
	}

	tr.Tick()
	got := tr.Snapshot(start.Add(time.Second))
	if got != 11 {
		t.Fatalf("boundary: got %.2f, want 11", got)
	}

	// Inside the next window the previous value is held.
	tr.Tick()
	if held := tr.Snapshot(start.Add(1500 * time.Millisecond)); held != 11 {
		t.Errorf("held: got %.2f, want 11", held)
	}
	if tr.Pending() != 1 {
		t.Errorf("pending: got %d, want 1", tr.Pending())
	}
}

func TestTracker_UniformTicks(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{name: "30 per second", n: 30},
		{name: "60 per second", n: 60},
		{name: "7 per second", n: 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Unix(100, 0)
			tr := New(start)
			spacing := time.Second / time.Duration(tc.n)

			var got float64
			for i := 1; i <= tc.n; i++ {
				tr.Tick()
				now := start.Add(time.Duration(i) * spacing)
				if i == tc.n {
					now = start.Add(time.Second)
				}
				got = tr.Snapshot(now)
			}
			if math.Abs(got-float64(tc.n)) > 0.5 {
				t.Errorf("got %.2f, want ≈%d", got, tc.n)
			}
		})
	}
}

func TestTracker_ConvergesAt30msSpacing(t *testing.T) {
	start := time.Unix(0, 0)
	tr := New(start)

	var got float64
	for i := 1; i <= 200; i++ {
		tr.Tick()
		got = tr.Snapshot(start.Add(time.Duration(i) * 30 * time.Millisecond))
	}
	if math.Abs(got-33.3) > 0.5 {
		t.Errorf("got %.2f, want ≈33.3", got)
	}
	if tr.FPS() != got {
		t.Errorf("FPS(): got %.2f, want %.2f", tr.FPS(), got)
	}
}
