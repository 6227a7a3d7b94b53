package timesync

import (
	"math"
	"testing"
)

func TestHourToLoopPercentAnchors(t *testing.T) {
	cases := []struct {
		hour float64
		want float64
	}{
		{6, 0},
		{18, 0.5},
		{0, 0.75},
		{12, 0.25},
		{30, 0}, // 30 mod 24 == 6
		{-6, 0.5},
	}
	for _, tc := range cases {
		got := HourToLoopPercent(tc.hour)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("HourToLoopPercent(%v) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestLoopPercentToHourAnchors(t *testing.T) {
	cases := []struct {
		percent float64
		want    float64
	}{
		{0, 6},
		{0.5, 18},
		{0.75, 0},
		{1.25, 12}, // reduced mod 1 first
		{-0.25, 0},
	}
	for _, tc := range cases {
		got := LoopPercentToHour(tc.percent)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("LoopPercentToHour(%v) = %v, want %v", tc.percent, got, tc.want)
		}
	}
}

func TestHourPercentRoundTrip(t *testing.T) {
	for h := 0.0; h < 24.0; h += 0.25 {
		got := LoopPercentToHour(HourToLoopPercent(h))
		if math.Abs(got-h) > 0.1 {
			t.Fatalf("round trip for hour %v = %v", h, got)
		}
	}
}

func TestHourToElapsedMs(t *testing.T) {
	const totalMs = 120000.0 // 5000 ms per semantic hour

	if got := HourToElapsedMs(6, totalMs); got != 0 {
		t.Fatalf("HourToElapsedMs(6) = %v, want 0", got)
	}
	if got := HourToElapsedMs(18, totalMs); got != totalMs/2 {
		t.Fatalf("HourToElapsedMs(18) = %v, want %v", got, totalMs/2)
	}
	if got := HourToElapsedMs(7.5, totalMs); math.Abs(got-7500) > 1e-9 {
		t.Fatalf("HourToElapsedMs(7.5) = %v, want 7500", got)
	}
}

func TestElapsedMsToHourTruncates(t *testing.T) {
	const totalMs = 120000.0

	if got := ElapsedMsToHour(0, totalMs); got != 6 {
		t.Fatalf("ElapsedMsToHour(0) = %d, want 6", got)
	}
	// 7400 ms is inside the second hour bucket; sub-hour part must be dropped.
	if got := ElapsedMsToHour(7400, totalMs); got != 7 {
		t.Fatalf("ElapsedMsToHour(7400) = %d, want 7", got)
	}
	// Wraps past the end of the loop.
	if got := ElapsedMsToHour(totalMs+2500, totalMs); got != 6 {
		t.Fatalf("ElapsedMsToHour(total+2500) = %d, want 6", got)
	}
	// Midnight bucket sits three quarters through the loop.
	if got := ElapsedMsToHour(totalMs*0.75, totalMs); got != 0 {
		t.Fatalf("ElapsedMsToHour(0.75*total) = %d, want 0", got)
	}
	// A non-positive loop has no phase; the loop-start hour comes back.
	if got := ElapsedMsToHour(5000, 0); got != int(LoopStartHour) {
		t.Fatalf("ElapsedMsToHour with zero loop = %d, want %v", got, LoopStartHour)
	}
	if got := ElapsedMsToHour(5000, -100); got != int(LoopStartHour) {
		t.Fatalf("ElapsedMsToHour with negative loop = %d, want %v", got, LoopStartHour)
	}
}

func TestElapsedHourRoundTrip(t *testing.T) {
	const totalMs = 120000.0
	for h := 0; h < 24; h++ {
		elapsed := HourToElapsedMs(float64(h), totalMs)
		if got := ElapsedMsToHour(elapsed, totalMs); got != h {
			t.Fatalf("round trip for hour %d = %d", h, got)
		}
	}
}

func TestModNeverNegative(t *testing.T) {
	for _, x := range []float64{-1000.5, -24, -0.001, 0, 3.7, 1e9} {
		got := Mod(x, 24)
		if got < 0 || got >= 24 {
			t.Fatalf("Mod(%v, 24) = %v, out of range", x, got)
		}
	}
}
