package format

import (
	"testing"
	"time"
)

func TestCadenceAveragesToSampleRate(t *testing.T) {
	t.Parallel()

	for _, v := range all {
		sum := 0
		for _, n := range v.Cadence {
			sum += n
		}
		// Over one full cadence cycle the consumed samples must equal the
		// audio clock exactly: sum * TimeScale == SampleRate * Duration * len.
		got := sum * v.TimeScale
		want := SampleRate * v.Duration * len(v.Cadence)
		if got != want {
			t.Errorf("%s: cadence sum %d drifts from audio clock (got %d, want %d)", v.Name, sum, got, want)
		}
	}
}

func TestNTSCCadenceCycle(t *testing.T) {
	t.Parallel()

	sum := 0
	for _, n := range NTSC.Cadence {
		sum += n
	}
	if sum != 8008 {
		t.Errorf("NTSC 5-frame cadence sum: got %d, want 8008", sum)
	}
}

func TestFrameInterval(t *testing.T) {
	t.Parallel()

	if got := PAL.FrameInterval(); got != 40*time.Millisecond {
		t.Errorf("PAL frame interval: got %v, want 40ms", got)
	}
	if got := NTSC.FrameInterval(); got != time.Duration(1001)*time.Second/30000 {
		t.Errorf("NTSC frame interval: got %v", got)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	v, ok := Lookup("pal")
	if !ok || v.Name != "PAL" {
		t.Fatalf("Lookup(pal): got %v %v", v, ok)
	}
	if _, ok := Lookup("2160p9999"); ok {
		t.Error("Lookup(2160p9999): expected miss")
	}
}
