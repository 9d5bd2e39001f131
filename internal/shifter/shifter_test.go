package shifter

import (
	"math"
	"testing"
)

func TestBypassWhenZeroOffset(t *testing.T) {
	s := New()
	s.SetOffset(0, 48000)
	if !s.Bypass() {
		t.Fatal("zero offset should be a bypass")
	}
	i, q := s.Apply(0.5, -0.25)
	if i != 0.5 || q != -0.25 {
		t.Fatalf("bypass shifter must not alter samples, got (%v, %v)", i, q)
	}
}

func TestOffsetTonePlacement(t *testing.T) {
	// A pure tone at f0 mixed with an offset of +f0 should collapse to DC:
	// the shifter subtracts the offset from the incoming spectrum, so an
	// offset equal to the tone frequency should produce a constant output.
	const sampleRate = 48000
	const toneHz = 1000
	s := New()
	s.SetOffset(toneHz, sampleRate)

	var maxDelta float32
	prevI, prevQ := float32(1), float32(0)
	for n := 0; n < 200; n++ {
		phi := 2 * math.Pi * toneHz * float64(n) / sampleRate
		i, q := float32(math.Cos(phi)), float32(math.Sin(phi))
		oi, oq := s.Apply(i, q)
		if n > 5 { // let transient settle out of the comparison window
			d := abs32(oi-prevI) + abs32(oq-prevQ)
			if d > maxDelta {
				maxDelta = d
			}
		}
		prevI, prevQ = oi, oq
	}
	if maxDelta > 0.01 {
		t.Fatalf("shifted tone should be near-DC, max sample-to-sample delta = %v", maxDelta)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
