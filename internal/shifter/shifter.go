// Package shifter implements the per-receiver software frequency offset
// (spec component C5): a complex-multiply oscillator that rotates each
// sample by a programmable phase increment.
package shifter

import "math"

// Shifter rotates a stream of complex samples by an accumulating phase to
// apply a software frequency offset without retuning the RF front end.
type Shifter struct {
	phase float64 // radians, wrapped to (-2*pi, 2*pi]
	delta float64 // radians per sample
}

// New returns a bypass shifter (zero offset).
func New() *Shifter {
	return &Shifter{}
}

// SetOffset recomputes the phase increment for the given software offset
// (Hz, may be negative) at the given sample rate. A positive offset rotates
// the spectrum downward by that amount, so the increment is the negated,
// rate-scaled offset: deltaPhi = -2*pi*offset/sampleRate.
func (s *Shifter) SetOffset(offsetHz int32, sampleRateHz int) {
	if sampleRateHz <= 0 {
		s.delta = 0
		return
	}
	s.delta = -2 * math.Pi * float64(offsetHz) / float64(sampleRateHz)
}

// Bypass reports whether the shifter is a no-op (zero increment).
func (s *Shifter) Bypass() bool {
	return s.delta == 0
}

// Apply rotates one sample by the current phase and advances the
// accumulator, wrapping it back into (-2*pi, 2*pi].
func (s *Shifter) Apply(i, q float32) (float32, float32) {
	if s.delta == 0 {
		return i, q
	}

	sinP, cosP := math.Sincos(s.phase)
	fi, fq := float64(i), float64(q)
	ri := fi*cosP - fq*sinP
	rq := fi*sinP + fq*cosP

	s.phase += s.delta
	if s.phase > 2*math.Pi {
		s.phase -= 2 * math.Pi
	} else if s.phase <= -2*math.Pi {
		s.phase += 2 * math.Pi
	}

	return float32(ri), float32(rq)
}

// Phase returns the current phase accumulator, mostly useful for tests.
func (s *Shifter) Phase() float64 {
	return s.phase
}
