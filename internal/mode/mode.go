// Package mode defines the IQ streaming modes the engine understands and
// their nominal sample rates.
package mode

import "fmt"

// Mode is one of the four IQ streaming modes UberSDR serves.
type Mode string

const (
	IQ48  Mode = "iq48"
	IQ96  Mode = "iq96"
	IQ192 Mode = "iq192"
	IQ384 Mode = "iq384"
)

var sampleRates = map[Mode]int{
	IQ48:  48000,
	IQ96:  96000,
	IQ192: 192000,
	IQ384: 384000,
}

// SampleRate returns the nominal sample rate in Hz for a mode, and false if
// the mode is not one of the recognized IQ modes.
func SampleRate(m Mode) (int, bool) {
	r, ok := sampleRates[m]
	return r, ok
}

// Validate returns an error if m is not one of the recognized IQ modes.
func Validate(m Mode) error {
	if _, ok := sampleRates[m]; !ok {
		return fmt.Errorf("mode: unrecognized IQ mode %q", m)
	}
	return nil
}

// BlockCadenceHz is the historical block cadence (blocks per second) that
// determines block size B = sampleRate / BlockCadenceHz. It is exposed as a
// named, overridable constant per the source ambiguity noted in spec §9:
// whether 93.75 is load-bearing or an artifact of a specific downstream API
// is not established by the original implementation, so callers that need a
// different cadence should override it explicitly rather than assume it is
// arbitrary.
const BlockCadenceHz = 93.75

// BlockSize returns B = floor(sampleRate / cadenceHz) for the given rate and
// cadence.
func BlockSize(sampleRateHz int, cadenceHz float64) int {
	if cadenceHz <= 0 {
		cadenceHz = BlockCadenceHz
	}
	return int(float64(sampleRateHz) / cadenceHz)
}
