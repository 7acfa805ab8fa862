// Package tone modulates frame bits onto a sine carrier using on/off keying.
//
// A 1 bit emits SamplesPerBit samples of the carrier, a 0 bit emits the same
// number of zero samples. The carrier phase runs continuously across the
// whole frame: it only advances while a tone is emitted and is never reset
// at bit or byte boundaries, so consecutive 1 bits form one unbroken tone.
package tone

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxSample is the largest positive 16-bit sample value.
const MaxSample = math.MaxInt16

var (
	// ErrInvalidParams is returned when modulation parameters are malformed.
	ErrInvalidParams = errors.New("tone: invalid params")

	// ErrClipped is returned when a sample exceeded the 16-bit range.
	ErrClipped = errors.New("tone: sample clipped")
)

// Params holds the modulation settings.
type Params struct {
	// SampleRate is the output sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// BitDuration is how long each bit is held.
	BitDuration time.Duration `yaml:"bit_duration" json:"bit_duration"`

	// CarrierHz is the tone frequency for 1 bits.
	CarrierHz float64 `yaml:"carrier_hz" json:"carrier_hz"`

	// Amplitude is the tone peak as a fraction of MaxSample.
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
}

// Validate checks that the parameters produce a well-formed waveform.
func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalidParams, p.SampleRate)
	}
	if p.BitDuration <= 0 {
		return fmt.Errorf("%w: bit_duration must be positive, got %v", ErrInvalidParams, p.BitDuration)
	}
	if p.SamplesPerBit() < 1 {
		return fmt.Errorf("%w: bit_duration %v is shorter than one sample at %d Hz", ErrInvalidParams, p.BitDuration, p.SampleRate)
	}
	if !(p.CarrierHz > 0) || p.CarrierHz >= float64(p.SampleRate)/2 {
		return fmt.Errorf("%w: carrier_hz must be in (0, %d), got %v", ErrInvalidParams, p.SampleRate/2, p.CarrierHz)
	}
	if !(p.Amplitude > 0) || p.Amplitude > 1 {
		return fmt.Errorf("%w: amplitude must be in (0, 1], got %v", ErrInvalidParams, p.Amplitude)
	}
	return nil
}

// SamplesPerBit returns round(SampleRate * BitDuration).
func (p Params) SamplesPerBit() int {
	return int(math.Round(float64(p.SampleRate) * p.BitDuration.Seconds()))
}

// PhaseStep returns the carrier phase advance per sample in radians.
func (p Params) PhaseStep() float64 {
	return 2 * math.Pi * p.CarrierHz / float64(p.SampleRate)
}

// Peak returns the tone peak in sample units.
func (p Params) Peak() float64 {
	return p.Amplitude * MaxSample
}

// Samples returns the number of samples produced for n frame bytes.
func (p Params) Samples(n int) int {
	return 8 * n * p.SamplesPerBit()
}

// Duration returns the playback length of n frame bytes.
func (p Params) Duration(n int) time.Duration {
	return time.Duration(float64(p.Samples(n)) / float64(p.SampleRate) * float64(time.Second))
}
