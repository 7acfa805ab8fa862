package tone

import (
	"fmt"
	"math"
)

const twoPi = 2 * math.Pi

// Modulator turns bits into samples while carrying the carrier phase from
// one call to the next. Create one per frame or stream; a Modulator must
// not be shared between goroutines.
type Modulator struct {
	params  Params
	spb     int
	step    float64
	peak    float64
	phase   float64
	clipped int
}

// NewModulator validates p and returns a Modulator at phase zero.
func NewModulator(p Params) (*Modulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Modulator{
		params: p,
		spb:    p.SamplesPerBit(),
		step:   p.PhaseStep(),
		peak:   p.Peak(),
	}, nil
}

// AppendBit appends the samples for one bit to dst.
func (m *Modulator) AppendBit(dst []int16, bit bool) []int16 {
	if !bit {
		for i := 0; i < m.spb; i++ {
			dst = append(dst, 0)
		}
		return dst
	}

	for i := 0; i < m.spb; i++ {
		dst = append(dst, m.sample())
		m.phase += m.step
		if m.phase >= twoPi {
			m.phase -= twoPi
		}
	}
	return dst
}

// AppendByte appends the samples for b, most significant bit first.
func (m *Modulator) AppendByte(dst []int16, b byte) []int16 {
	for i := 7; i >= 0; i-- {
		dst = m.AppendBit(dst, b>>i&1 == 1)
	}
	return dst
}

// Phase returns the current carrier phase in [0, 2*pi).
func (m *Modulator) Phase() float64 {
	return m.phase
}

// Clipped returns how many samples were clipped to the 16-bit range.
func (m *Modulator) Clipped() int {
	return m.clipped
}

// Reset returns the phase and clip counter to zero.
func (m *Modulator) Reset() {
	m.phase = 0
	m.clipped = 0
}

func (m *Modulator) sample() int16 {
	v := math.Round(m.peak * math.Sin(m.phase))
	switch {
	case v > math.MaxInt16:
		m.clipped++
		return math.MaxInt16
	case v < math.MinInt16:
		m.clipped++
		return math.MinInt16
	}
	return int16(v)
}

// Modulate converts frame into a complete sample buffer of exactly
// p.Samples(len(frame)) samples. Clipping can only happen with an
// amplitude outside (0, 1] and is reported as ErrClipped along with the
// clipped buffer.
func Modulate(frame []byte, p Params) ([]int16, error) {
	m, err := NewModulator(p)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, 0, p.Samples(len(frame)))
	for _, b := range frame {
		samples = m.AppendByte(samples, b)
	}

	if m.clipped > 0 {
		return samples, fmt.Errorf("%w: %d samples", ErrClipped, m.clipped)
	}
	return samples, nil
}
