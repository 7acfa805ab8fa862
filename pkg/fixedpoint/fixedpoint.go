// Package fixedpoint converts real-valued measurements to and from signed
// two's-complement fixed-point integers (Qm.n formats).
//
// Quantization rounds half to even and saturates at the signed range of the
// format. It never wraps and never returns an error for out-of-range input;
// use QuantizeChecked when saturation has to be observed.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFormat is returned when a Format cannot describe a fixed-point value.
var ErrInvalidFormat = errors.New("fixedpoint: invalid format")

// Format describes a signed fixed-point layout.
type Format struct {
	// FracBits is the number of fractional bits (F).
	FracBits int `yaml:"frac_bits" json:"frac_bits"`

	// Width is the total bit width including the sign bit (W).
	Width int `yaml:"width" json:"width"`
}

// Q7_8 is the 16-bit format with 8 fractional bits used by the telemetry payload.
var Q7_8 = Format{FracBits: 8, Width: 16}

// String returns the Qm.n name of the format.
func (f Format) String() string {
	return fmt.Sprintf("Q%d.%d", f.Width-f.FracBits-1, f.FracBits)
}

// Validate checks that the format fits in a signed 64-bit integer.
func (f Format) Validate() error {
	if f.Width < 1 || f.Width > 63 {
		return fmt.Errorf("%w: width must be in [1, 63], got %d", ErrInvalidFormat, f.Width)
	}
	if f.FracBits < 0 || f.FracBits > 64 {
		return fmt.Errorf("%w: frac_bits must be in [0, 64], got %d", ErrInvalidFormat, f.FracBits)
	}
	return nil
}

// MinInt returns the smallest representable raw integer, -2^(W-1).
func (f Format) MinInt() int64 {
	return -1 << (f.Width - 1)
}

// MaxInt returns the largest representable raw integer, 2^(W-1)-1.
func (f Format) MaxInt() int64 {
	return 1<<(f.Width-1) - 1
}

// Min returns the smallest representable real value.
func (f Format) Min() float64 {
	return float64(f.MinInt()) / f.scale()
}

// Max returns the largest representable real value.
func (f Format) Max() float64 {
	return float64(f.MaxInt()) / f.scale()
}

// Resolution returns the value of one least-significant bit, 2^-F.
func (f Format) Resolution() float64 {
	return 1 / f.scale()
}

// Mask returns a mask covering the low W bits.
func (f Format) Mask() uint64 {
	if f.Width >= 64 {
		return math.MaxUint64
	}
	return 1<<f.Width - 1
}

func (f Format) scale() float64 {
	return math.Ldexp(1, f.FracBits)
}

// Quantize converts x to the unsigned W-bit two's-complement pattern of f.
func Quantize(x float64, f Format) uint64 {
	bits, _ := QuantizeChecked(x, f)
	return bits
}

// QuantizeChecked is Quantize that also reports whether x was clipped to
// the range of f. NaN quantizes to zero and is not reported as saturated.
func QuantizeChecked(x float64, f Format) (uint64, bool) {
	if math.IsNaN(x) {
		return 0, false
	}

	raw := math.RoundToEven(x * f.scale())

	// Compare in float space against exact powers of two. MaxInt is not
	// representable as a float64 once W exceeds 54 bits.
	limit := math.Ldexp(1, f.Width-1)
	var fixed int64
	saturated := false
	switch {
	case raw < -limit:
		fixed = f.MinInt()
		saturated = true
	case raw >= limit:
		fixed = f.MaxInt()
		saturated = true
	default:
		fixed = int64(raw)
	}

	return uint64(fixed) & f.Mask(), saturated
}

// Dequantize sign-extends the low W bits of bits and scales by 2^-F.
func Dequantize(bits uint64, f Format) float64 {
	return float64(SignExtend(bits, f.Width)) / f.scale()
}

// SignExtend interprets the low width bits of v as a signed integer.
func SignExtend(v uint64, width int) int64 {
	if width >= 64 {
		return int64(v)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}
