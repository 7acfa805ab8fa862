// Package frame assembles and parses wake/data/checksum frames.
//
// A frame is three big-endian fields concatenated bit for bit with no
// padding:
//
//	wake(WakeBits) | data(PayloadBits) | checksum(ChecksumBits)
//
// The checksum XOR-folds the two halves of the data field and is truncated
// or zero-extended to ChecksumBits. The wake pattern is not covered.
package frame

import "fmt"

// Format holds the field layout of a frame.
type Format struct {
	// WakePattern marks the start of a frame.
	WakePattern uint64 `yaml:"wake_pattern" json:"wake_pattern"`

	// WakeBits is the width of the wake field.
	WakeBits int `yaml:"wake_bits" json:"wake_bits"`

	// PayloadBits is the width of the data field. Must be even.
	PayloadBits int `yaml:"payload_bits" json:"payload_bits"`

	// ChecksumBits is the width of the trailing checksum field.
	ChecksumBits int `yaml:"checksum_bits" json:"checksum_bits"`
}

// Validate checks the widths and the wake pattern.
func (f Format) Validate() error {
	if f.WakeBits < 1 || f.WakeBits > 64 {
		return &FormatError{Field: "wake_bits", Reason: fmt.Sprintf("must be in [1, 64], got %d", f.WakeBits)}
	}
	if f.PayloadBits < 2 || f.PayloadBits > 64 {
		return &FormatError{Field: "payload_bits", Reason: fmt.Sprintf("must be in [2, 64], got %d", f.PayloadBits)}
	}
	if f.PayloadBits%2 != 0 {
		return &FormatError{Field: "payload_bits", Reason: fmt.Sprintf("must be even for the checksum fold, got %d", f.PayloadBits)}
	}
	if f.ChecksumBits < 1 || f.ChecksumBits > 64 {
		return &FormatError{Field: "checksum_bits", Reason: fmt.Sprintf("must be in [1, 64], got %d", f.ChecksumBits)}
	}
	if f.WakePattern&^mask(f.WakeBits) != 0 {
		return &FormatError{Field: "wake_pattern", Reason: fmt.Sprintf("0x%X does not fit in %d bits", f.WakePattern, f.WakeBits)}
	}
	if f.Bits()%8 != 0 {
		return &FormatError{Field: "widths", Reason: fmt.Sprintf("frame is %d bits, not a whole number of bytes", f.Bits())}
	}
	return nil
}

// Bits returns the total frame length in bits.
func (f Format) Bits() int {
	return f.WakeBits + f.PayloadBits + f.ChecksumBits
}

// Len returns the frame length in bytes.
func (f Format) Len() int {
	return f.Bits() / 8
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<width - 1
}
