package frame

import "fmt"

// Decoded is a frame recovered from a demodulated byte sequence.
type Decoded struct {
	Wake     uint64 `json:"wake"`
	Data     uint64 `json:"data"`
	Checksum uint64 `json:"checksum"`

	// Expected is the checksum recomputed from Data.
	Expected uint64 `json:"expected"`

	WakeOK     bool `json:"wake_ok"`
	ChecksumOK bool `json:"checksum_ok"`
}

// Err returns ErrWakeMismatch or ErrChecksumMismatch for frames that
// should be discarded, or nil.
func (d Decoded) Err() error {
	if !d.WakeOK {
		return fmt.Errorf("%w: got 0x%X", ErrWakeMismatch, d.Wake)
	}
	if !d.ChecksumOK {
		return fmt.Errorf("%w: got 0x%X, want 0x%X", ErrChecksumMismatch, d.Checksum, d.Expected)
	}
	return nil
}

// Decode splits b into wake, data and checksum fields and verifies the
// checksum. Bytes after the first frame are ignored. A checksum or wake
// mismatch is reported in the result, not as an error.
func Decode(b []byte, f Format) (Decoded, error) {
	if err := f.Validate(); err != nil {
		return Decoded{}, err
	}
	if len(b)*8 < f.Bits() {
		return Decoded{}, fmt.Errorf("%w: have %d bits, need %d", ErrTruncated, len(b)*8, f.Bits())
	}

	r := bitReader{buf: b}
	d := Decoded{
		Wake:     r.read(f.WakeBits),
		Data:     r.read(f.PayloadBits),
		Checksum: r.read(f.ChecksumBits),
	}
	d.Expected = Checksum(d.Data, f)
	d.WakeOK = d.Wake == f.WakePattern
	d.ChecksumOK = d.Checksum == d.Expected
	return d, nil
}

// BlindSpots returns the data-field bit positions (0 = least significant)
// whose single-bit flip leaves the checksum unchanged. It is empty when
// ChecksumBits covers a full half of the payload.
func BlindSpots(f Format) []int {
	half := f.PayloadBits / 2
	var blind []int
	for bit := 0; bit < f.PayloadBits; bit++ {
		if bit%half >= f.ChecksumBits {
			blind = append(blind, bit)
		}
	}
	return blind
}
