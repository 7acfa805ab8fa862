package frame

import (
	"fmt"
	"strings"
)

// Frame is an assembled wake/data/checksum frame.
type Frame struct {
	Format   Format
	Wake     uint64
	Data     uint64
	Checksum uint64
}

// Checksum XOR-folds the high and low halves of data and fits the result
// to f.ChecksumBits.
func Checksum(data uint64, f Format) uint64 {
	half := f.PayloadBits / 2
	hi := data >> half & mask(half)
	lo := data & mask(half)
	return (hi ^ lo) & mask(f.ChecksumBits)
}

// Build assembles a frame around payload using the format's wake pattern.
func Build(f Format, payload uint64) (Frame, error) {
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	if payload&^mask(f.PayloadBits) != 0 {
		return Frame{}, fmt.Errorf("%w: 0x%X in %d bits", ErrPayloadRange, payload, f.PayloadBits)
	}

	return Frame{
		Format:   f,
		Wake:     f.WakePattern,
		Data:     payload,
		Checksum: Checksum(payload, f),
	}, nil
}

// BuildBytes is Build followed by Bytes.
func BuildBytes(f Format, payload uint64) ([]byte, error) {
	fr, err := Build(f, payload)
	if err != nil {
		return nil, err
	}
	return fr.Bytes(), nil
}

// Bytes returns the wire form of the frame.
func (fr Frame) Bytes() []byte {
	w := bitWriter{buf: make([]byte, 0, fr.Format.Len())}
	w.write(fr.Wake, fr.Format.WakeBits)
	w.write(fr.Data, fr.Format.PayloadBits)
	w.write(fr.Checksum, fr.Format.ChecksumBits)
	return w.buf
}

// BitString renders the wire form as a string of '0' and '1'.
func (fr Frame) BitString() string {
	return BitString(fr.Bytes())
}

// BitString renders b most-significant bit first.
func BitString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 8)
	for _, c := range b {
		fmt.Fprintf(&sb, "%08b", c)
	}
	return sb.String()
}

// bitWriter appends fields most-significant bit first.
type bitWriter struct {
	buf  []byte
	nbit int
}

func (w *bitWriter) write(v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> (w.nbit % 8)
		}
		w.nbit++
	}
}

// bitReader reads fields most-significant bit first.
type bitReader struct {
	buf  []byte
	nbit int
}

func (r *bitReader) read(width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		b := r.buf[r.nbit/8] >> (7 - r.nbit%8) & 1
		v = v<<1 | uint64(b)
		r.nbit++
	}
	return v
}
