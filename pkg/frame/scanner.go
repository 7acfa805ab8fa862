package frame

// Scanner finds frames in a stream of demodulated bits that may start at
// any bit offset. It keeps the last Format.Bits() bits in a shift register
// and reports a frame once the oldest field equals the wake pattern and the
// checksum matches. Candidates with a bad checksum are counted and the
// window keeps sliding.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	format   Format
	window   []byte // one bit per entry, circular
	head     int
	count    int
	rejected int
	found    int
}

// NewScanner creates a Scanner for f.
func NewScanner(f Format) (*Scanner, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{
		format: f,
		window: make([]byte, f.Bits()),
	}, nil
}

// Push shifts one bit into the register. It returns the decoded frame and
// true when the register holds a valid frame; the register is then cleared
// so the frame's bits are not matched again.
func (s *Scanner) Push(bit bool) (Decoded, bool) {
	var b byte
	if bit {
		b = 1
	}
	s.window[s.head] = b
	s.head = (s.head + 1) % len(s.window)
	if s.count < len(s.window) {
		s.count++
	}
	if s.count < len(s.window) {
		return Decoded{}, false
	}

	if s.peek(s.format.WakeBits) != s.format.WakePattern {
		return Decoded{}, false
	}

	d, err := Decode(s.bytes(), s.format)
	if err != nil || !d.ChecksumOK {
		s.rejected++
		return Decoded{}, false
	}

	s.found++
	s.Reset()
	return d, true
}

// PushByte shifts in the eight bits of b, most significant first, and
// returns every frame completed along the way.
func (s *Scanner) PushByte(b byte) []Decoded {
	var out []Decoded
	for i := 7; i >= 0; i-- {
		if d, ok := s.Push(b>>i&1 == 1); ok {
			out = append(out, d)
		}
	}
	return out
}

// Reset clears the shift register. Counters are kept.
func (s *Scanner) Reset() {
	for i := range s.window {
		s.window[i] = 0
	}
	s.head = 0
	s.count = 0
}

// Rejected returns how many wake matches failed the checksum.
func (s *Scanner) Rejected() int {
	return s.rejected
}

// Found returns how many valid frames have been reported.
func (s *Scanner) Found() int {
	return s.found
}

// peek reads the oldest n bits of a full window.
func (s *Scanner) peek(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<1 | uint64(s.window[(s.head+i)%len(s.window)])
	}
	return v
}

// bytes packs the window, oldest bit first.
func (s *Scanner) bytes() []byte {
	out := make([]byte, len(s.window)/8)
	for i := range s.window {
		if s.window[(s.head+i)%len(s.window)] == 1 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// Scan runs a fresh Scanner over b and returns every valid frame found.
func Scan(b []byte, f Format) ([]Decoded, error) {
	s, err := NewScanner(f)
	if err != nil {
		return nil, err
	}
	var out []Decoded
	for _, c := range b {
		out = append(out, s.PushByte(c)...)
	}
	return out, nil
}
