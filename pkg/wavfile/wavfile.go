// Package wavfile serializes sample buffers as 16-bit mono PCM WAV files.
//
// The output is the canonical 44-byte RIFF/WAVE header followed by the
// little-endian samples:
//
//	"RIFF" <36+data> "WAVE" "fmt " <16> <1> <1> <rate> <rate*2> <2> <16> "data" <data>
package wavfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

const (
	// HeaderSize is the size of the RIFF/WAVE header in bytes.
	HeaderSize = 44

	// BitsPerSample is the only supported sample depth.
	BitsPerSample = 16

	// Channels is the only supported channel count.
	Channels = 1

	formatPCM = 1
)

var (
	// ErrIO wraps failures writing or reading container files.
	ErrIO = errors.New("wavfile: i/o failure")

	// ErrInvalidRate is returned for non-positive sample rates.
	ErrInvalidRate = errors.New("wavfile: sample rate must be positive")

	// ErrUnsupported is returned when reading a container that is not 16-bit mono PCM.
	ErrUnsupported = errors.New("wavfile: unsupported format")

	// ErrTooLarge is returned when the payload does not fit a 32-bit RIFF size.
	ErrTooLarge = errors.New("wavfile: payload too large")
)

// IOError records the operation and path of a failed file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("wavfile: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is matches ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// Header lists the derived fields of a container header.
type Header struct {
	RIFFSize      uint32 `json:"riff_size"`
	AudioFormat   uint16 `json:"audio_format"`
	Channels      uint16 `json:"channels"`
	SampleRate    uint32 `json:"sample_rate"`
	ByteRate      uint32 `json:"byte_rate"`
	BlockAlign    uint16 `json:"block_align"`
	BitsPerSample uint16 `json:"bits_per_sample"`
	DataSize      uint32 `json:"data_size"`
}

// NewHeader derives the header for n samples at sampleRate.
func NewHeader(n, sampleRate int) Header {
	data := uint32(n * 2)
	return Header{
		RIFFSize:      36 + data,
		AudioFormat:   formatPCM,
		Channels:      Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: BitsPerSample,
		DataSize:      data,
	}
}

// Encode returns the complete container for samples.
func Encode(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidRate, sampleRate)
	}
	if uint64(len(samples))*2+36 > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d samples", ErrTooLarge, len(samples))
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(samples)*2)

	w := wav.NewWriter(&buf, uint32(len(samples)), Channels, uint32(sampleRate), BitsPerSample)
	if err := w.WriteSamples(toWavSamples(samples)); err != nil {
		return nil, fmt.Errorf("wavfile: encode samples: %w", err)
	}

	if buf.Len() != HeaderSize+len(samples)*2 {
		return nil, fmt.Errorf("wavfile: encoded %d bytes, want %d", buf.Len(), HeaderSize+len(samples)*2)
	}
	return buf.Bytes(), nil
}

// Write encodes samples and writes the container to w in one call.
func Write(w io.Writer, samples []int16, sampleRate int) error {
	data, err := Encode(samples, sampleRate)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return &IOError{Op: "write", Path: "stream", Err: err}
	}
	return nil
}

// WriteFile writes the container for samples to path. The file is closed
// on every path; a failed close is reported like a failed write.
func WriteFile(path string, samples []int16, sampleRate int) error {
	data, err := Encode(samples, sampleRate)
	if err != nil {
		return err
	}
	return WriteBytes(path, data)
}

// WriteBytes persists an already encoded container to path.
func WriteBytes(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Path: path, Err: cerr}
		}
	}()

	if _, err := f.Write(data); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func toWavSamples(samples []int16) []wav.Sample {
	out := make([]wav.Sample, len(samples))
	for i, s := range samples {
		out[i] = wav.Sample{Values: [2]int{int(s), int(s)}}
	}
	return out
}
