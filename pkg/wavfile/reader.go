package wavfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

// Container is a parsed 16-bit mono PCM WAV file.
type Container struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []int16
}

// Read parses a container from r.
func Read(r io.Reader) (*Container, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Op: "read", Path: "stream", Err: err}
	}
	return Decode(data)
}

// ReadFile parses the container stored at path.
func ReadFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return Decode(data)
}

// Decode parses an in-memory container.
func Decode(data []byte) (*Container, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("wavfile: read format: %w", err)
	}
	if format.AudioFormat != formatPCM || format.NumChannels != Channels || format.BitsPerSample != BitsPerSample {
		return nil, fmt.Errorf("%w: format=%d channels=%d bits=%d",
			ErrUnsupported, format.AudioFormat, format.NumChannels, format.BitsPerSample)
	}

	c := &Container{
		SampleRate:    int(format.SampleRate),
		Channels:      int(format.NumChannels),
		BitsPerSample: int(format.BitsPerSample),
	}
	for {
		batch, err := r.ReadSamples()
		for _, s := range batch {
			c.Samples = append(c.Samples, int16(s.Values[0]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wavfile: read samples: %w", err)
		}
	}
	return c, nil
}

// Duration returns the playback length in seconds.
func (c *Container) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}
