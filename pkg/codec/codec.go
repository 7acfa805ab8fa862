// Package codec runs the full audio frame pipeline: quantize payload values,
// assemble the frame, modulate it onto a tone and wrap the samples in a WAV
// container. Decoding runs the dual pipeline on demodulated bytes.
//
// Every function here is a pure computation over its arguments. Concurrent
// calls never share a phase accumulator or sample buffer.
package codec

import (
	"fmt"

	"github.com/teslashibe/tonelink/pkg/fixedpoint"
	"github.com/teslashibe/tonelink/pkg/frame"
	"github.com/teslashibe/tonelink/pkg/tone"
	"github.com/teslashibe/tonelink/pkg/wavfile"
)

// Result holds every stage's output for one encoded frame.
type Result struct {
	Config Config
	Frame  frame.Frame

	// Bytes is the frame wire form.
	Bytes []byte

	// Samples is the modulated waveform.
	Samples []int16

	// Audio is the complete WAV container.
	Audio []byte

	// Saturated flags, per payload value, whether quantization clipped it.
	// Nil for raw payloads.
	Saturated []bool
}

// AnySaturated reports whether any payload value was clipped.
func (r *Result) AnySaturated() bool {
	for _, s := range r.Saturated {
		if s {
			return true
		}
	}
	return false
}

// Err returns ErrSaturated if any value was clipped, for callers that treat
// saturation as a failure.
func (r *Result) Err() error {
	if !r.AnySaturated() {
		return nil
	}
	var idx []int
	for i, s := range r.Saturated {
		if s {
			idx = append(idx, i)
		}
	}
	return fmt.Errorf("%w: values %v", ErrSaturated, idx)
}

// Decoded is a recovered frame plus its payload values.
type Decoded struct {
	frame.Decoded

	// Values holds the dequantized payload for fixed-point layouts.
	Values []float64 `json:"values,omitempty"`
}

// Encode quantizes values into the payload of cfg and runs the pipeline.
func Encode(cfg Config, values []float64) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Payload.Kind != PayloadFixed {
		return nil, fmt.Errorf("%w: %s", ErrPayloadKind, cfg.Payload.Kind)
	}

	word, saturated, err := fixedpoint.Pack(values, cfg.Payload.Fields)
	if err != nil {
		return nil, err
	}

	res, err := encode(cfg, word)
	if err != nil {
		return nil, err
	}
	res.Saturated = saturated
	return res, nil
}

// EncodeRaw runs the pipeline with payload as the literal data field.
func EncodeRaw(cfg Config, payload uint64) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return encode(cfg, payload)
}

func encode(cfg Config, payload uint64) (*Result, error) {
	fr, err := frame.Build(cfg.Frame, payload)
	if err != nil {
		return nil, err
	}
	b := fr.Bytes()

	samples, err := tone.Modulate(b, cfg.Tone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	audio, err := wavfile.Encode(samples, cfg.Tone.SampleRate)
	if err != nil {
		return nil, err
	}

	return &Result{
		Config:  cfg,
		Frame:   fr,
		Bytes:   b,
		Samples: samples,
		Audio:   audio,
	}, nil
}

// WriteFile persists the container of res to path.
func WriteFile(path string, res *Result) error {
	return wavfile.WriteBytes(path, res.Audio)
}

// Decode parses one frame from b and, for fixed-point payloads, recovers
// the values. A checksum mismatch is reported in the result.
func Decode(cfg Config, b []byte) (*Decoded, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := frame.Decode(b, cfg.Frame)
	if err != nil {
		return nil, err
	}
	return withValues(cfg, d)
}

// Scan finds every valid frame in a demodulated byte stream.
func Scan(cfg Config, b []byte) ([]*Decoded, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	found, err := frame.Scan(b, cfg.Frame)
	if err != nil {
		return nil, err
	}

	out := make([]*Decoded, 0, len(found))
	for _, d := range found {
		dec, err := withValues(cfg, d)
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, nil
}

func withValues(cfg Config, d frame.Decoded) (*Decoded, error) {
	out := &Decoded{Decoded: d}
	if cfg.Payload.Kind != PayloadFixed {
		return out, nil
	}
	values, err := fixedpoint.Unpack(d.Data, cfg.Payload.Fields)
	if err != nil {
		return nil, err
	}
	out.Values = values
	return out, nil
}
