package codec

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teslashibe/tonelink/pkg/fixedpoint"
	"github.com/teslashibe/tonelink/pkg/frame"
	"github.com/teslashibe/tonelink/pkg/tone"
)

// PayloadKind selects how the data field is interpreted.
type PayloadKind string

const (
	// PayloadRaw treats the data field as an opaque integer.
	PayloadRaw PayloadKind = "raw"
	// PayloadFixed packs fixed-point values, first value most significant.
	PayloadFixed PayloadKind = "fixed"
)

// Payload describes the layout of the data field.
type Payload struct {
	Kind   PayloadKind         `yaml:"kind" json:"kind"`
	Fields []fixedpoint.Format `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Config is the complete, immutable description of one codec variant.
type Config struct {
	Name    string       `yaml:"name" json:"name"`
	Frame   frame.Format `yaml:"frame" json:"frame"`
	Tone    tone.Params  `yaml:"tone" json:"tone"`
	Payload Payload      `yaml:"payload" json:"payload"`
}

// Preset names.
const (
	NameTelemetry = "telemetry"
	NameLiteral   = "literal"
)

// Telemetry is the desktop telemetry variant: a 16-bit wake pattern and two
// Q7.8 values at 300 ms per bit on a 440 Hz carrier.
func Telemetry() Config {
	return Config{
		Name: NameTelemetry,
		Frame: frame.Format{
			WakePattern:  0xD5AA,
			WakeBits:     16,
			PayloadBits:  32,
			ChecksumBits: 16,
		},
		Tone: tone.Params{
			SampleRate:  44100,
			BitDuration: 300 * time.Millisecond,
			CarrierHz:   440,
			Amplitude:   0.5,
		},
		Payload: Payload{
			Kind:   PayloadFixed,
			Fields: []fixedpoint.Format{fixedpoint.Q7_8, fixedpoint.Q7_8},
		},
	}
}

// Literal is the handset variant: an 8-bit wake pattern and a raw 32-bit
// word at 50 ms per bit on a 1 kHz carrier.
func Literal() Config {
	return Config{
		Name: NameLiteral,
		Frame: frame.Format{
			WakePattern:  0xAA,
			WakeBits:     8,
			PayloadBits:  32,
			ChecksumBits: 16,
		},
		Tone: tone.Params{
			SampleRate:  44100,
			BitDuration: 50 * time.Millisecond,
			CarrierHz:   1000,
			Amplitude:   0.5,
		},
		Payload: Payload{Kind: PayloadRaw},
	}
}

// DefaultConfig returns the telemetry preset.
func DefaultConfig() Config {
	return Telemetry()
}

// Presets returns every built-in preset keyed by name.
func Presets() map[string]Config {
	return map[string]Config{
		NameTelemetry: Telemetry(),
		NameLiteral:   Literal(),
	}
}

// Registry resolves preset names, including user-defined configs.
type Registry struct {
	configs map[string]Config
}

// NewRegistry returns a registry seeded with the built-in presets.
func NewRegistry() *Registry {
	return &Registry{configs: Presets()}
}

// Add validates cfg and registers it under cfg.Name, replacing any entry
// with the same name.
func (r *Registry) Add(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: preset name is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.configs[strings.ToLower(cfg.Name)] = cfg.Clone()
	return nil
}

// Lookup returns the config registered as name. "a" and "b" are accepted
// as aliases of the telemetry and literal presets.
func (r *Registry) Lookup(name string) (Config, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "a":
		key = NameTelemetry
	case "b":
		key = NameLiteral
	}
	cfg, ok := r.configs[key]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return cfg.Clone(), nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a built-in preset.
func Lookup(name string) (Config, error) {
	return NewRegistry().Lookup(name)
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.Payload.Fields = append([]fixedpoint.Format(nil), c.Payload.Fields...)
	return c
}

// Validate checks every part of the config. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Frame.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Tone.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Payload.Kind {
	case PayloadRaw:
		if len(c.Payload.Fields) != 0 {
			return fmt.Errorf("%w: raw payload must not declare fields", ErrInvalidConfig)
		}
	case PayloadFixed:
		if err := fixedpoint.ValidateFields(c.Payload.Fields); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if w := fixedpoint.Width(c.Payload.Fields); w != c.Frame.PayloadBits {
			return fmt.Errorf("%w: payload fields span %d bits, frame carries %d", ErrInvalidConfig, w, c.Frame.PayloadBits)
		}
	default:
		return fmt.Errorf("%w: unknown payload kind %q", ErrInvalidConfig, c.Payload.Kind)
	}
	return nil
}

// FrameBytes returns the length of one frame in bytes.
func (c Config) FrameBytes() int {
	return c.Frame.Len()
}

// SampleCount returns the number of samples one frame modulates to.
func (c Config) SampleCount() int {
	return c.Tone.Samples(c.Frame.Len())
}

// Airtime returns how long one frame takes to play.
func (c Config) Airtime() time.Duration {
	return c.Tone.Duration(c.Frame.Len())
}
