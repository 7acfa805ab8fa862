package codec

import "errors"

var (
	// ErrInvalidConfig is returned for malformed field widths, payload
	// layouts or modulation parameters.
	ErrInvalidConfig = errors.New("codec: invalid config")

	// ErrUnknownPreset is returned when a preset name is not registered.
	ErrUnknownPreset = errors.New("codec: unknown preset")

	// ErrPayloadKind is returned when values are supplied for a raw payload.
	ErrPayloadKind = errors.New("codec: payload kind does not accept values")

	// ErrSaturated reports that at least one value was clipped during
	// quantization. Encoding still succeeds; see Result.Err.
	ErrSaturated = errors.New("codec: value saturated")
)
