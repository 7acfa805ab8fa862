package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat is returned when field widths or the wake pattern are malformed.
	ErrInvalidFormat = errors.New("frame: invalid format")

	// ErrPayloadRange is returned when a payload does not fit the payload field.
	ErrPayloadRange = errors.New("frame: payload does not fit payload width")

	// ErrTruncated is returned when fewer bits are available than one frame needs.
	ErrTruncated = errors.New("frame: truncated")

	// ErrChecksumMismatch reports a structurally valid frame whose checksum did not match.
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")

	// ErrWakeMismatch reports a frame whose wake field is not the configured pattern.
	ErrWakeMismatch = errors.New("frame: wake pattern mismatch")
)

// FormatError describes which field of a Format is malformed.
type FormatError struct {
	// Field is the yaml name of the offending field.
	Field string

	// Reason explains the constraint that failed.
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("frame: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidFormat.
func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}
