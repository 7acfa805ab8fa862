package fixedpoint

import (
	"errors"
	"fmt"
)

// ErrFieldCount is returned when the number of values does not match the layout.
var ErrFieldCount = errors.New("fixedpoint: value count does not match field count")

// Width returns the combined bit width of fields.
func Width(fields []Format) int {
	total := 0
	for _, f := range fields {
		total += f.Width
	}
	return total
}

// ValidateFields checks every field and that the layout fits in one 64-bit word.
func ValidateFields(fields []Format) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidFormat)
	}
	for i, f := range fields {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	if w := Width(fields); w > 64 {
		return fmt.Errorf("%w: fields span %d bits, max 64", ErrInvalidFormat, w)
	}
	return nil
}

// Pack quantizes values and concatenates them into one word, the first value
// in the most significant field. The returned slice flags which values
// saturated.
func Pack(values []float64, fields []Format) (uint64, []bool, error) {
	if len(values) != len(fields) {
		return 0, nil, fmt.Errorf("%w: %d values for %d fields", ErrFieldCount, len(values), len(fields))
	}
	if err := ValidateFields(fields); err != nil {
		return 0, nil, err
	}

	var word uint64
	saturated := make([]bool, len(values))
	for i, v := range values {
		bits, sat := QuantizeChecked(v, fields[i])
		saturated[i] = sat
		word = word<<fields[i].Width | bits
	}
	return word, saturated, nil
}

// Unpack splits word into the fields laid out by Pack and dequantizes them.
func Unpack(word uint64, fields []Format) ([]float64, error) {
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}

	values := make([]float64, len(fields))
	shift := Width(fields)
	for i, f := range fields {
		shift -= f.Width
		values[i] = Dequantize(word>>shift&f.Mask(), f)
	}
	return values, nil
}
