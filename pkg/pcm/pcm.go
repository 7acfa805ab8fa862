// Package pcm converts signed 16-bit sample buffers to and from raw bytes
// and computes simple level statistics.
package pcm

import "math"

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// SamplesToBigEndian converts int16 samples to network-order bytes (RTP L16).
func SamplesToBigEndian(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s >> 8)
		data[i*2+1] = byte(s)
	}
	return data
}

// BigEndianToSamples converts network-order bytes back to int16 samples.
func BigEndianToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2])<<8 | int16(data[i*2+1])
	}
	return samples
}

// Peak returns the largest absolute sample value.
func Peak(samples []int16) int {
	var peak int
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root mean square level of samples relative to full scale.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum/float64(len(samples))) / 32767
}

// DutyCycle returns the fraction of samples that are non-zero.
func DutyCycle(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var on int
	for _, s := range samples {
		if s != 0 {
			on++
		}
	}
	return float64(on) / float64(len(samples))
}
