package protocol

import (
	"encoding/hex"
	"time"

	"github.com/teslashibe/tonelink/pkg/codec"
	"github.com/teslashibe/tonelink/pkg/pcm"
)

// NewEncodedMessage describes res. values is nil for raw payloads.
func NewEncodedMessage(id string, res *codec.Result, values []float64) (*Message, error) {
	return NewMessage(TypeEncoded, EncodedData{
		ID:        id,
		Preset:    res.Config.Name,
		Frame:     hex.EncodeToString(res.Bytes),
		Bits:      res.Frame.BitString(),
		Values:    values,
		Payload:   res.Frame.Data,
		Samples:   len(res.Samples),
		Peak:      pcm.Peak(res.Samples),
		RMS:       pcm.RMS(res.Samples),
		DutyCycle: pcm.DutyCycle(res.Samples),
		Size:      len(res.Audio),
		AirtimeMs: res.Config.Airtime().Milliseconds(),
		Saturated: res.Saturated,
	})
}

// DecodedFrom converts a codec result into its event payload.
func DecodedFrom(preset string, d *codec.Decoded) DecodedData {
	return DecodedData{
		Preset:     preset,
		Wake:       d.Wake,
		Data:       d.Data,
		Checksum:   d.Checksum,
		Expected:   d.Expected,
		WakeOK:     d.WakeOK,
		ChecksumOK: d.ChecksumOK,
		Values:     d.Values,
	}
}

// NewDecodedMessage creates a decoded event
func NewDecodedMessage(preset string, d *codec.Decoded) (*Message, error) {
	return NewMessage(TypeDecoded, DecodedFrom(preset, d))
}

// NewScannedMessage creates a scanned event
func NewScannedMessage(preset string, found []*codec.Decoded) (*Message, error) {
	frames := make([]DecodedData, 0, len(found))
	for _, d := range found {
		frames = append(frames, DecodedFrom(preset, d))
	}
	return NewMessage(TypeScanned, ScannedData{Preset: preset, Frames: frames})
}

// NewBatchMessage creates a batch event
func NewBatchMessage(id, preset, dir string, files []string) (*Message, error) {
	return NewMessage(TypeBatch, BatchData{ID: id, Preset: preset, Dir: dir, Files: files})
}

// NewErrorMessage creates an error event
func NewErrorMessage(op string, err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Op: op, Message: err.Error()})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage answers ping
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// =============================================================================
// Typed accessors
// =============================================================================

// GetEncodedData parses encoded event data
func (m *Message) GetEncodedData() (*EncodedData, error) {
	var data EncodedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDecodedData parses decoded event data
func (m *Message) GetDecodedData() (*DecodedData, error) {
	var data DecodedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetScannedData parses scanned event data
func (m *Message) GetScannedData() (*ScannedData, error) {
	var data ScannedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData parses ping data
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData parses pong data
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
