// Package protocol defines the WebSocket event envelope the tonelink server
// broadcasts to listeners.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → listener events
	TypeEncoded MessageType = "encoded" // Frame encoded
	TypeDecoded MessageType = "decoded" // Frame decoded
	TypeScanned MessageType = "scanned" // Frames found in a byte stream
	TypeBatch   MessageType = "batch"   // Batch written to disk
	TypeError   MessageType = "error"   // Request failed

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s data: %w", msgType, err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Event payloads
// =============================================================================

// EncodedData describes one encoded frame
type EncodedData struct {
	ID        string    `json:"id"`
	Preset    string    `json:"preset"`
	Frame     string    `json:"frame"` // hex wire bytes
	Bits      string    `json:"bits"`
	Values    []float64 `json:"values,omitempty"`
	Payload   uint64    `json:"payload"`
	Samples   int       `json:"samples"`
	Peak      int       `json:"peak"`
	RMS       float64   `json:"rms"`
	DutyCycle float64   `json:"duty_cycle"` // fraction of non-zero samples
	Size      int       `json:"size"`       // container bytes
	AirtimeMs int64     `json:"airtime_ms"`
	Saturated []bool    `json:"saturated,omitempty"`
}

// DecodedData describes one parsed frame
type DecodedData struct {
	Preset     string    `json:"preset"`
	Wake       uint64    `json:"wake"`
	Data       uint64    `json:"data"`
	Checksum   uint64    `json:"checksum"`
	Expected   uint64    `json:"expected"`
	WakeOK     bool      `json:"wake_ok"`
	ChecksumOK bool      `json:"checksum_ok"`
	Values     []float64 `json:"values,omitempty"`
}

// ScannedData lists the frames found in a stream
type ScannedData struct {
	Preset string        `json:"preset"`
	Frames []DecodedData `json:"frames"`
}

// BatchData summarizes a batch run
type BatchData struct {
	ID     string   `json:"id"`
	Preset string   `json:"preset"`
	Dir    string   `json:"dir"`
	Files  []string `json:"files"`
}

// ErrorData reports a failed request
type ErrorData struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
