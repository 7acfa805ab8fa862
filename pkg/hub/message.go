// Package hub fans codec events out to websocket listeners. A single Run
// goroutine owns the listener set; each Client has its own write loop.
package hub

import "github.com/teslashibe/tonelink/pkg/protocol"

// MessageType selects the websocket frame type a Message is sent as.
type MessageType int

const (
	JSONMessage   MessageType = iota // protocol envelopes
	BinaryMessage                    // raw audio, e.g. a WAV container
)

// Message is one broadcast unit, already encoded.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewEventMessage encodes a protocol envelope.
func NewEventMessage(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
