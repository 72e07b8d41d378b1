package proto

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned when a frame body does not start with a
// complete message-type VarInt.
var ErrMalformedMessage = errors.New("malformed message")

// Packet is an outbound message.
type Packet struct {
	ID      int32
	Payload []byte
}

// Body returns the message-type VarInt followed by the payload.
func (p Packet) Body() []byte {
	body := make([]byte, 0, VarIntSize(uint32(p.ID))+len(p.Payload))
	body = AppendVarInt(body, uint32(p.ID))
	return append(body, p.Payload...)
}

// Message is a decoded inbound message.
type Message struct {
	// ID is the message-type identifier.
	ID int32
	// Payload is the body after the identifier.
	Payload []byte
	// Body is the full uncompressed body (identifier + payload).
	Body []byte
}

// DecodeMessage splits an uncompressed body into identifier and payload.
func DecodeMessage(body []byte) (Message, error) {
	id, n, err := DecodeVarInt(body)
	if err != nil {
		return Message{}, fmt.Errorf("%w: message id: %w", ErrMalformedMessage, err)
	}
	if n == 0 {
		return Message{}, fmt.Errorf("%w: truncated message id (%d bytes)", ErrMalformedMessage, len(body))
	}
	return Message{ID: int32(id), Payload: body[n:], Body: body}, nil
}
