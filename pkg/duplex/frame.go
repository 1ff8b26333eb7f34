package duplex

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/novafeed/sessionkit-go/pkg/sesserr"
)

// Control frame types. Application frame types are free-form strings
// chosen by the backend protocol.
const (
	// FrameTypePing is the client heartbeat.
	FrameTypePing = "ping"

	// FrameTypePong is the server heartbeat answer. Informational only:
	// a missing pong is not by itself a failure signal, the transport
	// error callback is the primary failure detector.
	FrameTypePong = "pong"

	// FrameTypeAck is the server's handshake acknowledgement. The
	// connection is not Connected until it arrives.
	FrameTypeAck = "connection_ack"
)

// Frame errors.
var (
	// ErrMissingType indicates a frame without a type discriminator.
	ErrMissingType = errors.New("frame has no type")
)

// Frame is one message on the duplex connection: UTF-8 JSON with a
// mandatory type discriminator.
type Frame struct {
	// Type routes the frame to subscribers.
	Type string `json:"type"`

	// ID correlates frames when the backend echoes it back. Optional.
	ID string `json:"id,omitempty"`

	// Payload is the frame body, left opaque for subscribers to decode.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame encodes a frame to its wire form.
// A frame without a type is a local bug and classifies as malformed.
func EncodeFrame(f Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, sesserr.Malformed(ErrMissingType)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, sesserr.Malformed(fmt.Errorf("encoding frame: %w", err))
	}
	return data, nil
}

// DecodeFrame decodes a wire frame. Inbound decode failures are reported
// to the caller, which logs and skips the frame; one bad frame must not
// terminate the receive loop.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, ErrMissingType
	}
	return f, nil
}
