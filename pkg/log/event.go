package log

import (
	"time"
)

// Event represents a session log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID). Empty for
	// events not tied to a connection (e.g. retry attempts).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address or endpoint URL.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Identity is the user identifier the connection was opened for.
	Identity string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Connection/session state
	ControlMsg  *ControlMsgEvent  `cbor:"12,keyasint,omitempty"` // Ping/pong/ack
	Retry       *RetryEvent       `cbor:"13,keyasint,omitempty"` // Retry attempts
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
	// DirectionNone indicates an event with no message flow (state
	// changes, retry attempts).
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the connection/framing layer.
	LayerTransport Layer = 0
	// LayerSession is the credential/session layer.
	LayerSession Layer = 1
	// LayerService is the application-facing layer (retry executor,
	// dispatch).
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an application frame.
	CategoryMessage Category = 0
	// CategoryControl indicates a control frame (ping/pong/ack).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryRetry indicates a retry attempt.
	CategoryRetry Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryRetry:
		return "RETRY"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures an application frame at the transport layer.
type FrameEvent struct {
	// Type is the frame's type discriminator.
	Type string `cbor:"1,keyasint"`

	// Size is the encoded frame size in bytes.
	Size int `cbor:"2,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a duplex connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityCredentials indicates a credential lifecycle change
	// (installed, refreshed, cleared).
	StateEntityCredentials StateEntity = 1
	// StateEntityReachability indicates a network path change.
	StateEntityReachability StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityCredentials:
		return "CREDENTIALS"
	case StateEntityReachability:
		return "REACHABILITY"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control frames.
type ControlMsgEvent struct {
	// Type of control frame.
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ControlMsgType indicates the type of control frame.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a heartbeat ping.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates a heartbeat pong.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgAck indicates the server's handshake acknowledgement.
	ControlMsgAck ControlMsgType = 2
)

// String returns the control frame type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// RetryEvent captures one attempt inside a retried operation.
type RetryEvent struct {
	// CorrelationID ties together all attempts of one logical operation.
	CorrelationID string `cbor:"1,keyasint"`

	// Attempt is the 1-based attempt number.
	Attempt int `cbor:"2,keyasint"`

	// Delay is the backoff delay scheduled before the next attempt.
	// Stored as nanoseconds; zero on success or terminal failure.
	Delay time.Duration `cbor:"3,keyasint,omitempty"`

	// Outcome describes the attempt result ("success", or the error
	// kind for failures).
	Outcome string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Kind is the classified error kind (if classified).
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
