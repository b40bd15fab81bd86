package log

import "time"

// Event is one entry of the protocol trace. Exactly one of the payload
// pointers is set. CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport connection (UUID). Empty for
	// events that belong to a manager rather than a connection.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`
	LocalRole Role      `cbor:"6,keyasint"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Endpoint is the configured target (client) or listen address (server).
	Endpoint string `cbor:"8,keyasint,omitempty"`

	// PeerID is set on server side events that concern one accepted peer.
	PeerID string `cbor:"9,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the framing layer (sockets, WebSocket frames).
	LayerTransport Layer = 0
	// LayerManager is the connection lifecycle layer.
	LayerManager Layer = 1
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerManager:
		return "MANAGER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryData is an application payload (text or binary command).
	CategoryData Category = 0
	// CategoryControl is a ping, pong or close.
	CategoryControl Category = 1
	// CategoryState is a lifecycle transition.
	CategoryState Category = 2
	// CategoryError is a failure at any layer.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint dialed or accepted.
type Role uint8

const (
	RoleClient Role = 0
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// FrameType distinguishes text and binary payloads.
type FrameType uint8

const (
	FrameTypeText   FrameType = 0
	FrameTypeBinary FrameType = 1
)

// String returns the frame type name.
func (f FrameType) String() string {
	switch f {
	case FrameTypeText:
		return "TEXT"
	case FrameTypeBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// MaxLoggedPayload bounds the payload bytes kept in a FrameEvent.
const MaxLoggedPayload = 4096

// FrameEvent captures one application frame.
type FrameEvent struct {
	Type FrameType `cbor:"1,keyasint"`

	// Size is the payload size in bytes.
	Size int `cbor:"2,keyasint"`

	// Data is the payload, possibly truncated. Omitted when content
	// logging is disabled for the command.
	Data []byte `cbor:"3,keyasint,omitempty"`

	Truncated bool `cbor:"4,keyasint,omitempty"`

	// Description is the optional human readable label of a command.
	Description string `cbor:"5,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent, truncating data to MaxLoggedPayload.
// When showContent is false only the size is kept.
func NewFrameEvent(typ FrameType, data []byte, showContent bool) *FrameEvent {
	fe := &FrameEvent{Type: typ, Size: len(data)}
	if !showContent {
		return fe
	}
	if len(data) > MaxLoggedPayload {
		fe.Data = append([]byte(nil), data[:MaxLoggedPayload]...)
		fe.Truncated = true
		return fe
	}
	fe.Data = append([]byte(nil), data...)
	return fe
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is a single transport connection.
	StateEntityConnection StateEntity = 0
	// StateEntityClient is a client manager.
	StateEntityClient StateEntity = 1
	// StateEntityServer is a server manager.
	StateEntityServer StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityClient:
		return "CLIENT"
	case StateEntityServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures a transport control message.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is the WebSocket close code for close messages.
	CloseCode *int `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the listener error code, if one was reported.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes the operation in progress.
	Context string `cbor:"4,keyasint,omitempty"`
}
