package transport

import "github.com/tether-io/tether-go/pkg/log"

// FrameType distinguishes text and binary payloads.
type FrameType uint8

const (
	FrameText FrameType = iota + 1
	FrameBinary
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "TEXT"
	case FrameBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

func (t FrameType) logType() log.FrameType {
	if t == FrameBinary {
		return log.FrameTypeBinary
	}
	return log.FrameTypeText
}

// Frame is one application message travelling over a connection.
type Frame struct {
	Type FrameType
	Data []byte

	// Description labels the frame in protocol traces.
	Description string

	// Redact keeps the payload out of protocol traces; only its size is
	// recorded.
	Redact bool

	// Silent frames are not traced at all.
	Silent bool
}

// TextFrame returns a text frame carrying s.
func TextFrame(s string) Frame {
	return Frame{Type: FrameText, Data: []byte(s)}
}

// BinaryFrame returns a binary frame carrying b.
func BinaryFrame(b []byte) Frame {
	return Frame{Type: FrameBinary, Data: b}
}
