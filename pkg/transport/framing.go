package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Framing selects how frames are delimited on a plain socket.
type Framing uint8

const (
	// FramingLine delimits text frames with '\n'. Inbound data is split on
	// newlines and delivered as text.
	FramingLine Framing = iota
	// FramingLengthPrefix prefixes each frame with a 4-byte big-endian
	// length. Inbound data is delivered as binary.
	FramingLengthPrefix
)

// String returns the framing name.
func (f Framing) String() string {
	switch f {
	case FramingLine:
		return "line"
	case FramingLengthPrefix:
		return "length-prefix"
	default:
		return "unknown"
	}
}

// ParseFraming parses a framing name as produced by String.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "line":
		return FramingLine, nil
	case "length-prefix":
		return FramingLengthPrefix, nil
	default:
		return 0, fmt.Errorf("unknown framing %q", s)
	}
}

const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize bounds a single inbound frame (64 KB).
	DefaultMaxFrameSize = 65536
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames.
type FrameWriter struct {
	w       io.Writer
	maxSize int
}

// NewFrameWriter creates a FrameWriter. maxSize <= 0 means
// DefaultMaxFrameSize.
func NewFrameWriter(w io.Writer, maxSize int) *FrameWriter {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameWriter{w: w, maxSize: maxSize}
}

// WriteFrame writes the prefix and payload in a single Write call.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > fw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxSize)
	}
	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameReader reads length-prefixed frames.
type FrameReader struct {
	r         io.Reader
	maxSize   int
	lengthBuf [LengthPrefixSize]byte
}

// NewFrameReader creates a FrameReader. maxSize <= 0 means
// DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: r, maxSize: maxSize}
}

// ReadFrame returns the next payload. A clean end of stream between
// frames is io.EOF; violations of the framing are wrapped in ErrProtocol.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocolError(ErrFrameTruncated)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if length == 0 {
		return nil, protocolError(ErrMessageEmpty)
	}
	if int64(length) > int64(fr.maxSize) {
		return nil, protocolError(fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, fr.maxSize))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, protocolError(ErrFrameTruncated)
		}
		return nil, err
	}
	return payload, nil
}

// LineReader splits a stream into newline-terminated lines. The
// terminator and a preceding '\r' are stripped.
type LineReader struct {
	r       *bufio.Reader
	maxSize int
}

// NewLineReader creates a LineReader. maxSize <= 0 means
// DefaultMaxFrameSize.
func NewLineReader(r io.Reader, maxSize int) *LineReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &LineReader{r: bufio.NewReaderSize(r, 4096), maxSize: maxSize}
}

// ReadLine returns the next line. A final unterminated line is returned
// before io.EOF. Lines longer than the limit are a protocol error.
func (lr *LineReader) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		if len(line)+len(chunk) > lr.maxSize+2 {
			return nil, protocolError(fmt.Errorf("%w: line exceeds %d bytes", ErrMessageTooLarge, lr.maxSize))
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return trimEOL(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return trimEOL(line), nil
		default:
			return nil, err
		}
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
