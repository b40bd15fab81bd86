package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

// Capability tags what a Stage takes part in.
type Capability uint8

const (
	CapInbound Capability = 1 << iota
	CapOutbound
)

// Stage is one element of a connection pipeline. A stage implements
// InboundStage, OutboundStage or both, matching its capabilities.
type Stage interface {
	Name() string
	Capabilities() Capability
}

// InboundStage transforms or inspects frames read from the peer.
type InboundStage interface {
	Stage
	Inbound(c Conn, f Frame) (Frame, error)
}

// OutboundStage transforms or inspects frames before they are enqueued.
type OutboundStage interface {
	Stage
	Outbound(c Conn, f Frame) (Frame, error)
}

// Pipeline is an ordered list of stages fixed at construction. The first
// stage sits next to the network: inbound frames pass the stages in order,
// outbound frames in reverse order.
type Pipeline struct {
	names    []string
	inbound  []InboundStage
	outbound []OutboundStage
}

// NewPipeline builds a pipeline. It fails when a stage advertises a
// capability it does not implement.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	p := &Pipeline{}
	for _, s := range stages {
		if s == nil {
			continue
		}
		caps := s.Capabilities()
		if caps&CapInbound != 0 {
			in, ok := s.(InboundStage)
			if !ok {
				return nil, fmt.Errorf("stage %s: advertises inbound without Inbound method", s.Name())
			}
			p.inbound = append(p.inbound, in)
		}
		if caps&CapOutbound != 0 {
			out, ok := s.(OutboundStage)
			if !ok {
				return nil, fmt.Errorf("stage %s: advertises outbound without Outbound method", s.Name())
			}
			p.outbound = append(p.outbound, out)
		}
		p.names = append(p.names, s.Name())
	}
	return p, nil
}

// Names lists the installed stages in order.
func (p *Pipeline) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *Pipeline) runInbound(c Conn, f Frame) (Frame, error) {
	var err error
	for _, s := range p.inbound {
		if f, err = s.Inbound(c, f); err != nil {
			return Frame{}, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return f, nil
}

func (p *Pipeline) runOutbound(c Conn, f Frame) (Frame, error) {
	var err error
	for i := len(p.outbound) - 1; i >= 0; i-- {
		s := p.outbound[i]
		if f, err = s.Outbound(c, f); err != nil {
			return Frame{}, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return f, nil
}

// LineDelimiter terminates outbound text frames with a newline. Used on
// line-framed sockets.
type LineDelimiter struct{}

func (LineDelimiter) Name() string             { return "line-delimiter" }
func (LineDelimiter) Capabilities() Capability { return CapOutbound }

// Outbound appends '\n' to text frames that do not already end with one.
func (LineDelimiter) Outbound(_ Conn, f Frame) (Frame, error) {
	if f.Type != FrameText || strings.HasSuffix(string(f.Data), "\n") {
		return f, nil
	}
	data := make([]byte, len(f.Data)+1)
	copy(data, f.Data)
	data[len(f.Data)] = '\n'
	f.Data = data
	return f, nil
}

// SizeLimit rejects outbound frames larger than Max bytes.
type SizeLimit struct {
	Max int
}

func (SizeLimit) Name() string             { return "size-limit" }
func (SizeLimit) Capabilities() Capability { return CapOutbound }

// Outbound fails with ErrMessageTooLarge for oversized frames.
func (s SizeLimit) Outbound(_ Conn, f Frame) (Frame, error) {
	if s.Max > 0 && len(f.Data) > s.Max {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(f.Data), s.Max)
	}
	return f, nil
}

// FramingGuard rejects outbound frames a socket framing cannot carry:
// binary frames on line framing and empty frames on length-prefix
// framing. Rejection happens in Write, before the frame is queued.
type FramingGuard struct {
	Framing Framing
}

func (FramingGuard) Name() string             { return "framing-guard" }
func (FramingGuard) Capabilities() Capability { return CapOutbound }

// Outbound fails with ErrUnsupported or ErrMessageEmpty.
func (g FramingGuard) Outbound(_ Conn, f Frame) (Frame, error) {
	switch g.Framing {
	case FramingLine:
		if f.Type == FrameBinary {
			return Frame{}, fmt.Errorf("%w: binary frame on line framing", ErrUnsupported)
		}
	case FramingLengthPrefix:
		if len(f.Data) == 0 {
			return Frame{}, ErrMessageEmpty
		}
	}
	return f, nil
}

// FrameTracer records every frame passing through as a protocol event.
type FrameTracer struct {
	Logger   log.Logger
	Role     log.Role
	Endpoint string
}

func (FrameTracer) Name() string             { return "frame-tracer" }
func (FrameTracer) Capabilities() Capability { return CapInbound | CapOutbound }

// Inbound traces a received frame.
func (t FrameTracer) Inbound(c Conn, f Frame) (Frame, error) {
	t.trace(c, f, log.DirectionIn)
	return f, nil
}

// Outbound traces a frame about to be sent.
func (t FrameTracer) Outbound(c Conn, f Frame) (Frame, error) {
	t.trace(c, f, log.DirectionOut)
	return f, nil
}

func (t FrameTracer) trace(c Conn, f Frame, dir log.Direction) {
	if t.Logger == nil || f.Silent {
		return
	}
	fe := log.NewFrameEvent(f.Type.logType(), f.Data, !f.Redact)
	fe.Description = f.Description
	t.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ID(),
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryData,
		LocalRole:    t.Role,
		RemoteAddr:   addrString(c.RemoteAddr()),
		Endpoint:     t.Endpoint,
		Frame:        fe,
	})
}
