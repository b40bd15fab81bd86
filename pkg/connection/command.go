package connection

import (
	"fmt"

	"github.com/tether-io/tether-go/pkg/transport"
)

// Command is an application payload: either Text or Binary. The
// unexported method keeps other types from implementing it.
type Command interface {
	isCommand()

	// Len is the payload size in bytes.
	Len() int
}

// Text is a text command.
type Text string

// Binary is a binary command. A nil Binary is malformed; an empty,
// non-nil one is legal.
type Binary []byte

func (Text) isCommand()   {}
func (Binary) isCommand() {}

func (t Text) Len() int   { return len(t) }
func (b Binary) Len() int { return len(b) }

// validateCommand rejects the payloads a caller can construct but never
// send: a nil interface and a nil Binary.
func validateCommand(cmd Command) error {
	switch c := cmd.(type) {
	case Text:
		return nil
	case Binary:
		if c == nil {
			return fmt.Errorf("%w: nil binary payload", ErrInvalidCommand)
		}
		return nil
	default:
		return fmt.Errorf("%w: no payload", ErrInvalidCommand)
	}
}

func commandFrame(cmd Command, o commandOptions) transport.Frame {
	var f transport.Frame
	switch c := cmd.(type) {
	case Text:
		f = transport.TextFrame(string(c))
	case Binary:
		f = transport.BinaryFrame(c)
	}
	f.Description = o.description
	f.Redact = !o.showContent
	f.Silent = !o.showLog
	return f
}

func commandFromFrame(f transport.Frame) Command {
	if f.Type == transport.FrameBinary {
		return Binary(f.Data)
	}
	return Text(f.Data)
}

type commandOptions struct {
	description string
	showContent bool
	showLog     bool
}

// CommandOption adjusts how a command is logged.
type CommandOption func(*commandOptions)

// WithDescription labels the command in logs.
func WithDescription(d string) CommandOption {
	return func(o *commandOptions) { o.description = d }
}

// WithShowContent controls whether the payload is logged verbatim.
// When false only its length is recorded. Default true.
func WithShowContent(show bool) CommandOption {
	return func(o *commandOptions) { o.showContent = show }
}

// WithShowLog controls whether the command is logged at all. Default true.
func WithShowLog(show bool) CommandOption {
	return func(o *commandOptions) { o.showLog = show }
}

func applyCommandOptions(opts []CommandOption) commandOptions {
	o := commandOptions{showContent: true, showLog: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// logAttrs describes cmd for operational logs, honoring showContent.
func (o commandOptions) logAttrs(cmd Command) []any {
	attrs := []any{"size", cmd.Len()}
	if o.description != "" {
		attrs = append(attrs, "description", o.description)
	}
	if o.showContent {
		switch c := cmd.(type) {
		case Text:
			attrs = append(attrs, "text", string(c))
		case Binary:
			attrs = append(attrs, "bytes", fmt.Sprintf("%x", []byte(c)))
		}
	}
	return attrs
}
