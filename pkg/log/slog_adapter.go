package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders protocol events as debug-level slog records.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter. A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log writes the event at debug level with message "protocol".
func (a *SlogAdapter) Log(event Event) {
	attrs := make([]slog.Attr, 0, 10)
	attrs = append(attrs,
		slog.String("role", event.LocalRole.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.String("direction", event.Direction.String()),
	)
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.PeerID != "" {
		attrs = append(attrs, slog.String("peer", event.PeerID))
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("frame_type", event.Frame.Type.String()),
			slog.Int("frame_size", event.Frame.Size),
		)
		if event.Frame.Description != "" {
			attrs = append(attrs, slog.String("description", event.Frame.Description))
		}
		if event.Frame.Type == FrameTypeText && len(event.Frame.Data) > 0 {
			attrs = append(attrs, slog.String("text", string(event.Frame.Data)))
		}
		if event.Frame.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
		if event.ControlMsg.CloseCode != nil {
			attrs = append(attrs, slog.Int("close_code", *event.ControlMsg.CloseCode))
		}
	case event.Error != nil:
		attrs = append(attrs, slog.String("error_msg", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
