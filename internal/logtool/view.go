package logtool

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/tether-io/tether-go/pkg/connection"
	"github.com/tether-io/tether-go/pkg/log"
)

// RunView writes every event matching filter in human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes one event: a header line, indented details and a
// blank separator line.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timestampLayout)

	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}

	label := "Unknown"
	switch {
	case event.Frame != nil:
		label = "Frame"
	case event.StateChange != nil:
		label = "State"
	case event.ControlMsg != nil:
		label = event.ControlMsg.Type.String()
	case event.Error != nil:
		label = "Error"
	}

	fmt.Fprintf(w, "%s %-6s [conn:%s] %-3s %s %s\n",
		ts, event.LocalRole, shortenConnID(event.ConnectionID), event.Direction, layer, label)
	if event.Endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}
	if event.PeerID != "" {
		fmt.Fprintf(w, "  Peer: %s\n", event.PeerID)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		if event.ControlMsg.CloseCode != nil {
			fmt.Fprintf(w, "  Close code: %d\n", *event.ControlMsg.CloseCode)
		}
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  %s, %d bytes\n", frame.Type, frame.Size)
	if frame.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", frame.Description)
	}
	if len(frame.Data) == 0 {
		return
	}
	if frame.Type == log.FrameTypeText && utf8.Valid(frame.Data) {
		fmt.Fprintf(w, "  Text: %s", strconv.Quote(string(frame.Data)))
	} else {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
	}
	if frame.Truncated {
		fmt.Fprint(w, " (truncated)")
	}
	fmt.Fprintln(w)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d (%s)\n", *err.Code, connection.ErrorCode(*err.Code))
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}
