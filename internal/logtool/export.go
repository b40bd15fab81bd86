package logtool

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/tether-io/tether-go/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// RunExport writes the events matching filter to w as JSON lines or CSV.
func RunExport(path, format string, filter log.Filter, w io.Writer) error {
	var export func(*log.Reader, io.Writer) error
	switch format {
	case FormatJSONL:
		export = exportJSONL
	case FormatCSV:
		export = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return export(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{
	"timestamp", "connection_id", "role", "direction", "layer", "category",
	"endpoint", "peer_id", "type", "size", "detail",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var size, detail string
		switch {
		case event.Frame != nil:
			size = strconv.Itoa(event.Frame.Size)
			detail = event.Frame.Description
		case event.StateChange != nil:
			detail = event.StateChange.OldState + "->" + event.StateChange.NewState
		case event.ControlMsg != nil && event.ControlMsg.CloseCode != nil:
			detail = strconv.Itoa(*event.ControlMsg.CloseCode)
		case event.Error != nil:
			detail = event.Error.Message
			if event.Error.Code != nil {
				detail = strconv.Itoa(*event.Error.Code) + " " + detail
			}
		}

		row := []string{
			event.Timestamp.UTC().Format(timestampLayout),
			event.ConnectionID,
			event.LocalRole.String(),
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Endpoint,
			event.PeerID,
			eventType(event),
			size,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
