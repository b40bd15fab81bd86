package logtool

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

func TestExportToJSONL(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Category:     log.CategoryData,
			Frame:        &log.FrameEvent{Size: 2, Data: []byte("hi")},
		},
		{
			Timestamp: ts.Add(time.Second),
			Layer:     log.LayerManager,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityClient,
				OldState: "CONNECTING",
				NewState: "CONNECTED",
			},
		},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunExport(path, FormatJSONL, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to parse line 1: %v", err)
	}
	if first["ConnectionID"] != "abc12345" {
		t.Errorf("expected ConnectionID abc12345, got %v", first["ConnectionID"])
	}

	var second log.Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("failed to parse line 2: %v", err)
	}
	if second.StateChange == nil || second.StateChange.NewState != "CONNECTED" {
		t.Errorf("expected state change, got %+v", second.StateChange)
	}
}

func TestExportToCSV(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Category:     log.CategoryData,
			LocalRole:    log.RoleServer,
			PeerID:       "peer-7",
			Frame:        &log.FrameEvent{Size: 64, Description: "status"},
		},
		{
			Timestamp: ts,
			Layer:     log.LayerManager,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Message: "connection refused", Code: intPtr(102)},
		},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunExport(path, FormatCSV, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "timestamp" || len(records[0]) != len(csvHeader) {
		t.Errorf("unexpected header: %v", records[0])
	}

	frame := records[1]
	if frame[1] != "abc12345" || frame[2] != "SERVER" || frame[7] != "peer-7" {
		t.Errorf("unexpected frame row: %v", frame)
	}
	if frame[8] != "frame" || frame[9] != "64" || frame[10] != "status" {
		t.Errorf("unexpected frame columns: %v", frame)
	}

	errRow := records[2]
	if errRow[8] != "error" || errRow[10] != "102 connection refused" {
		t.Errorf("unexpected error row: %v", errRow)
	}
}

func TestExportFiltered(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryData},
		{Timestamp: ts, ConnectionID: "conn-2", Category: log.CategoryData},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunExport(path, FormatJSONL, log.Filter{ConnectionID: "conn-2"}, &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	if strings.Contains(buf.String(), "conn-1") || !strings.Contains(buf.String(), "conn-2") {
		t.Errorf("expected only conn-2, got: %s", buf.String())
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, nil)
	if err := RunExport(path, "xml", log.Filter{}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
