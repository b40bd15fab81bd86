package logtool

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

func TestStatsCounts(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryData, LocalRole: log.RoleClient},
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryControl, LocalRole: log.RoleClient},
		{Timestamp: ts, Layer: log.LayerManager, Category: log.CategoryState, LocalRole: log.RoleServer},
		{Timestamp: ts.Add(time.Minute), Layer: log.LayerManager, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "x", Code: intPtr(103)}},
		{Timestamp: ts.Add(time.Minute), Layer: log.LayerManager, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "y", Code: intPtr(103)}},
	}
	path := createTestLogFile(t, events)

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", stats.TotalEvents)
	}
	if stats.EventsByLayer[log.LayerManager] != 3 {
		t.Errorf("manager events = %d, want 3", stats.EventsByLayer[log.LayerManager])
	}
	if stats.EventsByRole[log.RoleServer] != 1 {
		t.Errorf("server events = %d, want 1", stats.EventsByRole[log.RoleServer])
	}
	if stats.Errors != 2 || stats.ErrorsByCode[103] != 2 {
		t.Errorf("errors = %d by code %v", stats.Errors, stats.ErrorsByCode)
	}
	if len(stats.Connections) != 0 {
		t.Errorf("manager events should not create connections, got %d", len(stats.Connections))
	}

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"Total Events: 5", "TRANSPORT:", "MANAGER:", "DATA:", "CONTROL:", "STATE:", "ERROR:", "Duration:   1m0s", "Errors: 2", "EXCEEDED_MAX_RETRIES:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatsConnections(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-aaaa-bbbb", LocalRole: log.RoleServer, RemoteAddr: "10.0.0.2:5000", PeerID: "conn-aaaa-bbbb",
			Category: log.CategoryState, StateChange: &log.StateChangeEvent{NewState: "ACTIVE"}},
		{Timestamp: ts.Add(10 * time.Millisecond), ConnectionID: "conn-aaaa-bbbb", Direction: log.DirectionIn,
			Category: log.CategoryData, Frame: &log.FrameEvent{Size: 10}},
		{Timestamp: ts.Add(20 * time.Millisecond), ConnectionID: "conn-aaaa-bbbb", Direction: log.DirectionOut,
			Category: log.CategoryData, Frame: &log.FrameEvent{Size: 4}},
		{Timestamp: ts.Add(30 * time.Millisecond), ConnectionID: "conn-cccc-dddd", Direction: log.DirectionIn,
			Category: log.CategoryData, Frame: &log.FrameEvent{Size: 1}},
	}
	path := createTestLogFile(t, events)

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if len(stats.Connections) != 2 {
		t.Fatalf("connections = %d, want 2", len(stats.Connections))
	}
	cs := stats.Connections["conn-aaaa-bbbb"]
	if cs.Events != 3 || cs.FramesIn != 1 || cs.FramesOut != 1 || cs.BytesIn != 10 || cs.BytesOut != 4 {
		t.Errorf("unexpected connection stats: %+v", cs)
	}
	if cs.LastState != "ACTIVE" || cs.RemoteAddr != "10.0.0.2:5000" {
		t.Errorf("unexpected connection details: %+v", cs)
	}

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Connections: 2") {
		t.Errorf("expected connection count, got:\n%s", output)
	}
	first := strings.Index(output, "[conn-aaa]")
	second := strings.Index(output, "[conn-ccc]")
	if first < 0 || second < 0 || first > second {
		t.Errorf("expected connections ordered by first event, got:\n%s", output)
	}
	if !strings.Contains(output, "Frames: 1 in (10 bytes), 1 out (4 bytes)") {
		t.Errorf("expected frame totals, got:\n%s", output)
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("expected zero total, got:\n%s", buf.String())
	}
}
