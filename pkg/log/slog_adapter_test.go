package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func logToJSON(t *testing.T, ev Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewSlogAdapter(logger).Log(ev)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterFrame(t *testing.T) {
	entry := logToJSON(t, Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		LocalRole:    RoleClient,
		Frame: &FrameEvent{
			Type:        FrameTypeText,
			Size:        4,
			Data:        []byte("ping"),
			Description: "heartbeat",
		},
	})

	want := map[string]any{
		"msg":         "protocol",
		"level":       "DEBUG",
		"conn_id":     "conn-1",
		"direction":   "OUT",
		"role":        "CLIENT",
		"frame_type":  "TEXT",
		"text":        "ping",
		"description": "heartbeat",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: got %v, want %v", k, entry[k], v)
		}
	}
	if entry["frame_size"] != float64(4) {
		t.Errorf("frame_size: got %v", entry["frame_size"])
	}
}

func TestSlogAdapterStateAndError(t *testing.T) {
	entry := logToJSON(t, Event{
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityClient,
			OldState: "CONNECTING",
			NewState: "FAILED",
			Reason:   "refused",
		},
	})
	if entry["entity"] != "CLIENT" || entry["new_state"] != "FAILED" || entry["reason"] != "refused" {
		t.Errorf("state attrs: %v", entry)
	}

	code := 103
	entry = logToJSON(t, Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Message: "gave up", Code: &code},
	})
	if entry["error_msg"] != "gave up" || entry["error_code"] != float64(103) {
		t.Errorf("error attrs: %v", entry)
	}
}

func TestSlogAdapterBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	NewSlogAdapter(logger).Log(Event{Timestamp: time.Now()})
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %q", buf.String())
	}
}
