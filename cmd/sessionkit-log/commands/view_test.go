package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/novafeed/sessionkit-go/pkg/log"
)

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Identity:     "user-42",
		Frame: &log.FrameEvent{
			Type: "feed.update",
			Size: 128,
			Data: []byte(`{"type":"feed.update"}`),
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "2026-01-28T10:15:32.123456Z") {
		t.Errorf("expected microsecond timestamp, got: %s", output)
	}
	if !strings.Contains(output, "[conn:abc12345]") {
		t.Errorf("expected shortened connection ID, got: %s", output)
	}
	if !strings.Contains(output, "OUT") {
		t.Errorf("expected OUT direction, got: %s", output)
	}
	if !strings.Contains(output, "TRANSPORT") {
		t.Errorf("expected TRANSPORT layer, got: %s", output)
	}
	if !strings.Contains(output, "feed.update") {
		t.Errorf("expected frame type, got: %s", output)
	}
	if !strings.Contains(output, "128 bytes") {
		t.Errorf("expected frame size, got: %s", output)
	}
	if !strings.Contains(output, "Identity: user-42") {
		t.Errorf("expected identity line, got: %s", output)
	}
}

func TestFormatControlEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: "abc12345",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "CTRL") {
		t.Errorf("expected CTRL label for control messages, got: %s", output)
	}
	if !strings.Contains(output, "PING") {
		t.Errorf("expected PING type, got: %s", output)
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	event := log.Event{
		Timestamp: time.Now().UTC(),
		Direction: log.DirectionNone,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: "CONNECTED",
			NewState: "RECONNECTING",
			Reason:   "read failed",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "CONNECTED -> RECONNECTING") {
		t.Errorf("expected state transition, got: %s", output)
	}
	if !strings.Contains(output, "Reason: read failed") {
		t.Errorf("expected reason, got: %s", output)
	}
}

func TestFormatRetryEvent(t *testing.T) {
	event := log.Event{
		Timestamp: time.Now().UTC(),
		Direction: log.DirectionNone,
		Layer:     log.LayerService,
		Category:  log.CategoryRetry,
		Retry: &log.RetryEvent{
			CorrelationID: "ab12cd34",
			Attempt:       2,
			Delay:         3 * time.Second,
			Outcome:       "transport",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "Correlation: ab12cd34") {
		t.Errorf("expected correlation ID, got: %s", output)
	}
	if !strings.Contains(output, "Attempt: 2") {
		t.Errorf("expected attempt number, got: %s", output)
	}
	if !strings.Contains(output, "Next attempt in: 3s") {
		t.Errorf("expected next attempt delay, got: %s", output)
	}
}

func TestViewFilterMatches(t *testing.T) {
	transport := log.LayerTransport
	out := log.DirectionOut
	state := log.CategoryState

	event := log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
	}

	tests := []struct {
		name   string
		filter ViewFilter
		want   bool
	}{
		{"empty filter matches all", ViewFilter{}, true},
		{"matching layer", ViewFilter{Layer: &transport}, true},
		{"matching direction", ViewFilter{Direction: &out}, true},
		{"mismatched category", ViewFilter{Category: &state}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.matches(event); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunViewFiltersEvents(t *testing.T) {
	path := writeTestLog(t)

	session := log.LayerSession
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &session}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, "TRANSPORT") {
		t.Errorf("transport events should be filtered out, got: %s", output)
	}
	if !strings.Contains(output, "SESSION") {
		t.Errorf("expected session events, got: %s", output)
	}
}

func TestShortenConnID(t *testing.T) {
	if got := shortenConnID("abc12345-6789"); got != "abc12345" {
		t.Errorf("shortenConnID = %q, want abc12345", got)
	}
	if got := shortenConnID("ab"); got != "ab" {
		t.Errorf("shortenConnID = %q, want ab", got)
	}
}

// writeTestLog creates a log file with a mix of event types and returns its path.
func writeTestLog(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.evt")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

	logger.Log(log.Event{
		Timestamp:    base,
		ConnectionID: "conn-aaa-111",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Identity:     "user-1",
		Frame:        &log.FrameEvent{Type: "feed.update", Size: 64},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(time.Second),
		ConnectionID: "conn-aaa-111",
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        &log.FrameEvent{Type: "feed.ack", Size: 32},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(2 * time.Second),
		ConnectionID: "conn-aaa-111",
		Direction:    log.DirectionNone,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: "CONNECTED",
			NewState: "RECONNECTING",
			Reason:   "read failed",
		},
	})
	logger.Log(log.Event{
		Timestamp: base.Add(3 * time.Second),
		Direction: log.DirectionNone,
		Layer:     log.LayerService,
		Category:  log.CategoryRetry,
		Retry: &log.RetryEvent{
			CorrelationID: "ab12cd34",
			Attempt:       1,
			Outcome:       "transport",
			Delay:         time.Second,
		},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(4 * time.Second),
		ConnectionID: "conn-bbb-222",
		Direction:    log.DirectionNone,
		Layer:        log.LayerSession,
		Category:     log.CategoryError,
		Identity:     "user-2",
		Error: &log.ErrorEventData{
			Message: "refresh rejected",
			Kind:    "AUTHORIZATION",
		},
	})

	return path
}
