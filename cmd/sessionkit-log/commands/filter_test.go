package commands

import (
	"path/filepath"
	"testing"

	"github.com/novafeed/sessionkit-go/pkg/log"
)

func readFiltered(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return events
}

func TestFilterByConnID(t *testing.T) {
	path := writeTestLog(t)
	output := filepath.Join(t.TempDir(), "filtered.evt")

	opts := FilterOptions{Output: output, ConnID: "conn-aaa"}
	if err := RunFilter(path, opts); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readFiltered(t, output)
	if len(events) != 3 {
		t.Fatalf("kept %d events, want 3", len(events))
	}
	for _, e := range events {
		if e.ConnectionID != "conn-aaa-111" {
			t.Errorf("unexpected connection %q in output", e.ConnectionID)
		}
	}
}

func TestFilterByIdentity(t *testing.T) {
	path := writeTestLog(t)
	output := filepath.Join(t.TempDir(), "filtered.evt")

	opts := FilterOptions{Output: output, Identity: "user-2"}
	if err := RunFilter(path, opts); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readFiltered(t, output)
	if len(events) != 1 {
		t.Fatalf("kept %d events, want 1", len(events))
	}
	if events[0].Error == nil || events[0].Error.Message != "refresh rejected" {
		t.Errorf("wrong event kept: %+v", events[0])
	}
}

func TestFilterByTimeRange(t *testing.T) {
	path := writeTestLog(t)
	output := filepath.Join(t.TempDir(), "filtered.evt")

	opts := FilterOptions{
		Output:    output,
		TimeStart: "2026-01-28T10:00:01Z",
		TimeEnd:   "2026-01-28T10:00:03Z",
	}
	if err := RunFilter(path, opts); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readFiltered(t, output)
	if len(events) != 3 {
		t.Errorf("kept %d events, want 3 (inclusive bounds)", len(events))
	}
}

func TestFilterByLayerAndCategory(t *testing.T) {
	path := writeTestLog(t)
	output := filepath.Join(t.TempDir(), "filtered.evt")

	opts := FilterOptions{Output: output, Layer: "session", Category: "state"}
	if err := RunFilter(path, opts); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readFiltered(t, output)
	if len(events) != 1 {
		t.Fatalf("kept %d events, want 1", len(events))
	}
	if events[0].StateChange == nil {
		t.Errorf("kept event has no state change: %+v", events[0])
	}
}

func TestFilterInvalidTime(t *testing.T) {
	path := writeTestLog(t)
	output := filepath.Join(t.TempDir(), "filtered.evt")

	opts := FilterOptions{Output: output, TimeStart: "yesterday"}
	if err := RunFilter(path, opts); err == nil {
		t.Fatal("expected error for invalid time-start")
	}
}

func TestFilterInvalidLayer(t *testing.T) {
	path := writeTestLog(t)
	output := filepath.Join(t.TempDir(), "filtered.evt")

	opts := FilterOptions{Output: output, Layer: "bogus"}
	if err := RunFilter(path, opts); err == nil {
		t.Fatal("expected error for unknown layer")
	}
}
