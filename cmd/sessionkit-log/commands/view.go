// Package commands implements the sessionkit-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/novafeed/sessionkit-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

// matches reports whether the event passes the filter.
func (f ViewFilter) matches(event log.Event) bool {
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	return true
}

// RunView renders a log file in human-readable form.
func RunView(path string, filter ViewFilter, w io.Writer) error {
	reader, err := log.OpenFile(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return err
	}

	for _, event := range events {
		if !filter.matches(event) {
			continue
		}
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)
	dir := event.Direction.String()

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = event.Frame.Type
	case event.StateChange != nil:
		typeLabel = "State"
	case event.ControlMsg != nil:
		typeLabel = event.ControlMsg.Type.String()
	case event.Retry != nil:
		typeLabel = "Retry"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	// Use CTRL for control messages in header
	layerStr := event.Layer.String()
	if event.Category == log.CategoryControl {
		layerStr = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-4s %s %s\n", ts, connID, dir, layerStr, typeLabel)

	if event.Identity != "" {
		fmt.Fprintf(w, "  Identity: %s\n", event.Identity)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		// Control messages are simple, no extra details needed
	case event.Retry != nil:
		formatRetryDetails(w, event.Retry)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatFrameDetails writes frame-specific details.
func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatRetryDetails writes retry attempt details.
func formatRetryDetails(w io.Writer, r *log.RetryEvent) {
	fmt.Fprintf(w, "  Correlation: %s  Attempt: %d  Outcome: %s\n",
		r.CorrelationID, r.Attempt, r.Outcome)
	if r.Delay > 0 {
		fmt.Fprintf(w, "  Next attempt in: %s\n", formatDuration(r.Delay))
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", e.Kind)
	}
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

// formatDuration renders a duration without excessive precision.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

// ParseLayerFlag parses a layer name from a CLI flag.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "session":
		return log.LayerSession, nil
	case "service":
		return log.LayerService, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (transport, session, service)", s)
	}
}

// ParseDirectionFlag parses a direction name from a CLI flag.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "none":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out, none)", s)
	}
}

// ParseCategoryFlag parses a category name from a CLI flag.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "retry":
		return log.CategoryRetry, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (message, control, state, retry, error)", s)
	}
}
