package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/novafeed/sessionkit-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	RetryOperations   map[string]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	Identity     string
	FramesIn     int
	FramesOut    int
	StateChanges int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	stats := collectStats(events)
	printStats(w, stats)
	return nil
}

// collectStats aggregates events into statistics.
func collectStats(events []log.Event) *Stats {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
		RetryOperations:   make(map[string]int),
	}

	for _, event := range events {
		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.ConnectionID != "" {
			conn, ok := stats.Connections[event.ConnectionID]
			if !ok {
				conn = &ConnectionStats{
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				}
				stats.Connections[event.ConnectionID] = conn
			}
			conn.Events++
			if event.Timestamp.After(conn.LastSeen) {
				conn.LastSeen = event.Timestamp
			}
			if event.Identity != "" && conn.Identity == "" {
				conn.Identity = event.Identity
			}
			if event.Frame != nil {
				switch event.Direction {
				case log.DirectionIn:
					conn.FramesIn++
				case log.DirectionOut:
					conn.FramesOut++
				}
			}
			if event.StateChange != nil {
				conn.StateChanges++
			}
		}

		if event.Retry != nil {
			stats.RetryOperations[event.Retry.CorrelationID]++
		}
		if event.Error != nil {
			stats.Errors++
		}
	}

	return stats
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Session Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Errors:       %d\n", stats.Errors)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "By Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerSession, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", layer.String(), count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "By Category:")
	for _, cat := range []log.Category{
		log.CategoryMessage, log.CategoryControl, log.CategoryState,
		log.CategoryRetry, log.CategoryError,
	} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", cat.String(), count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.RetryOperations) > 0 {
		multi := 0
		for _, attempts := range stats.RetryOperations {
			if attempts > 1 {
				multi++
			}
		}
		fmt.Fprintf(w, "Retried Operations: %d (%d needed more than one attempt)\n",
			len(stats.RetryOperations), multi)
		fmt.Fprintln(w)
	}

	if len(stats.Connections) > 0 {
		fmt.Fprintf(w, "Connections (%d):\n", len(stats.Connections))

		ids := make([]string, 0, len(stats.Connections))
		for id := range stats.Connections {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			conn := stats.Connections[id]
			fmt.Fprintf(w, "  %s\n", shortenConnID(id))
			if conn.Identity != "" {
				fmt.Fprintf(w, "    Identity:  %s\n", conn.Identity)
			}
			fmt.Fprintf(w, "    Events:    %d (in: %d, out: %d, state: %d)\n",
				conn.Events, conn.FramesIn, conn.FramesOut, conn.StateChanges)
			fmt.Fprintf(w, "    Active:    %s\n",
				conn.LastSeen.Sub(conn.FirstSeen).Round(time.Millisecond))
		}
	}
}
