package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/novafeed/sessionkit-go/pkg/log"
)

// FilterOptions specifies criteria for the filter command.
type FilterOptions struct {
	Output    string
	ConnID    string
	Identity  string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// RunFilter reads a log file, drops events that do not match the options,
// and writes the survivors to a new log file.
func RunFilter(path string, opts FilterOptions) error {
	match, err := buildMatcher(opts)
	if err != nil {
		return err
	}

	reader, err := log.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	writer, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer writer.Close()

	kept := 0
	for _, event := range events {
		if !match(event) {
			continue
		}
		writer.Log(event)
		kept++
	}

	fmt.Printf("Wrote %d of %d events to %s\n", kept, len(events), opts.Output)
	return nil
}

// buildMatcher compiles the options into a single predicate.
func buildMatcher(opts FilterOptions) (func(log.Event) bool, error) {
	var preds []func(log.Event) bool

	if opts.ConnID != "" {
		preds = append(preds, func(e log.Event) bool {
			return strings.HasPrefix(e.ConnectionID, opts.ConnID)
		})
	}
	if opts.Identity != "" {
		preds = append(preds, func(e log.Event) bool {
			return e.Identity == opts.Identity
		})
	}
	if opts.TimeStart != "" {
		start, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return nil, fmt.Errorf("invalid time-start: %w", err)
		}
		preds = append(preds, func(e log.Event) bool {
			return !e.Timestamp.Before(start)
		})
	}
	if opts.TimeEnd != "" {
		end, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid time-end: %w", err)
		}
		preds = append(preds, func(e log.Event) bool {
			return !e.Timestamp.After(end)
		})
	}
	if opts.Layer != "" {
		layer, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return nil, err
		}
		preds = append(preds, func(e log.Event) bool {
			return e.Layer == layer
		})
	}
	if opts.Direction != "" {
		dir, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return nil, err
		}
		preds = append(preds, func(e log.Event) bool {
			return e.Direction == dir
		})
	}
	if opts.Category != "" {
		cat, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return nil, err
		}
		preds = append(preds, func(e log.Event) bool {
			return e.Category == cat
		})
	}

	return func(e log.Event) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}, nil
}
