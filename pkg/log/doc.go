// Package log provides structured session event capture.
//
// This package defines the Logger interface and Event types for capturing
// session-layer events (connection state changes, control frames, retry
// attempts, errors). It is separate from operational logging (slog) -
// event capture provides a complete machine-readable trace for debugging
// connection and credential issues in the field.
//
// # Basic Usage
//
// Components take a Logger; applications choose the sink:
//
//	// For development: log to console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/log/app/session.slog")
//
//	// Both: use MultiLogger
//	cfg.EventLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded events with integer keys.
// Reader decodes them back; a trailing partial event from a crashed writer
// is tolerated.
package log
