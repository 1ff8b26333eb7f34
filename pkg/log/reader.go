package log

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Reader decodes session events from a CBOR log stream.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
}

// NewReader creates a Reader over an arbitrary stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: NewDecoder(r)}
}

// OpenFile opens a log file for reading.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		decoder: NewDecoder(f),
		closer:  f,
	}, nil
}

// Next returns the next event in the stream.
// Returns io.EOF when the stream is exhausted.
func (r *Reader) Next() (Event, error) {
	var event Event
	if err := r.decoder.Decode(&event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// ReadAll reads all remaining events. A trailing partial event (from a
// crashed writer) terminates the read without an error.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
